// Copyright 2021 IBM Corp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apikeys

import (
	"fmt"
	"strings"
)

const keyNamePrefix = "projects/"

// KeyRef is the parsed form of projects/{project}/locations/{location}/keys/{key}.
type KeyRef struct {
	Project  string
	Location string
	KeyID    string
}

func (r KeyRef) String() string {
	return KeyName(r.Project, r.Location, r.KeyID)
}

// ParentName returns the resource name keys are created under.
func ParentName(project, location string) string {
	if location == "" {
		location = DefaultLocation
	}
	return fmt.Sprintf("projects/%s/locations/%s", project, location)
}

// KeyName returns the full resource name of a key. A keyID that is
// already a full resource name is returned unchanged.
func KeyName(project, location, keyID string) string {
	if strings.HasPrefix(keyID, keyNamePrefix) {
		return keyID
	}
	return fmt.Sprintf("%s/keys/%s", ParentName(project, location), keyID)
}

// ParseKeyName splits a full key resource name.
func ParseKeyName(name string) (*KeyRef, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keys" {
		return nil, fmt.Errorf("apikeys: malformed key name %q", name)
	}
	for _, p := range []string{parts[1], parts[3], parts[5]} {
		if p == "" {
			return nil, fmt.Errorf("apikeys: malformed key name %q", name)
		}
	}
	return &KeyRef{Project: parts[1], Location: parts[3], KeyID: parts[5]}, nil
}

// keyName resolves a key id or name against the client's project.
func (c *Client) keyName(keyID string) (string, error) {
	if keyID == "" {
		return "", ErrEmptyKeyID
	}
	if strings.HasPrefix(keyID, keyNamePrefix) {
		if _, err := ParseKeyName(keyID); err != nil {
			return "", err
		}
		return keyID, nil
	}
	if c.Config.ProjectID == "" {
		return "", ErrNoProject
	}
	return KeyName(c.Config.ProjectID, c.Config.Location, keyID), nil
}

func (c *Client) parentName() (string, error) {
	if c.Config.ProjectID == "" {
		return "", ErrNoProject
	}
	return ParentName(c.Config.ProjectID, c.Config.Location), nil
}
