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
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisplayNamePrefix is prepended to the suffix given to CreateKeyWithSuffix.
const DisplayNamePrefix = "My first API key - "

// Key represents an API key as returned by the API Keys API.
type Key struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	UID          string            `json:"uid,omitempty" yaml:"uid,omitempty"`
	DisplayName  string            `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	KeyString    string            `json:"keyString,omitempty" yaml:"-"`
	CreateTime   *time.Time        `json:"createTime,omitempty" yaml:"createTime,omitempty"`
	UpdateTime   *time.Time        `json:"updateTime,omitempty" yaml:"updateTime,omitempty"`
	DeleteTime   *time.Time        `json:"deleteTime,omitempty" yaml:"deleteTime,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Restrictions *Restrictions     `json:"restrictions,omitempty" yaml:"restrictions,omitempty"`
	Etag         string            `json:"etag,omitempty" yaml:"etag,omitempty"`
}

// Keys represents a page of keys.
type Keys struct {
	Keys          []Key  `json:"keys"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// KeyString holds the secret value of a key.
type KeyString struct {
	KeyString string `json:"keyString"`
}

// LookupKeyResponse identifies the key that owns a key string.
type LookupKeyResponse struct {
	Parent string `json:"parent" yaml:"parent"`
	Name   string `json:"name" yaml:"name"`
}

// CreateKey creates a key in the client's project and waits for the
// operation to complete. keyID may be empty, in which case the service picks
// one. The returned Key carries the KeyString.
func (c *Client) CreateKey(ctx context.Context, keyID, displayName string, restrictions *Restrictions) (*Key, error) {
	parent, err := c.parentName()
	if err != nil {
		return nil, err
	}

	key := Key{
		DisplayName:  displayName,
		Restrictions: restrictions,
	}

	req, err := c.newRequest("POST", parent+"/keys", &key)
	if err != nil {
		return nil, err
	}
	if keyID != "" {
		v := url.Values{}
		v.Set("keyId", keyID)
		req.URL.RawQuery = v.Encode()
	}

	op := Operation{}
	if _, err := c.do(ctx, req, &op); err != nil {
		return nil, err
	}

	return c.waitForKey(ctx, &op)
}

// NewKeyID returns a random key id that satisfies the service's
// [a-z]([a-z0-9-]{0,61}[a-z0-9])? format.
var NewKeyID = func() string {
	return "key-" + uuid.New().String()
}

// CreateKeyWithSuffix creates an unrestricted key named DisplayNamePrefix+suffix.
// The key id is generated client side so that a retried create cannot mint
// a second key; ALREADY_EXISTS for that id means an earlier attempt went
// through, and that key is returned.
func (c *Client) CreateKeyWithSuffix(ctx context.Context, suffix string) (*Key, error) {
	keyID := NewKeyID()

	key, err := c.CreateKey(ctx, keyID, DisplayNamePrefix+suffix, nil)
	if !IsAlreadyExists(err) {
		return key, err
	}

	c.Logger.Info("key", keyID, "already exists, using it")
	key, err = c.GetKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.KeyString, err = c.GetKeyString(ctx, key.Name); err != nil {
		return nil, err
	}

	return key, nil
}

// GetKey retrieves the metadata of a key. The key string is not included.
func (c *Client) GetKey(ctx context.Context, id string) (*Key, error) {
	name, err := c.keyName(id)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest("GET", name, nil)
	if err != nil {
		return nil, err
	}

	key := Key{}
	if _, err := c.do(ctx, req, &key); err != nil {
		return nil, err
	}

	return &key, nil
}

// GetKeyString retrieves the secret value of a key.
func (c *Client) GetKeyString(ctx context.Context, id string) (string, error) {
	name, err := c.keyName(id)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest("GET", name+"/keyString", nil)
	if err != nil {
		return "", err
	}

	ks := KeyString{}
	if _, err := c.do(ctx, req, &ks); err != nil {
		return "", err
	}

	return ks.KeyString, nil
}

// UpdateKey patches the fields of key named by updateMask and waits for
// the operation to complete. key.Name may be a key id or a full name.
func (c *Client) UpdateKey(ctx context.Context, key *Key, updateMask ...string) (*Key, error) {
	if key == nil {
		return nil, errors.New("apikeys: nil key")
	}
	if len(updateMask) == 0 {
		return nil, errors.New("apikeys: update mask is empty")
	}

	name, err := c.keyName(key.Name)
	if err != nil {
		return nil, err
	}
	body := *key
	body.Name = name

	req, err := c.newRequest("PATCH", name, &body)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("updateMask", strings.Join(updateMask, ","))
	req.URL.RawQuery = v.Encode()

	op := Operation{}
	if _, err := c.do(ctx, req, &op); err != nil {
		return nil, err
	}

	return c.waitForKey(ctx, &op)
}

// LookupKey finds the project and resource name of a key string.
func (c *Client) LookupKey(ctx context.Context, keyString string) (*LookupKeyResponse, error) {
	if keyString == "" {
		return nil, errors.New("apikeys: key string is empty")
	}

	req, err := c.newRequest("GET", "keys:lookupKey", nil)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("keyString", keyString)
	req.URL.RawQuery = v.Encode()

	lookup := LookupKeyResponse{}
	if _, err := c.do(ctx, req, &lookup); err != nil {
		return nil, err
	}

	return &lookup, nil
}

// ListKeys retrieves a page of keys in the client's project. A pageSize of
// 0 uses the service default.
func (c *Client) ListKeys(ctx context.Context, pageSize int, pageToken string, showDeleted bool) (*Keys, error) {
	parent, err := c.parentName()
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest("GET", parent+"/keys", nil)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	if pageSize > 0 {
		v.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		v.Set("pageToken", pageToken)
	}
	if showDeleted {
		v.Set("showDeleted", "true")
	}
	req.URL.RawQuery = v.Encode()

	keys := Keys{}
	if _, err := c.do(ctx, req, &keys); err != nil {
		return nil, err
	}

	return &keys, nil
}

// DeleteKey soft-deletes a key. When etag is set the delete only succeeds
// if it matches the current key.
func (c *Client) DeleteKey(ctx context.Context, id, etag string) (*Key, error) {
	name, err := c.keyName(id)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest("DELETE", name, nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		v := url.Values{}
		v.Set("etag", etag)
		req.URL.RawQuery = v.Encode()
	}

	op := Operation{}
	if _, err := c.do(ctx, req, &op); err != nil {
		return nil, err
	}

	return c.waitForKey(ctx, &op)
}

// UndeleteKey restores a key deleted within the last 30 days.
func (c *Client) UndeleteKey(ctx context.Context, id string) (*Key, error) {
	name, err := c.keyName(id)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest("POST", fmt.Sprintf("%s:undelete", name), struct{}{})
	if err != nil {
		return nil, err
	}

	op := Operation{}
	if _, err := c.do(ctx, req, &op); err != nil {
		return nil, err
	}

	return c.waitForKey(ctx, &op)
}
