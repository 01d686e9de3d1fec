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
	"net/netip"
	"strings"
)

// RestrictionsMask is the update mask that replaces all restrictions of a key.
const RestrictionsMask = "restrictions"

// ErrNoAllowedIPs is returned when an IP restriction is requested without
// any addresses.
var ErrNoAllowedIPs = errors.New("apikeys: no allowed IP addresses given")

// Restrictions describe who may call with a key. Only one kind of
// application restriction may be set at a time.
type Restrictions struct {
	BrowserKeyRestrictions *BrowserKeyRestrictions `json:"browserKeyRestrictions,omitempty" yaml:"browserKeyRestrictions,omitempty"`
	ServerKeyRestrictions  *ServerKeyRestrictions  `json:"serverKeyRestrictions,omitempty" yaml:"serverKeyRestrictions,omitempty"`
	AndroidKeyRestrictions *AndroidKeyRestrictions `json:"androidKeyRestrictions,omitempty" yaml:"androidKeyRestrictions,omitempty"`
	IosKeyRestrictions     *IosKeyRestrictions     `json:"iosKeyRestrictions,omitempty" yaml:"iosKeyRestrictions,omitempty"`
	ApiTargets             []ApiTarget             `json:"apiTargets,omitempty" yaml:"apiTargets,omitempty"`
}

// ServerKeyRestrictions limits a key to callers from the given IPv4 or IPv6
// addresses or CIDR subnets.
type ServerKeyRestrictions struct {
	AllowedIps []string `json:"allowedIps,omitempty" yaml:"allowedIps,omitempty"`
}

type BrowserKeyRestrictions struct {
	AllowedReferrers []string `json:"allowedReferrers,omitempty" yaml:"allowedReferrers,omitempty"`
}

type AndroidApplication struct {
	Sha1Fingerprint string `json:"sha1Fingerprint,omitempty" yaml:"sha1Fingerprint,omitempty"`
	PackageName     string `json:"packageName,omitempty" yaml:"packageName,omitempty"`
}

type AndroidKeyRestrictions struct {
	AllowedApplications []AndroidApplication `json:"allowedApplications,omitempty" yaml:"allowedApplications,omitempty"`
}

type IosKeyRestrictions struct {
	AllowedBundleIds []string `json:"allowedBundleIds,omitempty" yaml:"allowedBundleIds,omitempty"`
}

// ApiTarget limits a key to one service and, optionally, some of its methods.
type ApiTarget struct {
	Service string   `json:"service" yaml:"service"`
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// ValidateAllowedIPs checks that ips is non-empty and that every entry is
// an IP address or a CIDR subnet. It returns the trimmed entries.
func ValidateAllowedIPs(ips []string) ([]string, error) {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			if _, err := netip.ParsePrefix(ip); err != nil {
				return nil, fmt.Errorf("apikeys: invalid subnet %q: %w", ip, err)
			}
		} else if addr, err := netip.ParseAddr(ip); err != nil {
			return nil, fmt.Errorf("apikeys: invalid IP address %q: %w", ip, err)
		} else if addr.Zone() != "" {
			return nil, fmt.Errorf("apikeys: invalid IP address %q: zones are not allowed", ip)
		}
		out = append(out, ip)
	}
	if len(out) == 0 {
		return nil, ErrNoAllowedIPs
	}
	return out, nil
}

// ServerRestrictions builds restrictions that allow only the given callers.
func ServerRestrictions(allowedIPs []string) (*Restrictions, error) {
	ips, err := ValidateAllowedIPs(allowedIPs)
	if err != nil {
		return nil, err
	}
	return &Restrictions{
		ServerKeyRestrictions: &ServerKeyRestrictions{AllowedIps: ips},
	}, nil
}

// RestrictKeyServer restricts a key to callers from allowedIPs, for example
// web servers or cron jobs. keyID is either the id assigned at creation or
// the full resource name; it is not the key string. Any other application
// restriction on the key is replaced.
func (c *Client) RestrictKeyServer(ctx context.Context, keyID string, allowedIPs []string) (*Key, error) {
	restrictions, err := ServerRestrictions(allowedIPs)
	if err != nil {
		return nil, err
	}

	return c.UpdateKey(ctx, &Key{
		Name:         keyID,
		Restrictions: restrictions,
	}, RestrictionsMask)
}

// CreateRestrictedKey creates a key with DisplayNamePrefix+suffix, then
// restricts it to allowedIPs. The returned Key always carries the key
// string, fetching it if neither response included it.
func (c *Client) CreateRestrictedKey(ctx context.Context, suffix string, allowedIPs []string) (*Key, error) {
	if _, err := ValidateAllowedIPs(allowedIPs); err != nil {
		return nil, err
	}

	created, err := c.CreateKeyWithSuffix(ctx, suffix)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("created API key", created.Name)

	restricted, err := c.RestrictKeyServer(ctx, created.Name, allowedIPs)
	if err != nil {
		return nil, fmt.Errorf("apikeys: key %s was created but not restricted: %w", created.Name, err)
	}
	c.Logger.Info("restricted API key", restricted.Name)

	if restricted.KeyString == "" {
		restricted.KeyString = created.KeyString
	}
	if restricted.KeyString == "" {
		ks, err := c.GetKeyString(ctx, restricted.Name)
		if err != nil {
			return nil, err
		}
		restricted.KeyString = ks
	}

	return restricted, nil
}
