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

// Package dotenv reads and appends KEY=VALUE secrets files.
package dotenv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DefaultFile is the secrets file used when none is given.
	DefaultFile = ".env"

	// APIKeyVar holds the stored API key string.
	APIKeyVar = "API_KEY"

	// ProjectIDVar holds the project the key is created in.
	ProjectIDVar = "PROJECT_ID"

	// AllowedIPsVar is a comma separated list of allowed caller addresses.
	AllowedIPsVar = "ALLOWED_IPS"

	// IPVarPrefix numbers individual allowed addresses: IP_0, IP_1, ...
	IPVarPrefix = "IP_"
)

// ErrKeyNotFound is returned when a variable is not in the file.
var ErrKeyNotFound = errors.New("dotenv: key not found")

// Read parses the file at path. When a variable appears more than once the
// last occurrence wins.
func Read(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("dotenv: reading %s: %w", path, err)
	}
	return values, nil
}

// Lookup returns the value of key in the file at path.
func Lookup(path, key string) (string, error) {
	values, err := Read(path)
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
	}
	return v, nil
}

// Append adds a KEY=VALUE line to the file at path, creating it with mode
// 0600 if needed. Existing lines are left untouched.
func Append(path, key, value string) error {
	if key == "" {
		return errors.New("dotenv: empty key")
	}
	line, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return err
	}

	prefix, err := separator(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("dotenv: opening %s: %w", path, err)
	}
	if _, err := f.WriteString(prefix + line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("dotenv: writing %s: %w", path, err)
	}
	return f.Close()
}

// separator returns "\n" when the file exists, is non-empty and does not
// end with a newline.
func separator(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if fi.Size() == 0 {
		return "", nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil && err != io.EOF {
		return "", err
	}
	if last[0] == '\n' {
		return "", nil
	}
	return "\n", nil
}

// AllowedIPs collects allowed caller addresses from values: IP_0, IP_1, ...
// up to the first missing index, then the entries of ALLOWED_IPS. Empty and
// duplicate entries are dropped; order is preserved.
func AllowedIPs(values map[string]string) []string {
	var ips []string
	seen := map[string]bool{}
	add := func(ip string) {
		ip = strings.TrimSpace(ip)
		if ip == "" || seen[ip] {
			return
		}
		seen[ip] = true
		ips = append(ips, ip)
	}

	for i := 0; ; i++ {
		v, ok := values[IPVarPrefix+strconv.Itoa(i)]
		if !ok {
			break
		}
		add(v)
	}
	for _, ip := range strings.Split(values[AllowedIPsVar], ",") {
		add(ip)
	}

	return ips
}
