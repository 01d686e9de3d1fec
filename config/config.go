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

// Package config loads settings from a dotenv file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	apikeys "github.com/cloudkeys/apikeys-go-client"
	"github.com/cloudkeys/apikeys-go-client/dotenv"
)

// Config holds the settings shared by the command line tools.
type Config struct {
	ProjectID   string        `envconfig:"PROJECT_ID"`
	Location    string        `envconfig:"APIKEYS_LOCATION" default:"global"`
	BaseURL     string        `envconfig:"APIKEYS_BASE_URL" default:"https://apikeys.googleapis.com"`
	Timeout     time.Duration `envconfig:"APIKEYS_TIMEOUT" default:"30s"`
	LogLevel    string        `envconfig:"APIKEYS_LOG_LEVEL" default:"info"`
	Verbose     int           `envconfig:"APIKEYS_VERBOSE" default:"0"`
	AccessToken string        `envconfig:"GOOGLE_OAUTH_ACCESS_TOKEN"`

	// EnvFile is the dotenv file the config was loaded from.
	EnvFile string `ignored:"true"`

	// AllowedIPs are collected from IP_0, IP_1, ... and ALLOWED_IPS.
	AllowedIPs []string `ignored:"true"`
}

// Load reads envFile into the process environment, without overriding
// variables that are already set, and then processes the environment. A
// missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = dotenv.DefaultFile
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
	}

	cfg := &Config{EnvFile: envFile}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.AllowedIPs = dotenv.AllowedIPs(environ())

	return cfg, nil
}

// RequireProject returns an error when no project is configured.
func (c *Config) RequireProject() error {
	if c.ProjectID == "" {
		return fmt.Errorf("config: %s is not set in the environment or %s", dotenv.ProjectIDVar, c.EnvFile)
	}
	return nil
}

// ClientConfig converts c into the configuration of an API Keys client.
func (c *Config) ClientConfig() apikeys.ClientConfig {
	return apikeys.ClientConfig{
		BaseURL:     c.BaseURL,
		ProjectID:   c.ProjectID,
		Location:    c.Location,
		AccessToken: c.AccessToken,
		Verbose:     c.Verbose,
		Timeout:     c.Timeout.Seconds(),
	}
}

func environ() map[string]string {
	values := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}
	return values
}
