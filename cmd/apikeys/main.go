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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apikeys "github.com/cloudkeys/apikeys-go-client"
	"github.com/cloudkeys/apikeys-go-client/config"
	"github.com/cloudkeys/apikeys-go-client/dotenv"
)

// usage: apikeys [--env-file .env] <command>
//
// Creates API keys restricted to the IP addresses of the servers that use
// them and keeps the key string in a dotenv file. PROJECT_ID and the
// allowed addresses (IP_0, IP_1, ... or ALLOWED_IPS) are read from the
// environment and the dotenv file; variables already in the environment
// win over the file.
//
// Logs go to stderr. Only requested values (key names, the stored key)
// are written to stdout.

type options struct {
	envFile   string
	projectID string
	debug     bool
	output    string
	timeout   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:           "apikeys",
		Short:         "Create, restrict and store Google Cloud API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        cmd.ErrOrStderr(),
				TimeFormat: "2006-01-02 15:04:05",
				NoColor:    true,
			})
			if o.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				log.Debug().Msg("debug logging enabled")
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&o.envFile, "env-file", "f", dotenv.DefaultFile, "Path of the dotenv file with settings and stored keys")
	rootCmd.PersistentFlags().StringVarP(&o.projectID, "project", "p", "", "Project id, overrides PROJECT_ID")
	rootCmd.PersistentFlags().BoolVarP(&o.debug, "debug", "d", false, "Enable debug logging and dump failed requests")
	rootCmd.PersistentFlags().StringVarP(&o.output, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().DurationVar(&o.timeout, "timeout", 3*time.Minute, "Overall deadline for the command")

	rootCmd.AddCommand(newCreateCmd(o))
	rootCmd.AddCommand(newRestrictCmd(o))
	rootCmd.AddCommand(newShowCmd(o))
	rootCmd.AddCommand(newGetCmd(o))
	rootCmd.AddCommand(newKeyStringCmd(o))
	rootCmd.AddCommand(newLookupCmd(o))
	rootCmd.AddCommand(newListCmd(o))
	rootCmd.AddCommand(newDeleteCmd(o))
	rootCmd.AddCommand(newUndeleteCmd(o))

	return rootCmd
}

// loadConfig reads the dotenv file and environment, then applies flags.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.projectID != "" {
		cfg.ProjectID = o.projectID
	}
	if o.debug {
		cfg.LogLevel = zerolog.LevelDebugValue
		if cfg.Verbose == apikeys.VerboseNone {
			cfg.Verbose = apikeys.VerboseFailOnly
		}
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && !o.debug {
		zerolog.SetGlobalLevel(lvl)
	}

	return cfg, nil
}

// newClient loads the config and builds a client. needProject reports
// whether the command addresses keys through the configured project.
func (o *options) newClient(needProject bool) (*config.Config, *apikeys.Client, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if needProject {
		if err := cfg.RequireProject(); err != nil {
			return nil, nil, err
		}
	}

	c, err := apikeys.New(cfg.ClientConfig(), nil)
	if err != nil {
		return nil, nil, err
	}
	c.Config.UserAgent = "apikeys-cli"

	log.Debug().
		Str("project", cfg.ProjectID).
		Str("location", cfg.Location).
		Str("base_url", cfg.BaseURL).
		Str("env_file", cfg.EnvFile).
		Msg("client configured")

	return cfg, c, nil
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// render writes v as JSON or YAML, or calls text for the text format.
func render(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch format {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// withoutSecret returns a copy of key that is safe to print.
func withoutSecret(key *apikeys.Key) *apikeys.Key {
	k := *key
	k.KeyString = ""
	return &k
}
