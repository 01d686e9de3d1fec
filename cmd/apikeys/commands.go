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
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	apikeys "github.com/cloudkeys/apikeys-go-client"
	"github.com/cloudkeys/apikeys-go-client/dotenv"
)

func printKeyName(key *apikeys.Key) func(io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintln(w, key.Name)
	}
}

func newCreateCmd(o *options) *cobra.Command {
	var suffix, varName string
	var ips []string
	var noRestrict, noSave bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key, restrict it to the allowed IPs and append it to the env file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := o.newClient(true)
			if err != nil {
				return err
			}
			if len(ips) == 0 {
				ips = cfg.AllowedIPs
			}

			ctx, cancel := o.context(cmd)
			defer cancel()

			start := time.Now()
			var key *apikeys.Key
			if noRestrict {
				key, err = c.CreateKeyWithSuffix(ctx, suffix)
			} else {
				log.Debug().Strs("allowed_ips", ips).Msg("restricting new key")
				key, err = c.CreateRestrictedKey(ctx, suffix, ips)
			}
			if err != nil {
				log.Error().
					Err(err).
					Str("project", cfg.ProjectID).
					Dur("elapsed", time.Since(start)).
					Msg("create key failed")
				return err
			}
			log.Info().
				Str("name", key.Name).
				Bool("restricted", !noRestrict).
				Dur("elapsed", time.Since(start)).
				Msg("Successfully created an API key")

			if !noSave {
				if key.KeyString == "" {
					return fmt.Errorf("key %s was created without a key string", key.Name)
				}
				if err := dotenv.Append(cfg.EnvFile, varName, key.KeyString); err != nil {
					return fmt.Errorf("key %s was created but not stored: %w", key.Name, err)
				}
				log.Info().Str("file", cfg.EnvFile).Str("var", varName).Msg("stored API key")
			}

			return render(cmd.OutOrStdout(), o.output, withoutSecret(key), printKeyName(key))
		},
	}

	cmd.Flags().StringVar(&suffix, "suffix", "raw", "Suffix of the display name, for uniqueness")
	cmd.Flags().StringSliceVar(&ips, "ip", nil, "Allowed caller IP or CIDR, repeatable; defaults to IP_0.. and ALLOWED_IPS")
	cmd.Flags().BoolVar(&noRestrict, "no-restrict", false, "Create the key without IP restrictions")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not append the key string to the env file")
	cmd.Flags().StringVar(&varName, "var", dotenv.APIKeyVar, "Variable the key string is stored under")

	return cmd
}

func newRestrictCmd(o *options) *cobra.Command {
	var ips []string

	cmd := &cobra.Command{
		Use:   "restrict KEY",
		Short: "Restrict a key to the allowed caller IPs",
		Long:  "KEY is the key id assigned at creation or the full resource name, not the key string.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := o.newClient(false)
			if err != nil {
				return err
			}
			if len(ips) == 0 {
				ips = cfg.AllowedIPs
			}

			ctx, cancel := o.context(cmd)
			defer cancel()

			key, err := c.RestrictKeyServer(ctx, args[0], ips)
			if err != nil {
				return err
			}
			log.Info().Str("name", key.Name).Strs("allowed_ips", ips).Msg("Successfully updated the API key")

			return render(cmd.OutOrStdout(), o.output, withoutSecret(key), printKeyName(key))
		},
	}

	cmd.Flags().StringSliceVar(&ips, "ip", nil, "Allowed caller IP or CIDR, repeatable; defaults to IP_0.. and ALLOWED_IPS")

	return cmd
}

func newShowCmd(o *options) *cobra.Command {
	var varName string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := dotenv.Lookup(o.envFile, varName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVar(&varName, "var", dotenv.APIKeyVar, "Variable holding the key string")

	return cmd
}

func newGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the metadata of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := o.context(cmd)
			defer cancel()

			key, err := c.GetKey(ctx, args[0])
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), o.output, key, func(w io.Writer) {
				fmt.Fprintf(w, "%-12s %s\n", "Name", key.Name)
				fmt.Fprintf(w, "%-12s %s\n", "DisplayName", key.DisplayName)
				fmt.Fprintf(w, "%-12s %s\n", "UID", key.UID)
				if key.CreateTime != nil {
					fmt.Fprintf(w, "%-12s %s\n", "CreateTime", key.CreateTime.Format(time.RFC3339))
				}
				if key.Restrictions != nil && key.Restrictions.ServerKeyRestrictions != nil {
					for _, ip := range key.Restrictions.ServerKeyRestrictions.AllowedIps {
						fmt.Fprintf(w, "%-12s %s\n", "AllowedIP", ip)
					}
				}
			})
		},
	}
}

func newKeyStringCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "key-string KEY",
		Short: "Print the key string of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := o.context(cmd)
			defer cancel()

			ks, err := c.GetKeyString(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ks)
			return nil
		},
	}
}

func newLookupCmd(o *options) *cobra.Command {
	var varName string

	cmd := &cobra.Command{
		Use:   "lookup [KEY_STRING]",
		Short: "Find the key a key string belongs to; defaults to the stored key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(false)
			if err != nil {
				return err
			}

			var keyString string
			if len(args) == 1 {
				keyString = args[0]
			} else if keyString, err = dotenv.Lookup(o.envFile, varName); err != nil {
				return err
			}

			ctx, cancel := o.context(cmd)
			defer cancel()

			lookup, err := c.LookupKey(ctx, keyString)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), o.output, lookup, func(w io.Writer) {
				fmt.Fprintln(w, lookup.Name)
			})
		},
	}

	cmd.Flags().StringVar(&varName, "var", dotenv.APIKeyVar, "Variable holding the key string")

	return cmd
}

func newListCmd(o *options) *cobra.Command {
	var pageSize int
	var pageToken string
	var showDeleted bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the keys of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(true)
			if err != nil {
				return err
			}
			ctx, cancel := o.context(cmd)
			defer cancel()

			keys, err := c.ListKeys(ctx, pageSize, pageToken, showDeleted)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), o.output, keys, func(w io.Writer) {
				for _, k := range keys.Keys {
					fmt.Fprintf(w, "%s\t%s\n", k.Name, k.DisplayName)
				}
				if keys.NextPageToken != "" {
					log.Info().Str("page_token", keys.NextPageToken).Msg("more keys available")
				}
			})
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Maximum number of keys to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous list")
	cmd.Flags().BoolVar(&showDeleted, "show-deleted", false, "Include keys deleted in the last 30 days")

	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	var etag string

	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a key; it can be undeleted for 30 days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := o.context(cmd)
			defer cancel()

			key, err := c.DeleteKey(ctx, args[0], etag)
			if err != nil {
				return err
			}
			log.Info().Str("name", key.Name).Msg("deleted API key")

			return render(cmd.OutOrStdout(), o.output, withoutSecret(key), printKeyName(key))
		},
	}

	cmd.Flags().StringVar(&etag, "etag", "", "Only delete if the key's etag matches")

	return cmd
}

func newUndeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "undelete KEY",
		Short: "Restore a deleted key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := o.newClient(false)
			if err != nil {
				return err
			}
			ctx, cancel := o.context(cmd)
			defer cancel()

			key, err := c.UndeleteKey(ctx, args[0])
			if err != nil {
				return err
			}
			log.Info().Str("name", key.Name).Msg("restored API key")

			return render(cmd.OutOrStdout(), o.output, withoutSecret(key), printKeyName(key))
		},
	}
}
