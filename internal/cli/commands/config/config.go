// Copyright 2025 Tom Barlow
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

// Package config implements `bld config`.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewCommand creates the `config` command.
func NewCommand() *cobra.Command {
	var showLocal, showRemote bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the project's local and remote server configuration",
		Long: `config prints the effective .bld/config.yaml. --local restricts
output to local.{server,supervisor,...}; --remote restricts it to the
configured remote server list. With neither flag, both are shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(shared.GetConfigPath(), showLocal, showRemote)
		},
	}

	cmd.Flags().BoolVar(&showLocal, "local", false, "Show only local.* settings")
	cmd.Flags().BoolVar(&showRemote, "remote", false, "Show only the remote server list")
	return cmd
}

func run(configPath string, showLocal, showRemote bool) error {
	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return err
	}

	masked := maskAuthTokens(cfg)

	var out any = masked
	switch {
	case showLocal && !showRemote:
		out = masked.Local
	case showRemote && !showLocal:
		out = masked.Remote
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// maskAuthTokens returns a copy of cfg with every auth_token masked, so
// `bld config` output is safe to paste into a bug report.
func maskAuthTokens(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Local.Server.AuthToken = maskToken(cfg.Local.Server.AuthToken)

	masked.Remote = make([]config.RemoteServer, len(cfg.Remote))
	for i, r := range cfg.Remote {
		r.AuthToken = maskToken(r.AuthToken)
		masked.Remote[i] = r
	}
	return &masked
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
