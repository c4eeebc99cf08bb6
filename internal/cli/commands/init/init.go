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

// Package init implements `bld init`.
package init

import (
	"context"
	"fmt"
	"os"

	"github.com/kani-maki-gang/bld/internal/cli/prompt"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/spf13/cobra"
)

// NewCommand creates the `init` command.
func NewCommand() *cobra.Command {
	var withServer bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .bld/config.yaml for this project",
		Long: `init writes a .bld/config.yaml with documented defaults
(localhost, server port 6080, supervisor port 7080, 4 workers).

With --server, init additionally prompts for this machine's server
host/port and an optional auth_token, for projects that will run
'bld server' locally rather than only talking to a remote one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), withServer)
		},
	}

	cmd.Flags().BoolVar(&withServer, "server", false, "Prompt for local server settings")
	return cmd
}

func run(ctx context.Context, withServer bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	path := config.PathIn(wd)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := config.DefaultConfig()

	if withServer {
		p := prompt.NewSurveyPrompter(true)

		host, err := p.PromptString(ctx, "Server host", cfg.Local.Server.Host)
		if err != nil {
			return err
		}
		cfg.Local.Server.Host = host

		port, err := p.PromptString(ctx, "Server port", fmt.Sprintf("%d", cfg.Local.Server.Port))
		if err != nil {
			return err
		}
		fmt.Sscanf(port, "%d", &cfg.Local.Server.Port)

		wantAuth, err := p.PromptConfirm(ctx, "Require a bearer token on authenticated routes?", false)
		if err != nil {
			return err
		}
		if wantAuth {
			token, err := p.PromptSecret(ctx, "auth_token")
			if err != nil {
				return err
			}
			cfg.Local.Server.AuthToken = token
		}
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}

	if !shared.GetQuiet() {
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
