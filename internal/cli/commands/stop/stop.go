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

// Package stop implements `bld stop`.
package stop

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
)

// NewCommand creates the `stop` command.
func NewCommand() *cobra.Command {
	var id, server string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Cancel an in-flight run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return run(cmd.Context(), id, server)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Run id (required)")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	return cmd
}

func run(ctx context.Context, id, server string) error {
	cfg, err := cli.LoadConfig(shared.GetConfigPath())
	if err != nil {
		return err
	}
	target, err := cli.ResolveTarget(cfg, server)
	if err != nil {
		return err
	}
	cache, err := cli.OpenTokenCache(shared.GetConfigPath())
	if err != nil {
		return err
	}
	c, err := cli.NewClient(ctx, cache, target)
	if err != nil {
		return err
	}

	if err := c.Stop(ctx, id); err != nil {
		return err
	}

	if !shared.GetQuiet() {
		fmt.Printf("stop requested for %s on %s\n", id, target.Name)
	}
	return nil
}
