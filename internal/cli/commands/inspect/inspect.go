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

// Package inspect implements `bld inspect`.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/format"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
)

// NewCommand creates the `inspect` command.
func NewCommand() *cobra.Command {
	var pipeline, server string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the transitive dependencies of a pushed pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}
			return run(cmd.Context(), pipeline, server)
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	return cmd
}

func run(ctx context.Context, pipeline, server string) error {
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

	deps, err := c.Dependencies(ctx, pipeline)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(deps, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(deps) == 0 {
		fmt.Printf("%s has no dependencies\n", pipeline)
		return nil
	}

	rows := make([][]string, len(deps))
	for i, d := range deps {
		rows[i] = []string{d}
	}
	fmt.Print(format.Table([]string{"DEPENDENCY"}, rows))
	return nil
}
