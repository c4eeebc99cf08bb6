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

// Package list implements `bld list`.
package list

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/format"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
)

// NewCommand creates the `list` command.
func NewCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipelines pushed to a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), server)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	return cmd
}

func run(ctx context.Context, server string) error {
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

	names, err := c.List(ctx)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(names, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	fmt.Print(format.Table([]string{"PIPELINE"}, rows))
	return nil
}
