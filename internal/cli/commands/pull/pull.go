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

// Package pull implements `bld pull`.
package pull

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/client"
)

// NewCommand creates the `pull` command.
func NewCommand() *cobra.Command {
	var name, server, file string
	var ignoreDeps bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download a pipeline document, and its dependencies, from a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--pipeline is required")
			}
			if file == "" {
				file = name + ".yaml"
			}
			return run(cmd.Context(), name, server, file, ignoreDeps)
		},
	}

	cmd.Flags().StringVar(&name, "pipeline", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	cmd.Flags().StringVar(&file, "file", "", "Local YAML file to write (default: <pipeline>.yaml)")
	cmd.Flags().BoolVar(&ignoreDeps, "ignore-deps", false, "Pull only this pipeline, not the ones it depends on")
	return cmd
}

func run(ctx context.Context, name, server, file string, ignoreDeps bool) error {
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

	dir := filepath.Dir(file)
	if err := pullOne(ctx, c, dir, name, name+filepath.Ext(file)); err != nil {
		return err
	}
	if !shared.GetQuiet() {
		fmt.Printf("pulled %s from %s to %s\n", name, target.Name, file)
	}

	if ignoreDeps {
		return nil
	}

	deps, err := c.Dependencies(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}
	for _, dep := range deps {
		if err := pullOne(ctx, c, dir, dep, dep+".yaml"); err != nil {
			return err
		}
		if !shared.GetQuiet() {
			fmt.Printf("pulled %s from %s\n", dep, target.Name)
		}
	}
	return nil
}

func pullOne(ctx context.Context, c *client.Client, dir, name, filename string) error {
	data, err := c.Pull(ctx, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
