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

// Package push implements `bld push`.
package push

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/localsource"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/client"
	"github.com/kani-maki-gang/bld/pkg/pipeline"
)

// NewCommand creates the `push` command.
func NewCommand() *cobra.Command {
	var name, server, file string
	var ignoreDeps bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload a pipeline document, and its local dependencies, to a server",
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
	cmd.Flags().StringVar(&file, "file", "", "Local YAML file (default: <pipeline>.yaml)")
	cmd.Flags().BoolVar(&ignoreDeps, "ignore-deps", false, "Push only this pipeline, not the local files it depends on")
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

	names := []string{name}
	if !ignoreDeps {
		src := localsource.New(filepath.Dir(file))
		deps, err := pipeline.Dependencies(src, name)
		if err != nil {
			return fmt.Errorf("resolve local dependencies: %w", err)
		}
		for dep := range deps {
			names = append(names, dep)
		}
	}

	for _, n := range names {
		if err := pushOne(ctx, c, filepath.Dir(file), n); err != nil {
			return err
		}
		if !shared.GetQuiet() {
			fmt.Printf("pushed %s to %s\n", n, target.Name)
		}
	}
	return nil
}

func pushOne(ctx context.Context, c *client.Client, dir, name string) error {
	data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return fmt.Errorf("read %s.yaml: %w", name, err)
	}
	return c.Push(ctx, name, data)
}
