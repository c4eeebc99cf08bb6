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

// Package run implements `bld run`.
package run

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/client"
)

// NewCommand creates the `run` command.
func NewCommand() *cobra.Command {
	var pipeline, server string
	var detach bool
	var variables, environment []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a pipeline for execution",
		Long: `run submits --pipeline to a server's /run route. Unless --detach is
given, it then follows the run's log over ws-exec until the run reaches
a terminal state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}
			vars, err := parseKV(variables)
			if err != nil {
				return fmt.Errorf("--variable: %w", err)
			}
			env, err := parseKV(environment)
			if err != nil {
				return fmt.Errorf("--environment: %w", err)
			}
			return exec(cmd.Context(), pipeline, server, detach, vars, env)
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Submit and return immediately without following the log")
	cmd.Flags().StringArrayVarP(&variables, "variable", "v", nil, "Pipeline variable k=v (repeatable)")
	cmd.Flags().StringArrayVarP(&environment, "environment", "e", nil, "Environment variable k=v (repeatable)")
	return cmd
}

func parseKV(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not in k=v form", p)
		}
		out[k] = v
	}
	return out, nil
}

func exec(ctx context.Context, pipeline, server string, detach bool, vars, env map[string]string) error {
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

	runID, err := c.Run(ctx, client.RunRequest{
		Pipeline:    pipeline,
		Variables:   vars,
		Environment: env,
	})
	if err != nil {
		return err
	}

	if detach {
		fmt.Println(runID)
		return nil
	}

	if !shared.GetQuiet() {
		fmt.Fprintf(os.Stderr, "run %s submitted, following log...\n", runID)
	}

	lines, err := c.Exec(ctx, runID)
	if err != nil {
		return err
	}
	for line := range lines {
		fmt.Println(line)
	}
	return nil
}
