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

// Package worker implements `bld worker`, the subcommand the supervisor
// spawns as a child process for each enqueued run.
package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	orchworker "github.com/kani-maki-gang/bld/internal/orchestration/worker"
)

// NewCommand creates the `worker` command.
func NewCommand() *cobra.Command {
	var pipeline, runID string
	var variables, environment []string

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one pipeline to completion (invoked by the supervisor)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" || runID == "" {
				return fmt.Errorf("--pipeline and --run-id are required")
			}
			vars, err := parseKV(variables)
			if err != nil {
				return fmt.Errorf("--variable: %w", err)
			}
			env, err := parseKV(environment)
			if err != nil {
				return fmt.Errorf("--environment: %w", err)
			}

			cfg, err := cli.LoadConfig(shared.GetConfigPath())
			if err != nil {
				return err
			}

			code := orchworker.Run(cmd.Context(), cfg, orchworker.Params{
				RunID:       runID,
				Pipeline:    pipeline,
				Variables:   vars,
				Environment: env,
			})
			os.Exit(code)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id assigned by the server (required)")
	cmd.Flags().StringArrayVar(&variables, "variable", nil, "Pipeline variable k=v (repeatable)")
	cmd.Flags().StringArrayVar(&environment, "environment", nil, "Environment variable k=v (repeatable)")
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
