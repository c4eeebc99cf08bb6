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

// Package monit implements `bld monit`.
package monit

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/client"
)

// NewCommand creates the `monit` command.
func NewCommand() *cobra.Command {
	var runID, pipeline, server string
	var last bool

	cmd := &cobra.Command{
		Use:   "monit",
		Short: "Follow a run's log until it reaches a terminal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runID, pipeline, server, last)
		},
	}

	cmd.Flags().StringVar(&runID, "pipeline-id", "", "Run id to follow")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Follow the most recent run of this pipeline")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	cmd.Flags().BoolVar(&last, "last", false, "Follow the most recent run on the server, any pipeline")
	return cmd
}

func run(ctx context.Context, runID, pipeline, server string, last bool) error {
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

	if runID == "" {
		if runID, err = resolveRunID(ctx, c, pipeline, last); err != nil {
			return err
		}
	}

	lines, err := c.Monitor(ctx, runID)
	if err != nil {
		return err
	}
	for line := range lines {
		fmt.Println(line)
	}
	return nil
}

// resolveRunID picks a run id from --pipeline's or the server's most
// recent history entry, for --pipeline and --last respectively.
func resolveRunID(ctx context.Context, c *client.Client, pipeline string, last bool) (string, error) {
	if pipeline == "" && !last {
		return "", fmt.Errorf("one of --pipeline-id, --pipeline, or --last is required")
	}

	runs, err := c.History(ctx, client.HistoryFilter{Pipeline: pipeline, Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found")
	}
	return runs[0].ID, nil
}
