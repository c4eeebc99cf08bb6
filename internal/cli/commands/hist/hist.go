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

// Package hist implements `bld hist`.
package hist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/format"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/client"
)

// NewCommand creates the `hist` command.
func NewCommand() *cobra.Command {
	var pipeline, server string
	var states []string
	var limit int

	cmd := &cobra.Command{
		Use:   "hist",
		Short: "Show past and in-flight pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), pipeline, server, states, limit)
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Restrict to one pipeline")
	cmd.Flags().StringVar(&server, "server", "", "Remote server name (default: local.server)")
	cmd.Flags().StringArrayVar(&states, "state", nil, "Restrict to these run states (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to return")
	return cmd
}

func run(ctx context.Context, pipeline, server string, states []string, limit int) error {
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

	runs, err := c.History(ctx, client.HistoryFilter{
		Pipeline: pipeline,
		States:   states,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	headers := []string{"ID", "PIPELINE", "STATE", "USER", "START", "END"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		end := ""
		if r.EndDateTime != nil {
			end = r.EndDateTime.Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{
			r.ID,
			r.Name,
			shared.RenderState(string(r.State)),
			r.User,
			r.StartDateTime.Format("2006-01-02 15:04:05"),
			end,
		}
	}
	fmt.Print(format.Table(headers, rows))
	return nil
}
