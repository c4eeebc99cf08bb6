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

// Package supervisor implements `bld supervisor`, the bounded worker
// queue process that dials a server's control channel and spawns
// `bld worker` child processes on its behalf.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	orchsupervisor "github.com/kani-maki-gang/bld/internal/orchestration/supervisor"
	"github.com/kani-maki-gang/bld/internal/tracing"
)

// refreshInterval is how often the queue reaps exited workers and
// promotes backlog entries, per §4.E.
const refreshInterval = 300 * time.Millisecond

// NewCommand creates the `supervisor` command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Run the bounded worker queue and dial a server's control channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	return cmd
}

func run(ctx context.Context) error {
	cfg, err := cli.LoadConfig(shared.GetConfigPath())
	if err != nil {
		return err
	}

	provider, err := tracing.NewProvider(ctx, tracing.FromConfigSource("bld-supervisor", tracing.ConfigSource{
		Enabled:    cfg.Local.Tracing.Enabled,
		Exporter:   cfg.Local.Tracing.Exporter,
		Endpoint:   cfg.Local.Tracing.Endpoint,
		SampleRate: cfg.Local.Tracing.SampleRate,
	}))
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	defer provider.Shutdown(context.Background())

	spawner := &orchsupervisor.ExecSpawner{BinaryPath: os.Args[0]}
	queue := orchsupervisor.NewQueue(cfg.Local.Supervisor.Workers, spawner, nil)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go queue.Run(ctx, refreshInterval)

	client := orchsupervisor.NewClient(cfg.Local.Supervisor.ServerURL, queue)
	client.Run(ctx)
	return nil
}
