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

// Package server implements `bld server`, the HTTP intake process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/auth"
	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/kani-maki-gang/bld/internal/fs"
	orchserver "github.com/kani-maki-gang/bld/internal/orchestration/server"
	"github.com/kani-maki-gang/bld/internal/schedule"
	"github.com/kani-maki-gang/bld/internal/store"
	"github.com/kani-maki-gang/bld/internal/tracing"
)

// NewCommand creates the `server` command.
func NewCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP intake process",
		Long: `server accepts pipeline submissions over HTTP, persists run state,
dispatches work to a connected supervisor over its control WebSocket,
and serves /metrics for Prometheus scraping.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Override local.server.host")
	cmd.Flags().IntVar(&port, "port", 0, "Override local.server.port")
	return cmd
}

func run(ctx context.Context, host string, port int) error {
	cfg, err := cli.LoadConfig(shared.GetConfigPath())
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Local.Server.Host = host
	}
	if port != 0 {
		cfg.Local.Server.Port = port
	}

	logger := slog.Default().With(slog.String("component", "server"))

	st, err := store.Open(cfg.Local.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pipelines, err := fs.NewServerStore(cfg.Local.Server.PipelinesDir)
	if err != nil {
		return fmt.Errorf("open pipeline store: %w", err)
	}

	var issuer *auth.Issuer
	if cfg.Local.Server.AuthToken != "" {
		issuer = auth.NewIssuer(cfg.Local.Server.AuthToken, 0)
	}

	provider, err := tracing.NewProvider(ctx, tracing.FromConfigSource("bld-server", tracing.ConfigSource{
		Enabled:    cfg.Local.Tracing.Enabled,
		Exporter:   cfg.Local.Tracing.Exporter,
		Endpoint:   cfg.Local.Tracing.Endpoint,
		SampleRate: cfg.Local.Tracing.SampleRate,
	}))
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	defer provider.Shutdown(context.Background())

	srv := orchserver.New(orchserver.Options{
		Runs:      st,
		Pipelines: pipelines,
		LogsDir:   cfg.Local.Server.LogsDir,
		Issuer:    issuer,
	})

	sched := schedule.New(pipelines, srv)
	if err := sched.Refresh(); err != nil {
		logger.Warn("initial schedule refresh failed", "error", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Local.Server.Host, cfg.Local.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
