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

// Package login implements `bld login`.
package login

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kani-maki-gang/bld/internal/auth"
	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/prompt"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
)

// NewCommand creates the `login` command.
func NewCommand() *cobra.Command {
	var server, user string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Mint and cache a bearer token for an auth-protected server",
		Long: `login exchanges a server's auth_token secret for a signed bearer
token and caches it (OS keychain when available, an encrypted file
otherwise) so later commands targeting the same server don't have to
be given the secret again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), server, user)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Remote server name from .bld/config.yaml (default: local.server)")
	cmd.Flags().StringVar(&user, "user", "", "Identity to embed in the token (default: $USER)")
	return cmd
}

func run(ctx context.Context, server, user string) error {
	cfg, err := cli.LoadConfig(shared.GetConfigPath())
	if err != nil {
		return err
	}

	target, err := cli.ResolveTarget(cfg, server)
	if err != nil {
		return err
	}

	p := prompt.NewSurveyPrompter(true)
	secret, err := p.PromptSecret(ctx, fmt.Sprintf("auth_token for %s", target.Name))
	if err != nil {
		return err
	}

	if user == "" {
		user = os.Getenv("USER")
		if user == "" {
			user = "bld"
		}
	}

	token, err := auth.NewIssuer(secret, 0).Issue(user)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	cache, err := cli.OpenTokenCache(shared.GetConfigPath())
	if err != nil {
		return err
	}
	if err := cache.Set(ctx, target.Name, token); err != nil {
		return fmt.Errorf("cache token: %w", err)
	}

	if !shared.GetQuiet() {
		fmt.Printf("logged in to %s as %s\n", target.Name, user)
	}
	return nil
}
