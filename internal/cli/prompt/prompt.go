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

// Package prompt provides the small set of interactive prompts `bld init`
// and `bld login` need: picking a configured remote, confirming a token
// write, and reading a plain string. The OIDC/SSO login ceremony itself is
// an external collaborator and never reaches this package.
package prompt

import "context"

// Prompter is the interactive-input surface bld's CLI commands use.
type Prompter interface {
	// PromptString collects a free-form string, returning def if the user
	// enters nothing.
	PromptString(ctx context.Context, message, def string) (string, error)

	// PromptSecret collects a string without echoing it to the terminal,
	// used for auth_token/password entry.
	PromptSecret(ctx context.Context, message string) (string, error)

	// PromptSelect presents options and returns the chosen one.
	PromptSelect(ctx context.Context, message string, options []string) (string, error)

	// PromptConfirm asks a yes/no question, returning def if the user
	// just presses enter.
	PromptConfirm(ctx context.Context, message string, def bool) (bool, error)

	// IsInteractive reports whether prompts can actually be shown.
	IsInteractive() bool
}
