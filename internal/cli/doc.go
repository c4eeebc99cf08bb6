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

/*
Package cli provides the root command and shared configuration for bld's CLI.

This package creates the main Cobra command tree and handles global concerns
like version information, persistent flags, and error handling. Individual
commands live in internal/cli/commands subpackages.

# Command Tree

	bld
	├── init          Create .bld/config.yaml
	├── config        Show local+remote config
	├── login         Cache a bearer token for a remote server
	├── push          Upload a pipeline document
	├── pull          Download a pipeline document
	├── list          List pipelines known to a server
	├── inspect       Show a pipeline's dependency graph
	├── rm            Remove a pipeline from a server
	├── run           Start a pipeline run
	├── stop          Stop a running pipeline
	├── hist          List past runs
	├── monit         Stream a run's log
	├── server        Start the intake/monitor HTTP server
	├── supervisor    Start the worker queue supervisor
	├── worker        Run a single pipeline (spawned by the supervisor)
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose        Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Error Handling

HandleExitError maps blderr.Kind to the process exit code and prints a
one-line message to stderr, matching §7's "CLIs print one-line errors to
stderr and return non-zero."
*/
package cli
