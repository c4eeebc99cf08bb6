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

package cli

import (
	"fmt"
	"os"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"github.com/kani-maki-gang/bld/internal/cli/shared"
	"github.com/spf13/cobra"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for bld.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bld",
		Short: "bld - distributed CI pipeline runner",
		Long: `bld runs CI pipelines defined in YAML, either locally or against a
server/supervisor/worker pool distributed over a network.

Run 'bld init' to create a project's .bld/config.yaml.
Run 'bld run --pipeline <name>' to execute a pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVar(verbose, "verbose", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: .bld/config.yaml)")

	return cmd
}

// GetVersion returns version information.
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err to stderr and exits with blderr's mapped code,
// the same Kind -> exit code mapping the core uses internally.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(blderr.ExitCode(err))
}
