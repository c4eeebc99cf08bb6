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

package main

import (
	"github.com/kani-maki-gang/bld/internal/cli"
	"github.com/kani-maki-gang/bld/internal/cli/commands/config"
	"github.com/kani-maki-gang/bld/internal/cli/commands/hist"
	"github.com/kani-maki-gang/bld/internal/cli/commands/init"
	"github.com/kani-maki-gang/bld/internal/cli/commands/inspect"
	"github.com/kani-maki-gang/bld/internal/cli/commands/list"
	"github.com/kani-maki-gang/bld/internal/cli/commands/login"
	"github.com/kani-maki-gang/bld/internal/cli/commands/monit"
	"github.com/kani-maki-gang/bld/internal/cli/commands/pull"
	"github.com/kani-maki-gang/bld/internal/cli/commands/push"
	"github.com/kani-maki-gang/bld/internal/cli/commands/rm"
	"github.com/kani-maki-gang/bld/internal/cli/commands/run"
	"github.com/kani-maki-gang/bld/internal/cli/commands/server"
	"github.com/kani-maki-gang/bld/internal/cli/commands/stop"
	"github.com/kani-maki-gang/bld/internal/cli/commands/supervisor"
	"github.com/kani-maki-gang/bld/internal/cli/commands/version"
	"github.com/kani-maki-gang/bld/internal/cli/commands/worker"
)

// Version information (injected via ldflags at build time)
var (
	buildVersion = "dev"
	commit       = "unknown"
	buildDate    = "unknown"
)

func main() {
	cli.SetVersion(buildVersion, commit, buildDate)

	root := cli.NewRootCommand()

	// Project setup
	root.AddCommand(init.NewCommand())
	root.AddCommand(config.NewCommand())
	root.AddCommand(login.NewCommand())

	// Pipeline document transfer
	root.AddCommand(push.NewCommand())
	root.AddCommand(pull.NewCommand())
	root.AddCommand(list.NewCommand())
	root.AddCommand(inspect.NewCommand())
	root.AddCommand(rm.NewCommand())

	// Execution
	root.AddCommand(run.NewCommand())
	root.AddCommand(stop.NewCommand())
	root.AddCommand(hist.NewCommand())
	root.AddCommand(monit.NewCommand())

	// Long-running processes
	root.AddCommand(server.NewCommand())
	root.AddCommand(supervisor.NewCommand())
	root.AddCommand(worker.NewCommand())

	root.AddCommand(version.NewCommand())

	if err := root.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
