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

// Package shared holds the global flag values and version metadata every
// bld command package reads, set once by the root command.
package shared

// Global flag values, set by the root command's persistent flags.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers for the root command to bind its
// persistent flags to.
func RegisterFlagPointers() (verbose, quiet, json *bool, config *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets the version information, called from main.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the version, commit and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetVerbose reports whether -v/--verbose was passed.
func GetVerbose() bool { return verboseFlag }

// GetQuiet reports whether -q/--quiet was passed.
func GetQuiet() bool { return quietFlag }

// GetJSON reports whether --json was passed.
func GetJSON() bool { return jsonFlag }

// GetConfigPath returns the --config override, or "" for the default
// project-local .bld/config.yaml.
func GetConfigPath() string { return configFlag }

// SetConfigPathForTest overrides the config path outside of flag parsing.
func SetConfigPathForTest(path string) { configFlag = path }
