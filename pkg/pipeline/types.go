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

// Package pipeline defines the versioned pipeline document and drives it
// to completion: parsing, dependency resolution, expression binding,
// step execution, artifact transfer and teardown.
package pipeline

// Version identifies which document shape a pipeline was authored in.
type Version string

const (
	V1 Version = "v1"
	V2 Version = "v2"
	V3 Version = "v3"
)

// Artifact is a copy-in/copy-out instruction attached to a pipeline.
type Artifact struct {
	Method       string `yaml:"method"` // "get" or "put"
	From         string `yaml:"from"`
	To           string `yaml:"to"`
	After        string `yaml:"after,omitempty"`
	IgnoreErrors bool   `yaml:"ignore_errors,omitempty"`
}

// External references another pipeline or a named action.
type External struct {
	Uses   string            `yaml:"uses"`
	With   map[string]string `yaml:"with,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`
	Server string            `yaml:"server,omitempty"`
}

// ShellCommand is the structured step form common to v1/v2/v3.
type ShellCommand struct {
	ID         string `yaml:"id,omitempty"`
	Name       string `yaml:"name,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty"`
	Condition  string `yaml:"condition,omitempty"`
	Run        string `yaml:"run"`
	Outputs    bool   `yaml:"outputs,omitempty"`
}

// StepKind distinguishes the three step variants the YAML tag resolves to.
type StepKind int

const (
	StepShell StepKind = iota
	StepComplex
	StepExternal
)

// Step is one of: a bare shell string, a structured shell command, or an
// external-file reference. Exactly one of the corresponding fields is set,
// selected by Kind.
type Step struct {
	Kind     StepKind
	Shell    string
	Complex  *ShellCommand
	External *External
}

// ID returns the step's declared id, or "" if it has none (bare shell
// steps and external steps never have one).
func (s *Step) ID() string {
	if s.Kind == StepComplex && s.Complex != nil {
		return s.Complex.ID
	}
	return ""
}

// Document is the common shape every version normalizes into after
// parsing, so the Runner never branches on Version past load time.
type Document struct {
	Version     Version
	Name        string
	RunsOn      string
	Cron        string
	Dispose     bool // default true; false keeps resources alive past a successful run
	Environment map[string]string
	Variables   map[string]string
	Artifacts   []Artifact
	External    []External

	// Jobs holds the step list(s). v1/v2 populate a single implicit job
	// named "" (the empty string); v3 populates one entry per named job,
	// iterated in the order JobOrder lists (map-iteration order is not
	// deterministic across runs, so load preserves declaration order here).
	Jobs     map[string][]Step
	JobOrder []string
}
