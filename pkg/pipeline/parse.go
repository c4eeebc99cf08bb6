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

package pipeline

import (
	"fmt"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"gopkg.in/yaml.v3"
)

type versionProbe struct {
	Version Version `yaml:"version"`
}

// rawArtifact/rawExternal mirror Artifact/External's YAML shape exactly;
// Document reuses the same types directly since no version changes them.

type rawShellCommand struct {
	ID         string `yaml:"id,omitempty"`
	Name       string `yaml:"name,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty"`
	Condition  string `yaml:"condition,omitempty"`
	Run        string `yaml:"run"`
	Outputs    bool   `yaml:"outputs,omitempty"`
}

type rawStep struct {
	value any
}

func (s *rawStep) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var str string
		if err := node.Decode(&str); err != nil {
			return err
		}
		s.value = str
		return nil
	case yaml.MappingNode:
		// An external-file reference always carries `uses`; anything else
		// is the structured shell form.
		var probe struct {
			Uses string `yaml:"uses"`
		}
		if err := node.Decode(&probe); err == nil && probe.Uses != "" {
			var ext External
			if err := node.Decode(&ext); err != nil {
				return err
			}
			s.value = &ext
			return nil
		}
		var cmd rawShellCommand
		if err := node.Decode(&cmd); err != nil {
			return err
		}
		s.value = &cmd
		return nil
	default:
		return fmt.Errorf("pipeline: step must be a string or mapping, got %v", node.Kind)
	}
}

func (s *rawStep) toStep() Step {
	switch v := s.value.(type) {
	case string:
		return Step{Kind: StepShell, Shell: v}
	case *External:
		return Step{Kind: StepExternal, External: v}
	case *rawShellCommand:
		return Step{Kind: StepComplex, Complex: &ShellCommand{
			ID:         v.ID,
			Name:       v.Name,
			WorkingDir: v.WorkingDir,
			Condition:  v.Condition,
			Run:        v.Run,
			Outputs:    v.Outputs,
		}}
	default:
		return Step{}
	}
}

type rawV1V2 struct {
	Name        string            `yaml:"name"`
	RunsOn      string            `yaml:"runs_on"`
	Cron        string            `yaml:"cron,omitempty"`
	Dispose     *bool             `yaml:"dispose,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"`
	Artifacts   []Artifact        `yaml:"artifacts,omitempty"`
	External    []External        `yaml:"external,omitempty"`
	Steps       []rawStep         `yaml:"steps,omitempty"`
}

type rawV3 struct {
	Name        string              `yaml:"name"`
	RunsOn      string              `yaml:"runs_on"`
	Cron        string              `yaml:"cron,omitempty"`
	Dispose     *bool               `yaml:"dispose,omitempty"`
	Environment map[string]string   `yaml:"environment,omitempty"`
	Variables   map[string]string   `yaml:"variables,omitempty"`
	Artifacts   []Artifact          `yaml:"artifacts,omitempty"`
	External    []External          `yaml:"external,omitempty"`
	Jobs        yaml.Node           `yaml:"jobs"`
}

// Parse deserializes a pipeline document, dispatching on its `version`
// field to the matching shape and normalizing the result into a single
// common Document.
func Parse(data []byte) (*Document, error) {
	const op = "pipeline.Parse"

	var probe versionProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, blderr.New(blderr.Yaml, op, err)
	}

	switch probe.Version {
	case V1, V2, "":
		var raw rawV1V2
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, blderr.New(blderr.Yaml, op, err)
		}
		version := probe.Version
		if version == "" {
			version = V1
		}
		return normalizeV1V2(version, raw), nil

	case V3:
		var raw rawV3
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, blderr.New(blderr.Yaml, op, err)
		}
		return normalizeV3(raw)

	default:
		return nil, blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("unknown pipeline version %q", probe.Version))
	}
}

func normalizeV1V2(version Version, raw rawV1V2) *Document {
	steps := make([]Step, len(raw.Steps))
	for i, s := range raw.Steps {
		steps[i] = s.toStep()
	}

	return &Document{
		Version:     version,
		Name:        raw.Name,
		RunsOn:      raw.RunsOn,
		Cron:        raw.Cron,
		Dispose:     boolOrDefault(raw.Dispose, true),
		Environment: raw.Environment,
		Variables:   raw.Variables,
		Artifacts:   raw.Artifacts,
		External:    raw.External,
		Jobs:        map[string][]Step{"": steps},
		JobOrder:    []string{""},
	}
}

func normalizeV3(raw rawV3) (*Document, error) {
	const op = "pipeline.normalizeV3"

	if raw.Jobs.Kind != yaml.MappingNode {
		return nil, blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("v3 jobs must be a mapping"))
	}

	jobs := make(map[string][]Step)
	var order []string

	for i := 0; i < len(raw.Jobs.Content); i += 2 {
		keyNode := raw.Jobs.Content[i]
		valNode := raw.Jobs.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return nil, blderr.New(blderr.Yaml, op, err)
		}

		var rawSteps []rawStep
		if err := valNode.Decode(&rawSteps); err != nil {
			return nil, blderr.New(blderr.Yaml, op, err)
		}

		steps := make([]Step, len(rawSteps))
		for j, s := range rawSteps {
			steps[j] = s.toStep()
		}

		jobs[name] = steps
		order = append(order, name)
	}

	return &Document{
		Version:     V3,
		Name:        raw.Name,
		RunsOn:      raw.RunsOn,
		Cron:        raw.Cron,
		Dispose:     boolOrDefault(raw.Dispose, true),
		Environment: raw.Environment,
		Variables:   raw.Variables,
		Artifacts:   raw.Artifacts,
		External:    raw.External,
		Jobs:        jobs,
		JobOrder:    order,
	}, nil
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
