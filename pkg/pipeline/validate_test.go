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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFS struct {
	present map[string]bool
}

func (f fakeFS) Exists(path string) bool { return f.present[path] }

func TestValidateAcceptsWellFormedDocument(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepShell, Shell: "echo ${{ inputs.name }}"},
				{Kind: StepComplex, Complex: &ShellCommand{ID: "compile", Name: "compile", Run: "make"}},
			},
		},
		Artifacts: []Artifact{{Method: "put", From: "out", To: "s3://bucket/out", After: "compile"}},
	}
	require.NoError(t, Validate(doc, nil, nil))
}

func TestValidateRejectsDuplicateStepIDs(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepComplex, Complex: &ShellCommand{ID: "a", Run: "echo 1"}},
				{Kind: StepComplex, Complex: &ShellCommand{ID: "a", Run: "echo 2"}},
			},
		},
	}
	require.Error(t, Validate(doc, nil, nil))
}

func TestValidateRejectsArtifactAfterUnknownStep(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepComplex, Complex: &ShellCommand{ID: "a", Name: "a", Run: "echo 1"}},
			},
		},
		Artifacts: []Artifact{{Method: "put", From: "x", To: "y", After: "missing"}},
	}
	require.Error(t, Validate(doc, nil, nil))
}

func TestValidateRejectsMissingLocalExternal(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepExternal, External: &External{Uses: "missing.yaml"}},
			},
		},
	}
	require.Error(t, Validate(doc, fakeFS{present: map[string]bool{}}, nil))
}

func TestValidateAcceptsExternalWithConfiguredServer(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepExternal, External: &External{Uses: "remote-pipeline", Server: "ci"}},
			},
		},
	}
	require.NoError(t, Validate(doc, nil, map[string]bool{"ci": true}))
}

func TestValidateRejectsExternalWithUnconfiguredServer(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepExternal, External: &External{Uses: "remote-pipeline", Server: "ci"}},
			},
		},
	}
	err := Validate(doc, nil, map[string]bool{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ci")
}

func TestValidateRejectsMalformedExpression(t *testing.T) {
	doc := &Document{
		Jobs: map[string][]Step{
			"build": {
				{Kind: StepShell, Shell: "echo ${{ unterminated"},
			},
		},
	}
	require.Error(t, Validate(doc, nil, nil))
}
