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

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalResolvesInputsAndEnv(t *testing.T) {
	ctx := NewContext("/root", "/proj", "run-1", "2026-01-01T00:00:00Z",
		map[string]string{"skip": "true"},
		map[string]string{"STAGE": "prod"})

	e := New()

	v, err := e.Eval(`inputs.skip`, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	v, err = e.Eval(`env.STAGE`, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "prod", v)

	v, err = e.Eval(`bld.root_dir`, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "/root", v)
}

func TestEvalBoolCoercesCondition(t *testing.T) {
	ctx := NewContext("", "", "", "", map[string]string{"skip": "true"}, nil)
	e := New()

	b, err := e.EvalBool(`inputs.skip == "true"`, ctx, "")
	require.NoError(t, err)
	assert.True(t, b)

	b, err = e.EvalBool(`inputs.skip == "false"`, ctx, "")
	require.NoError(t, err)
	assert.False(t, b)
}

func TestEvalBoolEmptyExpressionDefaultsTrue(t *testing.T) {
	e := New()
	b, err := e.EvalBool("", NewContext("", "", "", "", nil, nil), "")
	require.NoError(t, err)
	assert.True(t, b)
}

func TestEvalBoolRejectsNonBooleanResult(t *testing.T) {
	e := New()
	_, err := e.EvalBool(`inputs.skip`, NewContext("", "", "", "", map[string]string{"skip": "true"}, nil), "")
	require.Error(t, err)
}

func TestEvalResolvesStepOutputs(t *testing.T) {
	ctx := NewContext("", "", "", "", nil, nil)
	ctx.RecordOutputs("build", "compile", map[string]string{"version": "1.2.3"})

	e := New()

	v, err := e.Eval(`steps.compile.outputs.version`, ctx, "build")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	v, err = e.Eval(`jobs.build.steps.compile.outputs.version`, ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}

func TestEvalUndeclaredIdentifierErrors(t *testing.T) {
	e := New()
	_, err := e.Eval(`inputs.missing.deeper`, NewContext("", "", "", "", nil, nil), "")
	require.Error(t, err)
}

func TestCompileIsCached(t *testing.T) {
	e := New()
	ctx := NewContext("", "", "", "", map[string]string{"x": "1"}, nil)

	_, err := e.Eval(`inputs.x`, ctx, "")
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)

	_, err = e.Eval(`inputs.x`, ctx, "")
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}
