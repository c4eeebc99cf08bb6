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

func TestParseTemplateExtractsBodies(t *testing.T) {
	exprs, err := ParseTemplate(`echo ${{ inputs.name }} and ${{ env.STAGE }}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"inputs.name", "env.STAGE"}, exprs)
}

func TestParseTemplateNoExpressionsReturnsNil(t *testing.T) {
	exprs, err := ParseTemplate("echo hello")
	require.NoError(t, err)
	assert.Nil(t, exprs)
}

func TestParseTemplateRejectsUnbalancedDelimiters(t *testing.T) {
	_, err := ParseTemplate(`echo ${{ inputs.name }`)
	require.Error(t, err)
}

func TestSubstituteResolvesAndStringifies(t *testing.T) {
	ctx := NewContext("", "", "", "", map[string]string{"name": "bld"}, nil)
	e := New()

	out, err := Substitute(`echo hello ${{ inputs.name }}`, e, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "echo hello bld", out)
}

func TestSubstituteMultipleOccurrences(t *testing.T) {
	ctx := NewContext("", "", "", "", map[string]string{"a": "1", "b": "2"}, nil)
	e := New()

	out, err := Substitute(`${{ inputs.a }}-${{ inputs.b }}`, e, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "1-2", out)
}

func TestSubstituteNoOccurrencesIsUnchanged(t *testing.T) {
	ctx := NewContext("", "", "", "", nil, nil)
	e := New()

	out, err := Substitute("echo static", e, ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "echo static", out)
}
