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

package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/config"
)

func TestBuildMachineForEmptyOrMachineRunsOn(t *testing.T) {
	b := &PlatformBuilder{Config: config.DefaultConfig(), ScratchRoot: t.TempDir()}

	backend, err := b.Build(context.Background(), "machine", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, backend.ID())
	defer backend.Dispose(context.Background(), false)

	backend2, err := b.Build(context.Background(), "", nil)
	require.NoError(t, err)
	defer backend2.Dispose(context.Background(), false)
}

func TestDomainFromURIExtractsTrailingSegment(t *testing.T) {
	assert.Equal(t, "my-domain", domainFromURI("libvirt:///system/my-domain"))
	assert.Equal(t, "", domainFromURI("libvirt:///system/"))
	assert.Equal(t, "", domainFromURI("no-slash"))
}

func TestBuildSSHParsesUserHostPort(t *testing.T) {
	cfg := config.DefaultConfig()
	b := &PlatformBuilder{Config: cfg, ScratchRoot: t.TempDir()}

	// Dialing a guaranteed-closed local port should fail fast rather than
	// hang, exercising the parse path without a real SSH server.
	_, err := b.buildSSH("ssh://user@127.0.0.1:1/unused", nil)
	assert.Error(t, err)
}
