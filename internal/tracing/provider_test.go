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

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabledStillProducesUsableTracer(t *testing.T) {
	cfg := DefaultConfig()

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Shutdown(context.Background())

	tracer := p.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "op")
	span.End()
	assert.NotNil(t, ctx)
}

func TestNewProviderWithConsoleExporter(t *testing.T) {
	cfg := FromConfigSource("bld-test", ConfigSource{
		Enabled:  true,
		Exporter: "console",
	})

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	tracer := p.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	cfg := FromConfigSource("bld-test", ConfigSource{
		Enabled:  true,
		Exporter: "carrier-pigeon",
	})

	_, err := NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}
