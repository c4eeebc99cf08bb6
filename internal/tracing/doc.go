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

/*
Package tracing provides OpenTelemetry-based distributed tracing for bld:
one span per pipeline run, one nested span per step, parent-linked
across a nested local runner (an `external` step with no `server`) and
across a delegated run on another bld server (an `external` step with
`server` set, via W3C trace context propagated over HTTP).

# Quick start

	cfg := tracing.FromConfigSource("bld-worker", tracing.ConfigSource{
	    Enabled:  true,
	    Exporter: "otlp",
	    Endpoint: "localhost:4317",
	})
	provider, err := tracing.NewProvider(ctx, cfg)
	...
	defer provider.Shutdown(ctx)

	runner := pipeline.New(doc, pipeline.Options{
	    ...
	    Tracer: provider.Tracer("github.com/kani-maki-gang/bld/pkg/pipeline"),
	})

A disabled Config still yields a valid Provider whose sampler drops
every span (nothing is recorded or exported), so a Runner never needs
to nil-check its Tracer against configuration state.

# HTTP propagation

The server wraps every request with CorrelationMiddleware,
HTTPMiddleware, and TracingMiddleware, so an incoming `external` step
delegation that already carries a trace context continues that trace
instead of starting a disconnected one.
*/
package tracing
