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
	"fmt"
	"time"

	"github.com/kani-maki-gang/bld/internal/tracing/export"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns one process's TracerProvider: a server, supervisor, and
// worker each build their own from a Config at startup.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a Provider from cfg: a resource naming the service,
// the sampler cfg.Sampling describes, and a batch span processor per
// configured exporter. A disabled Config still returns a valid Provider
// whose sampler is sdktrace.NeverSample, so callers never need a nil
// check. An enabled Config with no exporters samples spans but exports
// them nowhere.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL to avoid conflicts with the default resource
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	sampler := NewSampler(SamplerConfig{
		Enabled:            cfg.Sampling.Enabled,
		Rate:               cfg.Sampling.Rate,
		AlwaysSampleErrors: cfg.Sampling.AlwaysSampleErrors,
	})
	if !cfg.Enabled {
		sampler = sdktrace.NeverSample()
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	for _, ec := range cfg.Exporters {
		exporter, err := buildExporter(ctx, ec)
		if err != nil {
			return nil, fmt.Errorf("tracing: build exporter %q: %w", ec.Type, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(batchSizeOrDefault(cfg.BatchSize)),
			sdktrace.WithBatchTimeout(batchIntervalOrDefault(cfg.BatchInterval)),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

func buildExporter(ctx context.Context, ec ExporterConfig) (sdktrace.SpanExporter, error) {
	switch ec.Type {
	case "otlp":
		return export.NewOTLPExporter(ctx, export.OTLPConfig{
			Endpoint: ec.Endpoint,
			Insecure: !ec.TLS.Enabled,
			Headers:  ec.Headers,
		})
	case "otlp-http":
		return export.NewOTLPHTTPExporter(ctx, export.OTLPHTTPConfig{
			Endpoint: ec.Endpoint,
			Insecure: !ec.TLS.Enabled,
			Headers:  ec.Headers,
		})
	case "console", "":
		return export.NewDefaultConsoleExporter()
	default:
		return nil, fmt.Errorf("unknown exporter type %q", ec.Type)
	}
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return 512
	}
	return n
}

func batchIntervalOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Tracer returns a tracer for the given instrumentation scope (e.g. a
// package path), matching otel.Tracer's own signature so callers never
// need to import this package just to start a span.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes any pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}
