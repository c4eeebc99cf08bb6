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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PipelineSpan wraps an OpenTelemetry span with the pipeline-run and
// step helpers the Runner needs. Its methods are nil-safe so a Runner
// built without a tracer (nested local runners reuse the parent's
// context, but a tracer-less caller can still pass a nil *PipelineSpan
// through the same call sites) never needs its own nil check.
type PipelineSpan struct {
	span trace.Span
}

// StartRun creates a root span for one pipeline run. Nested local
// runners call StartRun again against the same ctx, so the child span
// parents under the caller's run or step span automatically.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, pipelineName string) (context.Context, *PipelineSpan) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("run: %s", pipelineName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bld.pipeline", pipelineName),
			attribute.String("bld.run_id", runID),
			attribute.String("span.type", "run"),
		),
	)
	return ctx, &PipelineSpan{span: span}
}

// StartStep creates a span for one step execution within a run.
func StartStep(ctx context.Context, tracer trace.Tracer, job, label string) (context.Context, *PipelineSpan) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("step: %s", label),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bld.job", job),
			attribute.String("bld.step", label),
			attribute.String("span.type", "step"),
		),
	)
	return ctx, &PipelineSpan{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *PipelineSpan) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}

	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			otelAttrs = append(otelAttrs, attribute.String(k, val))
		case int:
			otelAttrs = append(otelAttrs, attribute.Int(k, val))
		case int64:
			otelAttrs = append(otelAttrs, attribute.Int64(k, val))
		case float64:
			otelAttrs = append(otelAttrs, attribute.Float64(k, val))
		case bool:
			otelAttrs = append(otelAttrs, attribute.Bool(k, val))
		default:
			otelAttrs = append(otelAttrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	s.span.SetAttributes(otelAttrs...)
}

// AddEvent records a timestamped event within the span.
func (s *PipelineSpan) AddEvent(name string, attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}

	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			otelAttrs = append(otelAttrs, attribute.String(k, val))
		case int:
			otelAttrs = append(otelAttrs, attribute.Int(k, val))
		case int64:
			otelAttrs = append(otelAttrs, attribute.Int64(k, val))
		case float64:
			otelAttrs = append(otelAttrs, attribute.Float64(k, val))
		case bool:
			otelAttrs = append(otelAttrs, attribute.Bool(k, val))
		default:
			otelAttrs = append(otelAttrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	s.span.AddEvent(name, trace.WithAttributes(otelAttrs...))
}

// RecordError records an error that occurred during execution and sets
// the span's status to Error.
func (s *PipelineSpan) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as having completed successfully.
func (s *PipelineSpan) SetOK() {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End marks the span as complete.
func (s *PipelineSpan) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// TraceID returns the trace ID as a string, or "" if s is nil.
func (s *PipelineSpan) TraceID() string {
	if s == nil || s.span == nil {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}
