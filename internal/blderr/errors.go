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

// Package blderr defines the error taxonomy shared by the CLI, server,
// supervisor, worker and runner.
package blderr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for CLI exit codes and HTTP status mapping.
type Kind string

const (
	Config           Kind = "config"
	Io               Kind = "io"
	Yaml             Kind = "yaml"
	Network          Kind = "network"
	Auth             Kind = "auth"
	PipelineNotFound Kind = "pipeline_not_found"
	PipelineInvalid  Kind = "pipeline_invalid"
	Expression       Kind = "expression"
	PlatformFailure  Kind = "platform_failure"
	StepFailure      Kind = "step_failure"
	Cancelled        Kind = "cancelled"
	Internal         Kind = "internal"
)

// Error is the concrete error type produced by the core. It carries a Kind
// for classification, an Op describing what was being attempted, and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap creates a new error that wraps err with additional context. If err is
// nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// KindOf extracts the Kind from err's chain, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ExitCode maps a Kind to a CLI process exit code. All failures are
// non-zero per §6; the specific values distinguish common cases for
// scripting without over-specifying the protocol.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case PipelineNotFound:
		return 2
	case PipelineInvalid, Expression:
		return 3
	case Auth:
		return 4
	case Network:
		return 5
	default:
		return 1
	}
}

// HTTPStatus maps a Kind to the status code the server returns on 4xx/5xx
// per §6/§7. On 5xx the server returns an opaque string; on 4xx it returns
// the error's text body.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Auth:
		return http.StatusUnauthorized
	case PipelineNotFound:
		return http.StatusBadRequest
	case PipelineInvalid, Expression:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
