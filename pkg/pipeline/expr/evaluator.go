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
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/kani-maki-gang/bld/internal/blderr"
)

// Evaluator compiles and evaluates `${{ … }}` bodies against a Context,
// caching compiled programs across calls (a pipeline may reference the
// same expression from many steps).
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New creates an expression evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// Eval evaluates a bare expression body (without the `${{ }}` wrapper)
// against ctx, scoped to currentJob for unqualified `steps.*` references.
func (e *Evaluator) Eval(expression string, ctx *Context, currentJob string) (any, error) {
	const op = "expr.Eval"

	prog, err := e.compile(expression)
	if err != nil {
		return nil, blderr.New(blderr.Expression, op, fmt.Errorf("compile %q: %w", expression, err))
	}

	result, err := expr.Run(prog, ctx.env(currentJob))
	if err != nil {
		return nil, blderr.New(blderr.Expression, op, fmt.Errorf("evaluate %q: %w", expression, err))
	}

	return result, nil
}

// EvalBool evaluates expression and boolean-coerces the result, per the
// `condition` step semantics.
func (e *Evaluator) EvalBool(expression string, ctx *Context, currentJob string) (bool, error) {
	const op = "expr.EvalBool"

	if expression == "" {
		return true, nil
	}

	result, err := e.Eval(expression, ctx, currentJob)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, blderr.New(blderr.Expression, op, fmt.Errorf("condition %q must evaluate to a boolean, got %T", expression, result))
	}

	return b, nil
}
