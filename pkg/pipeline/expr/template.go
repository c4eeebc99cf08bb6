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
	"regexp"
	"strconv"
	"strings"

	"github.com/kani-maki-gang/bld/internal/blderr"
)

// templatePattern distinguishes `${{ … }}` occurrences from raw text.
var templatePattern = regexp.MustCompile(`\$\{\{(.*?)\}\}`)

// ParseTemplate extracts and trims every expression body found inside
// `${{ }}` delimiters in text, for use at validate time (§4.D step 2)
// where bodies are checked for well-formedness without a bound context.
func ParseTemplate(text string) ([]string, error) {
	if !strings.Contains(text, "${{") && !strings.Contains(text, "}}") {
		return nil, nil
	}
	if strings.Count(text, "${{") != strings.Count(text, "}}") {
		return nil, fmt.Errorf("unbalanced ${{ }} delimiters in %q", text)
	}

	matches := templatePattern.FindAllStringSubmatch(text, -1)
	exprs := make([]string, 0, len(matches))
	for _, m := range matches {
		exprs = append(exprs, strings.TrimSpace(m[1]))
	}
	return exprs, nil
}

// Substitute replaces every `${{ expr }}` occurrence in text with the
// stringified result of evaluating expr against ctx, for shell-command
// resolution (§4.D Step semantics).
func Substitute(text string, e *Evaluator, ctx *Context, currentJob string) (string, error) {
	const op = "expr.Substitute"

	var evalErr error
	result := templatePattern.ReplaceAllStringFunc(text, func(match string) string {
		body := strings.TrimSpace(match[3 : len(match)-2])

		value, err := e.Eval(body, ctx, currentJob)
		if err != nil {
			evalErr = err
			return match
		}
		return stringify(value)
	})

	if evalErr != nil {
		return "", blderr.New(blderr.Expression, op, evalErr)
	}

	return result, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
