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

package prompt

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter implements Prompter with the survey library.
type SurveyPrompter struct {
	interactive bool
}

// NewSurveyPrompter creates a prompter. interactive should be false for
// non-TTY/CI invocations, where any Prompt* call returns an error instead
// of blocking on stdin.
func NewSurveyPrompter(interactive bool) *SurveyPrompter {
	return &SurveyPrompter{interactive: interactive}
}

func (sp *SurveyPrompter) PromptString(ctx context.Context, message, def string) (string, error) {
	if !sp.interactive {
		return "", fmt.Errorf("cannot prompt in non-interactive mode")
	}
	var result string
	err := survey.AskOne(&survey.Input{Message: message, Default: def}, &result)
	return result, err
}

func (sp *SurveyPrompter) PromptSecret(ctx context.Context, message string) (string, error) {
	if !sp.interactive {
		return "", fmt.Errorf("cannot prompt in non-interactive mode")
	}
	var result string
	err := survey.AskOne(&survey.Password{Message: message}, &result)
	return result, err
}

func (sp *SurveyPrompter) PromptSelect(ctx context.Context, message string, options []string) (string, error) {
	if !sp.interactive {
		return "", fmt.Errorf("cannot prompt in non-interactive mode")
	}
	if len(options) == 0 {
		return "", fmt.Errorf("no options to choose from")
	}
	var result string
	err := survey.AskOne(&survey.Select{Message: message, Options: options}, &result)
	return result, err
}

func (sp *SurveyPrompter) PromptConfirm(ctx context.Context, message string, def bool) (bool, error) {
	if !sp.interactive {
		return false, fmt.Errorf("cannot prompt in non-interactive mode")
	}
	var result bool
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &result)
	return result, err
}

func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}
