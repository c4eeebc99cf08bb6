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

package shared

import "github.com/charmbracelet/lipgloss"

// Status colors for PipelineRun states, reused by list/hist/inspect.
var (
	StatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	StatusFinished = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusFaulted  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	StatusQueued   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	Bold  = lipgloss.NewStyle().Bold(true)
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// RenderState colorizes a PipelineRun state string for terminal display.
func RenderState(state string) string {
	switch state {
	case "running":
		return StatusRunning.Render(state)
	case "finished":
		return StatusFinished.Render(state)
	case "faulted":
		return StatusFaulted.Render(state)
	default:
		return StatusQueued.Render(state)
	}
}
