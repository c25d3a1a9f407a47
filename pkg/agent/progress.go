// Copyright 2025 Kadir Pekel
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

package agent

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// progressEvery publishes every Nth assistant text event.
	progressEvery = 5
	// progressGrowth publishes early when the text grew this much.
	progressGrowth = 50
	// progressMaxLen truncates progress content.
	progressMaxLen = 200
)

// progressThrottle decides which streamed events surface as chat
// progress. Without it a chatty session floods the project chat.
type progressThrottle struct {
	count    int
	lastLen  int
	lastText string
}

func newProgressThrottle() *progressThrottle {
	return &progressThrottle{}
}

// onText considers an assistant text chunk. It fires on every Nth event
// or when the text grew substantially since the last published chunk.
func (p *progressThrottle) onText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text == p.lastText {
		return "", false
	}
	p.count++

	grown := len(text)-p.lastLen > progressGrowth
	if p.count%progressEvery != 0 && !grown {
		return "", false
	}
	p.lastLen = len(text)
	p.lastText = text
	return truncate(text, progressMaxLen), true
}

// onTool considers a tool invocation. Tool events are sparse and
// informative, so they always surface.
func (p *progressThrottle) onTool(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	return text, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	for len(string(runes)) > max {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// formatToolUse renders a tool invocation as a short human-readable
// progress line.
func formatToolUse(tool string, input map[string]any) string {
	arg := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := input[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	switch strings.ToLower(tool) {
	case "read":
		if path := arg("file_path", "path"); path != "" {
			return fmt.Sprintf("Reading %s", filepath.Base(path))
		}
		return "Reading a file"
	case "write":
		if path := arg("file_path", "path"); path != "" {
			return fmt.Sprintf("Writing %s", filepath.Base(path))
		}
		return "Writing a file"
	case "edit", "multiedit":
		if path := arg("file_path", "path"); path != "" {
			return fmt.Sprintf("Editing %s", filepath.Base(path))
		}
		return "Editing a file"
	case "bash":
		if cmd := arg("command"); cmd != "" {
			return fmt.Sprintf("Running: %s", truncate(cmd, 60))
		}
		return "Running a command"
	case "glob", "grep":
		if pattern := arg("pattern"); pattern != "" {
			return fmt.Sprintf("Searching for %s", truncate(pattern, 60))
		}
		return "Searching files"
	case "websearch":
		if q := arg("query"); q != "" {
			return fmt.Sprintf("Searching the web: %s", truncate(q, 60))
		}
		return "Searching the web"
	case "webfetch":
		if u := arg("url"); u != "" {
			return fmt.Sprintf("Fetching %s", truncate(u, 60))
		}
		return "Fetching a page"
	default:
		if tool == "" {
			return ""
		}
		return fmt.Sprintf("Using %s", tool)
	}
}
