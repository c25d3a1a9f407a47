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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottleEveryNth(t *testing.T) {
	p := newProgressThrottle()

	var fired []string
	for i := 0; i < 12; i++ {
		if text, ok := p.onText(fmt.Sprintf("s%d", i)); ok {
			fired = append(fired, text)
		}
	}
	assert.Equal(t, []string{"s4", "s9"}, fired)
}

func TestThrottleFiresOnGrowth(t *testing.T) {
	p := newProgressThrottle()

	_, ok := p.onText("short")
	assert.False(t, ok)

	long := strings.Repeat("x", 120)
	text, ok := p.onText(long)
	assert.True(t, ok)
	assert.Equal(t, long, text)
}

func TestThrottleTruncates(t *testing.T) {
	p := newProgressThrottle()

	long := strings.Repeat("y", 400)
	text, ok := p.onText(long)
	assert.True(t, ok)
	assert.LessOrEqual(t, len(text), progressMaxLen+3)
	assert.True(t, strings.HasSuffix(text, "..."))
}

func TestThrottleSkipsEmptyAndRepeats(t *testing.T) {
	p := newProgressThrottle()

	for i := 0; i < 20; i++ {
		_, ok := p.onText("")
		assert.False(t, ok)
	}

	long := strings.Repeat("z", 100)
	_, ok := p.onText(long)
	assert.True(t, ok)
	// The same text again never re-fires.
	_, ok = p.onText(long)
	assert.False(t, ok)
}

func TestFormatToolUse(t *testing.T) {
	tests := []struct {
		tool  string
		input map[string]any
		want  string
	}{
		{"Read", map[string]any{"file_path": "/a/b/config.yaml"}, "Reading config.yaml"},
		{"Write", map[string]any{"file_path": "docs/prd.md"}, "Writing prd.md"},
		{"Edit", map[string]any{"file_path": "main.go"}, "Editing main.go"},
		{"Bash", map[string]any{"command": "go test ./..."}, "Running: go test ./..."},
		{"Grep", map[string]any{"pattern": "TODO"}, "Searching for TODO"},
		{"WebSearch", map[string]any{"query": "golang sqlite"}, "Searching the web: golang sqlite"},
		{"WebFetch", map[string]any{"url": "https://example.com"}, "Fetching https://example.com"},
		{"Read", nil, "Reading a file"},
		{"SomethingNew", nil, "Using SomethingNew"},
		{"", nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatToolUse(tt.tool, tt.input), tt.tool)
	}
}
