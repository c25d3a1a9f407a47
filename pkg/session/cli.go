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

package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// CLIFactory builds sessions backed by an external AI CLI executed as a
// subprocess in streaming JSON mode.
type CLIFactory struct {
	// Command is the executable name, e.g. "claude".
	Command string
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string
	// SkipPermissions passes the flag that disables interactive
	// permission prompts. Required for unattended execution.
	SkipPermissions bool
}

// NewSession creates a CLI session rooted at workDir. Each session gets
// a stable ID so repeated Execute calls continue one conversation.
func (f *CLIFactory) NewSession(workDir string) (Session, error) {
	if f.Command == "" {
		return nil, fmt.Errorf("executor command cannot be empty")
	}
	return &CLISession{
		command:         f.Command,
		extraArgs:       f.ExtraArgs,
		skipPermissions: f.SkipPermissions,
		workDir:         workDir,
		sessionID:       uuid.NewString(),
	}, nil
}

// CLISession drives one subprocess invocation per Execute call,
// resuming the same CLI conversation across calls via its session ID.
type CLISession struct {
	command         string
	extraArgs       []string
	skipPermissions bool
	workDir         string
	sessionID       string

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	cleaned bool
}

// streamRecord is one line of the CLI's stream-json output.
type streamRecord struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Message struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
	} `json:"message"`
}

func (s *CLISession) buildArgs(tools []string, resume bool) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if s.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if resume {
		args = append(args, "--resume", s.sessionID)
	} else {
		args = append(args, "--session-id", s.sessionID)
	}
	if len(tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(tools, ","))
	}
	return append(args, s.extraArgs...)
}

// Execute runs the CLI with the prompt on stdin and streams parsed
// events. The returned channel closes when the subprocess exits.
func (s *CLISession) Execute(ctx context.Context, prompt string, tools []string) (<-chan Event, error) {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s is closed", s.sessionID)
	}

	cmd := exec.CommandContext(ctx, s.command, s.buildArgs(tools, s.started)...)
	cmd.Dir = s.workDir
	cmd.Stdin = strings.NewReader(prompt)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to start %s: %w", s.command, err)
	}
	s.cmd = cmd
	s.started = true
	s.mu.Unlock()

	events := make(chan Event, 64)

	go func() {
		defer close(events)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		sawError := false

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var rec streamRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				slog.Debug("Skipping unparseable session output",
					"session_id", s.sessionID,
					"error", err)
				continue
			}

			switch rec.Type {
			case "assistant":
				for _, block := range rec.Message.Content {
					switch block.Type {
					case "text":
						if block.Text != "" {
							events <- Event{Kind: EventAssistant, Text: block.Text}
						}
					case "tool_use":
						events <- Event{
							Kind:      EventToolUse,
							Tool:      block.Name,
							ToolInput: block.Input,
						}
					}
				}
			case "result":
				if rec.IsError {
					sawError = true
					events <- Event{
						Kind: EventError,
						Err:  fmt.Errorf("execution failed: %s", rec.Result),
					}
				} else {
					events <- Event{Kind: EventResult, Text: rec.Result}
				}
			}
		}

		err := cmd.Wait()

		s.mu.Lock()
		s.cmd = nil
		s.mu.Unlock()

		if err != nil && !sawError {
			if ctx.Err() != nil {
				events <- Event{Kind: EventError, Err: ctx.Err()}
				return
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			events <- Event{Kind: EventError, Err: fmt.Errorf("%s exited: %s", s.command, msg)}
		}
	}()

	return events, nil
}

// Cleanup kills any in-flight subprocess and closes the session.
func (s *CLISession) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleaned {
		return nil
	}
	s.cleaned = true

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill session process: %w", err)
		}
	}
	return nil
}
