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

// Package session abstracts the external AI execution backend. A
// session is a long-lived conversation with an AI process: callers
// submit a prompt and consume a stream of events until the channel
// closes.
package session

import "context"

// EventKind discriminates streamed session events.
type EventKind string

const (
	// EventAssistant carries a chunk of assistant text output.
	EventAssistant EventKind = "assistant"
	// EventToolUse reports a tool invocation by the assistant.
	EventToolUse EventKind = "tool_use"
	// EventResult carries the final result text of an execution.
	EventResult EventKind = "result"
	// EventError reports a failure; the stream closes after it.
	EventError EventKind = "error"
)

// Event is one element of a session's output stream.
type Event struct {
	Kind      EventKind
	Text      string
	Tool      string
	ToolInput map[string]any
	Err       error
}

// Session is a single agent's conversation with the execution backend.
// Execute may be called repeatedly; each call continues the same
// underlying conversation.
type Session interface {
	// Execute submits a prompt and returns a stream of events. The
	// stream is closed when execution finishes or ctx is cancelled.
	Execute(ctx context.Context, prompt string, tools []string) (<-chan Event, error)

	// Cleanup terminates any running process and releases resources.
	// Idempotent.
	Cleanup() error
}

// Factory creates sessions. The working directory scopes the session's
// file access to the project workspace.
type Factory interface {
	NewSession(workDir string) (Session, error)
}
