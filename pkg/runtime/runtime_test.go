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

package runtime

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/session"
)

const fakeAnalysis = "```json\n{\"roles\": [\"writer\"], \"reason\": \"test\", \"tasks\": {\"writer\": \"write it\"}}\n```"

// fakeSession scripts responses by prompt content. Prompts that match
// no route block until the context is cancelled.
type fakeSession struct {
	routes map[string]string // substring -> result text
}

func (s *fakeSession) Execute(ctx context.Context, prompt string, tools []string) (<-chan session.Event, error) {
	out := make(chan session.Event, 2)
	go func() {
		defer close(out)
		for sub, text := range s.routes {
			if strings.Contains(prompt, sub) {
				out <- session.Event{Kind: session.EventResult, Text: text}
				return
			}
		}
		<-ctx.Done()
		out <- session.Event{Kind: session.EventError, Err: ctx.Err()}
	}()
	return out, nil
}

func (s *fakeSession) Cleanup() error { return nil }

type fakeFactory struct {
	routes map[string]string
}

func (f *fakeFactory) NewSession(workDir string) (session.Session, error) {
	return &fakeSession{routes: f.routes}, nil
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Publish(projectID, eventType string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

func (s *recordingSink) has(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev == eventType {
			return true
		}
	}
	return false
}

func newTestRuntime(t *testing.T, routes map[string]string) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.BaseDir = t.TempDir()
	cfg.Store.Path = filepath.Join(t.TempDir(), "conductor.db")
	cfg.Orchestrator.HeartbeatDwell = time.Hour
	cfg.Orchestrator.HeartbeatInterval = time.Hour

	rt, err := New(cfg)
	require.NoError(t, err)
	rt.SetSessions(&fakeFactory{routes: routes})
	t.Cleanup(func() { rt.Close() })
	return rt
}

func completingRoutes() map[string]string {
	return map[string]string{
		"secretary of an AI project team": fakeAnalysis,
		"on a project team":               "the document is written",
	}
}

func TestRunProjectCompletes(t *testing.T) {
	rt := newTestRuntime(t, completingRoutes())
	sink := &recordingSink{}
	rt.SetEvents(sink)

	proj, err := rt.RunProject(context.Background(), "Write a short report")
	require.NoError(t, err)

	assert.Equal(t, project.StatusCompleted, proj.GetStatus())
	assert.True(t, sink.has(EventProjectCreated))
	assert.True(t, sink.has(EventTeamFormed))
	assert.True(t, sink.has(EventNewMessage))
	assert.True(t, sink.has(EventProjectStatusChanged))

	// The terminal state is persisted.
	stored, err := rt.store.Get(context.Background(), proj.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusCompleted, stored.Status)
	assert.Positive(t, stored.MessageCount)

	msgs, err := rt.Messages(context.Background(), proj.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)
}

func TestMessagesLimit(t *testing.T) {
	rt := newTestRuntime(t, completingRoutes())

	proj, err := rt.RunProject(context.Background(), "Write a short report")
	require.NoError(t, err)

	all, err := rt.Messages(context.Background(), proj.ID, 0)
	require.NoError(t, err)
	require.Greater(t, len(all), 1)

	tail, err := rt.Messages(context.Background(), proj.ID, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, all[len(all)-1].ID, tail[0].ID)
}

func TestCancelProjectPauses(t *testing.T) {
	// Only the secretary prompt is routed; agents block until cancelled.
	rt := newTestRuntime(t, map[string]string{
		"secretary of an AI project team": fakeAnalysis,
	})

	proj, err := rt.StartProject(context.Background(), "Write a short report")
	require.NoError(t, err)
	require.NoError(t, rt.CancelProject(proj.ID))

	assert.Eventually(t, func() bool {
		p, err := rt.Project(context.Background(), proj.ID)
		return err == nil && p.GetStatus() == project.StatusPaused
	}, 5*time.Second, 10*time.Millisecond)

	// A finished run can no longer be cancelled.
	rt.mu.RLock()
	handle := rt.runs[proj.ID]
	rt.mu.RUnlock()
	<-handle.done
	assert.Error(t, rt.CancelProject(proj.ID))
}

func TestMessagesWhileRunning(t *testing.T) {
	// Agents block until cancelled, so the run stays in flight and the
	// live bus is not yet attached to the handle.
	rt := newTestRuntime(t, map[string]string{
		"secretary of an AI project team": fakeAnalysis,
	})

	proj, err := rt.StartProject(context.Background(), "Write a short report")
	require.NoError(t, err)

	// Mid-run reads replay the workspace log, which the bus persists in
	// real time.
	msgs, err := rt.Messages(context.Background(), proj.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)

	// Keep reading while the run unwinds and the bus is handed over.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := rt.Messages(context.Background(), proj.ID, 0); err != nil {
				return
			}
		}
	}()
	require.NoError(t, rt.CancelProject(proj.ID))
	<-done

	assert.Eventually(t, func() bool {
		p, err := rt.Project(context.Background(), proj.ID)
		return err == nil && p.GetStatus() == project.StatusPaused
	}, 5*time.Second, 10*time.Millisecond)

	// Post-run reads come from the retained bus.
	after, err := rt.Messages(context.Background(), proj.ID, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(after), len(msgs))
}

func TestCancelUnknownProject(t *testing.T) {
	rt := newTestRuntime(t, completingRoutes())
	assert.ErrorIs(t, rt.CancelProject("nope"), project.ErrProjectNotFound)
}

func TestProjectFallsBackToStore(t *testing.T) {
	rt := newTestRuntime(t, completingRoutes())

	_, err := rt.Project(context.Background(), "missing")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	proj, err := rt.RunProject(context.Background(), "Write a short report")
	require.NoError(t, err)

	list, err := rt.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, proj.ID, list[0].ID)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
