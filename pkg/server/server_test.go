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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/runtime"
	"github.com/kadirpekel/conductor/pkg/session"
)

const fakeAnalysis = "```json\n{\"roles\": [\"writer\"], \"reason\": \"test\", \"tasks\": {\"writer\": \"write it\"}}\n```"

type fakeSession struct {
	routes map[string]string
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

func newTestServer(t *testing.T, routes map[string]string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.BaseDir = t.TempDir()
	cfg.Store.Path = filepath.Join(t.TempDir(), "conductor.db")
	cfg.Orchestrator.HeartbeatDwell = time.Hour
	cfg.Orchestrator.HeartbeatInterval = time.Hour

	rt, err := runtime.New(cfg)
	require.NoError(t, err)
	rt.SetSessions(&fakeFactory{routes: routes})
	t.Cleanup(func() { rt.Close() })

	srv := New(rt, cfg.Server)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func completingRoutes() map[string]string {
	return map[string]string{
		"secretary of an AI project team": fakeAnalysis,
		"on a project team":               "the document is written",
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, completingRoutes())

	var body map[string]any
	code := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, completingRoutes())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateProjectValidation(t *testing.T) {
	_, ts := newTestServer(t, completingRoutes())

	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ts.URL+"/api/projects/", "not json", nil))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ts.URL+"/api/projects/", `{"requirement": ""}`, nil))
}

func TestProjectLifecycle(t *testing.T) {
	_, ts := newTestServer(t, completingRoutes())

	var proj project.Project
	code := postJSON(t, ts.URL+"/api/projects/", `{"requirement": "Write a short report"}`, &proj)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, proj.ID)
	require.NotEmpty(t, proj.Team)

	projURL := ts.URL + "/api/projects/" + proj.ID

	// The run finishes in the background.
	require.Eventually(t, func() bool {
		var got project.Project
		if getJSON(t, projURL+"/", &got) != http.StatusOK {
			return false
		}
		return got.Status == project.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	var list []project.Project
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/projects/", &list))
	require.Len(t, list, 1)
	assert.Equal(t, proj.ID, list[0].ID)

	var msgs []json.RawMessage
	assert.Equal(t, http.StatusOK, getJSON(t, projURL+"/messages", &msgs))
	assert.NotEmpty(t, msgs)

	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, projURL+"/messages?limit=abc", nil))

	var files []json.RawMessage
	assert.Equal(t, http.StatusOK, getJSON(t, projURL+"/files", &files))

	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, projURL+"/files/content", nil))
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, projURL+"/files/content?path=nope.txt", nil))

	// A finished run cannot be cancelled.
	assert.Equal(t, http.StatusConflict,
		postJSON(t, projURL+"/cancel", "{}", nil))
}

func TestCancelProject(t *testing.T) {
	// Agents block until cancelled.
	_, ts := newTestServer(t, map[string]string{
		"secretary of an AI project team": fakeAnalysis,
	})

	var proj project.Project
	code := postJSON(t, ts.URL+"/api/projects/", `{"requirement": "Write a short report"}`, &proj)
	require.Equal(t, http.StatusCreated, code)

	projURL := ts.URL + "/api/projects/" + proj.ID
	assert.Equal(t, http.StatusAccepted, postJSON(t, projURL+"/cancel", "{}", nil))

	require.Eventually(t, func() bool {
		var got project.Project
		if getJSON(t, projURL+"/", &got) != http.StatusOK {
			return false
		}
		return got.Status == project.StatusPaused
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUnknownProjectRoutes(t *testing.T) {
	_, ts := newTestServer(t, completingRoutes())

	base := ts.URL + "/api/projects/missing"
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/messages", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/files", nil))
	assert.Equal(t, http.StatusNotFound, postJSON(t, base+"/cancel", "{}", nil))
}

func TestHubSubscriptionFiltering(t *testing.T) {
	hub := NewHub()
	c := &wsClient{
		send:     make(chan Envelope, 4),
		projects: make(map[string]bool),
	}
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	// No subscriptions: receive everything.
	hub.Publish("p1", "new_message", "hello")
	require.Len(t, c.send, 1)
	env := <-c.send
	assert.Equal(t, "new_message", env.Type)
	assert.Equal(t, "p1", env.ProjectID)

	// Subscribed to p1 only: p2 events are filtered out.
	c.setSubscription("p1", true)
	hub.Publish("p2", "new_message", "other")
	hub.Publish("p1", "new_message", "mine")
	require.Len(t, c.send, 1)
	env = <-c.send
	assert.Equal(t, "p1", env.ProjectID)

	c.setSubscription("p1", false)
	hub.Publish("p2", "new_message", "back to all")
	require.Len(t, c.send, 1)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	c := &wsClient{
		send:     make(chan Envelope, 1),
		projects: make(map[string]bool),
	}
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()
	require.Equal(t, 1, hub.ClientCount())

	hub.Publish("p1", "new_message", "fills the buffer")
	hub.Publish("p1", "new_message", "overflows")

	assert.Equal(t, 0, hub.ClientCount())
	// The hub closed the channel; the buffered event is still readable.
	env, ok := <-c.send
	assert.True(t, ok)
	assert.Equal(t, "p1", env.ProjectID)
	_, ok = <-c.send
	assert.False(t, ok)
}
