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

// Package runtime is the process-scoped composition root: it builds the
// registry, store, workspace manager, metrics, and session factory once
// and exposes the project facade used by both the CLI and the server.
// Nothing in here is a global; every dependency is threaded through
// explicitly.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/metrics"
	"github.com/kadirpekel/conductor/pkg/orchestrator"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/roles"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/pkg/workspace"
)

// Event types pushed to subscribers.
const (
	EventNewMessage           = "new_message"
	EventAgentStatusChanged   = "agent_status_changed"
	EventProjectCreated       = "project_created"
	EventTeamFormed           = "team_formed"
	EventProjectStatusChanged = "project_status_changed"
	EventFileChanged          = "file_changed"
)

// EventSink receives runtime events for fan-out to clients. The server
// hub implements it; the CLI runs without one.
type EventSink interface {
	Publish(projectID, eventType string, payload any)
}

// runHandle tracks one in-flight (or finished) orchestration.
type runHandle struct {
	proj   *project.Project
	bus    *chat.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

// Runtime owns all long-lived services of a conductor process.
type Runtime struct {
	cfg        *config.Config
	registry   *roles.Registry
	workspaces *workspace.Manager
	store      *project.Store
	metrics    *metrics.Metrics
	sessions   session.Factory

	mu     sync.RWMutex
	runs   map[string]*runHandle
	events EventSink
}

// New builds a runtime from config.
func New(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	workspaces, err := workspace.NewManager(cfg.Workspace.BaseDir)
	if err != nil {
		return nil, err
	}
	store, err := project.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	skip := true
	if cfg.Executor.SkipPermissions != nil {
		skip = *cfg.Executor.SkipPermissions
	}

	return &Runtime{
		cfg:        cfg,
		registry:   roles.DefaultRegistry(),
		workspaces: workspaces,
		store:      store,
		metrics:    metrics.New(),
		sessions: &session.CLIFactory{
			Command:         cfg.Executor.Command,
			ExtraArgs:       cfg.Executor.ExtraArgs,
			SkipPermissions: skip,
		},
		runs: make(map[string]*runHandle),
	}, nil
}

// SetSessions replaces the session factory. Used by tests.
func (rt *Runtime) SetSessions(factory session.Factory) {
	rt.sessions = factory
}

// SetEvents attaches an event sink.
func (rt *Runtime) SetEvents(sink EventSink) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.events = sink
}

// Workspaces returns the workspace manager.
func (rt *Runtime) Workspaces() *workspace.Manager {
	return rt.workspaces
}

// Metrics returns the process metrics.
func (rt *Runtime) Metrics() *metrics.Metrics {
	return rt.metrics
}

func (rt *Runtime) emit(projectID, eventType string, payload any) {
	rt.mu.RLock()
	sink := rt.events
	rt.mu.RUnlock()
	if sink != nil {
		sink.Publish(projectID, eventType, payload)
	}
}

// newEngine builds a per-run engine whose project callback both feeds
// the shared bookkeeping and the run-local notification.
func (rt *Runtime) newEngine(onProject func(*project.Project)) (*orchestrator.Engine, error) {
	return orchestrator.New(orchestrator.Config{
		Registry:          rt.registry,
		Workspaces:        rt.workspaces,
		Sessions:          rt.sessions,
		Metrics:           rt.metrics,
		HeartbeatDwell:    rt.cfg.Orchestrator.HeartbeatDwell,
		HeartbeatInterval: rt.cfg.Orchestrator.HeartbeatInterval,
		OnMessage: func(msg *chat.Message) {
			rt.emit(msg.ProjectID, EventNewMessage, msg)
		},
		OnStatusChange: func(projectID, memberID string, status project.AgentStatus) {
			rt.emit(projectID, EventAgentStatusChanged, map[string]any{
				"project_id": projectID,
				"member_id":  memberID,
				"status":     status,
			})
		},
		OnProjectUpdate: onProject,
	})
}

// StartProject forms a team for the requirement and runs the
// orchestration in the background. It returns once the project exists;
// the run continues until the cascade unwinds or CancelProject is
// called.
func (rt *Runtime) StartProject(ctx context.Context, requirement string) (*project.Project, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}

	ready := make(chan *project.Project, 1)
	var once sync.Once

	engine, err := rt.newEngine(func(proj *project.Project) {
		once.Do(func() {
			handle.proj = proj
			rt.mu.Lock()
			rt.runs[proj.ID] = handle
			rt.mu.Unlock()

			rt.saveProject(proj)
			rt.emit(proj.ID, EventProjectCreated, proj)
			rt.emit(proj.ID, EventTeamFormed, proj.Team)
			ready <- proj
		})
	})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer close(handle.done)

		proj, bus, err := engine.Run(runCtx, requirement)
		rt.mu.Lock()
		handle.bus = bus
		rt.mu.Unlock()
		rt.finishRun(runCtx, proj, err)
		if bus != nil {
			if cerr := bus.Close(); cerr != nil {
				slog.Warn("Failed to close project bus", "error", cerr)
			}
		}
	}()

	select {
	case proj := <-ready:
		return proj, nil
	case <-handle.done:
		cancel()
		return nil, fmt.Errorf("orchestration ended before a project was created")
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// RunProject is the blocking variant used by the CLI: it starts the
// orchestration and waits for it to finish.
func (rt *Runtime) RunProject(ctx context.Context, requirement string) (*project.Project, error) {
	proj, err := rt.StartProject(ctx, requirement)
	if err != nil {
		return nil, err
	}

	rt.mu.RLock()
	handle := rt.runs[proj.ID]
	rt.mu.RUnlock()

	select {
	case <-handle.done:
	case <-ctx.Done():
		handle.cancel()
		<-handle.done
	}
	return rt.Project(ctx, proj.ID)
}

// finishRun maps the run outcome to a terminal project status.
func (rt *Runtime) finishRun(runCtx context.Context, proj *project.Project, err error) {
	if proj == nil {
		if err != nil {
			slog.Error("Orchestration failed before team formation", "error", err)
		}
		return
	}

	var status project.ProjectStatus
	switch {
	case err == nil:
		status = project.StatusCompleted
	case errors.Is(err, context.Canceled) || runCtx.Err() != nil:
		// Paused is terminal in this version; paused projects are not
		// resumable.
		status = project.StatusPaused
	default:
		status = project.StatusFailed
	}

	proj.SetStatus(status)
	rt.saveProject(proj)
	rt.metrics.ProjectCompletions.WithLabelValues(string(status)).Inc()
	rt.emit(proj.ID, EventProjectStatusChanged, map[string]any{
		"project_id": proj.ID,
		"status":     status,
	})

	if err != nil && status == project.StatusFailed {
		slog.Error("Orchestration failed", "project_id", proj.ID, "error", err)
	} else {
		slog.Info("Orchestration finished", "project_id", proj.ID, "status", status)
	}
}

func (rt *Runtime) saveProject(proj *project.Project) {
	ctx, cancelSave := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSave()
	if err := rt.store.Save(ctx, proj); err != nil {
		slog.Warn("Failed to persist project", "project_id", proj.ID, "error", err)
	}
}

// CancelProject requests cancellation of a running orchestration. The
// project transitions to Paused once the run unwinds.
func (rt *Runtime) CancelProject(id string) error {
	rt.mu.RLock()
	handle, ok := rt.runs[id]
	rt.mu.RUnlock()
	if !ok {
		return project.ErrProjectNotFound
	}

	select {
	case <-handle.done:
		return fmt.Errorf("project %s already finished", id)
	default:
	}
	handle.cancel()
	return nil
}

// Project returns the live project when a run is tracked, falling back
// to the store.
func (rt *Runtime) Project(ctx context.Context, id string) (*project.Project, error) {
	rt.mu.RLock()
	handle, ok := rt.runs[id]
	rt.mu.RUnlock()
	if ok && handle.proj != nil {
		return handle.proj, nil
	}
	return rt.store.Get(ctx, id)
}

// Projects lists all known projects.
func (rt *Runtime) Projects(ctx context.Context) ([]*project.Project, error) {
	return rt.store.List(ctx)
}

// Messages returns a project's chat history: from the live bus when the
// run is tracked, replayed from the persisted log otherwise.
func (rt *Runtime) Messages(ctx context.Context, projectID string, limit int) ([]*chat.Message, error) {
	rt.mu.RLock()
	handle, ok := rt.runs[projectID]
	var bus *chat.Bus
	if ok {
		bus = handle.bus
	}
	rt.mu.RUnlock()
	if bus != nil {
		return bus.Messages(projectID, limit), nil
	}

	// Run in flight or process restarted: the bus persists every
	// message to the workspace log in real time, so replay from disk.
	var ws string
	if ok && handle.proj != nil {
		ws = handle.proj.Workspace
	} else {
		proj, err := rt.store.Get(ctx, projectID)
		if err != nil {
			return nil, err
		}
		ws = proj.Workspace
	}
	log, err := chat.NewLog(ws)
	if err != nil {
		return nil, err
	}
	defer log.Close()

	msgs, err := log.Read(projectID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Watch runs the workspace file watcher until ctx is cancelled,
// forwarding change events to the sink. No-op when watching is
// disabled in config.
func (rt *Runtime) Watch(ctx context.Context) error {
	if !rt.cfg.Workspace.Watch {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := workspace.NewWatcher(rt.workspaces, func(ev workspace.ChangeEvent) {
		rt.emit(ev.ProjectID, EventFileChanged, ev)
	})
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

// Close cancels in-flight runs and releases the store.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	handles := make([]*runHandle, 0, len(rt.runs))
	for _, h := range rt.runs {
		handles = append(handles, h)
	}
	rt.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
	return rt.store.Close()
}
