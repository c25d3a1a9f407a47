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

// Package orchestrator drives a project from requirement to completion:
// team formation, the kick-off task, the mention cascade across agents,
// the final review pass, and the completion summary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/metrics"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/roles"
	"github.com/kadirpekel/conductor/pkg/secretary"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/pkg/workspace"
)

// Config assembles an engine.
type Config struct {
	Registry   *roles.Registry
	Workspaces *workspace.Manager
	Sessions   session.Factory
	Metrics    *metrics.Metrics

	// HeartbeatDwell is how long a run may be silent before heartbeats
	// start; HeartbeatInterval spaces them afterwards.
	HeartbeatDwell    time.Duration
	HeartbeatInterval time.Duration

	// OnMessage fires for every message published to a run's chat. May
	// be nil.
	OnMessage func(msg *chat.Message)
	// OnStatusChange fires on member status transitions. May be nil.
	OnStatusChange func(projectID, memberID string, status project.AgentStatus)
	// OnProjectUpdate fires when a project is created or changes
	// status. May be nil.
	OnProjectUpdate func(proj *project.Project)
}

func (c Config) validate() error {
	if c.Registry == nil {
		return fmt.Errorf("role registry is required")
	}
	if c.Workspaces == nil {
		return fmt.Errorf("workspace manager is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("session factory is required")
	}
	return nil
}

// Engine runs orchestrations. It is stateless across runs; every Run
// call builds its own bus, team, and agents.
type Engine struct {
	cfg Config
}

// New creates an engine from a validated config.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if cfg.HeartbeatDwell <= 0 {
		cfg.HeartbeatDwell = 15 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Engine{cfg: cfg}, nil
}

// Run orchestrates one requirement end to end and returns when the
// mention cascade has fully unwound. The returned project reflects the
// final team state; the caller maps the error to a terminal status
// (nil: completed, context cancellation: paused, anything else:
// failed). Agent sessions are always cleaned up before Run returns.
func (e *Engine) Run(ctx context.Context, requirement string) (*project.Project, *chat.Bus, error) {
	var pending []*chat.Message
	sec, err := secretary.New(secretary.Config{
		Registry:   e.cfg.Registry,
		Workspaces: e.cfg.Workspaces,
		Sessions:   e.cfg.Sessions,
		Publish: func(msg *chat.Message) error {
			// The bus needs the project workspace, which exists only
			// after the secretary creates it. Buffer and replay.
			pending = append(pending, msg)
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}

	proj, _, err := sec.HandleRequirement(ctx, requirement)
	if err != nil {
		return nil, nil, fmt.Errorf("team formation failed: %w", err)
	}
	e.projectUpdated(proj)

	bus, err := chat.NewBus(proj.Workspace)
	if err != nil {
		return proj, nil, err
	}

	r := newRun(e, proj, bus)
	for _, msg := range pending {
		r.publish(msg)
	}

	if err := r.buildAgents(); err != nil {
		bus.Close()
		return proj, nil, err
	}
	defer r.cleanup()

	stopHeartbeat := r.startHeartbeat(ctx)
	defer stopHeartbeat()

	if err := r.kickoff(ctx); err != nil {
		return proj, bus, err
	}
	if err := r.injectReview(ctx); err != nil {
		return proj, bus, err
	}

	r.publishSummary()
	return proj, bus, nil
}

// run is the per-project orchestration state.
type run struct {
	engine *Engine
	proj   *project.Project
	bus    *chat.Bus
	agents map[string]*agent.Agent // keyed by role ID
	alias  *roles.AliasTable

	state runState
}

func newRun(e *Engine, proj *project.Project, bus *chat.Bus) *run {
	return &run{
		engine: e,
		proj:   proj,
		bus:    bus,
		agents: make(map[string]*agent.Agent),
		state:  newRunState(),
	}
}

// buildAgents instantiates one agent per team member and the project
// alias table.
func (r *run) buildAgents() error {
	var teamRoles []roles.Role
	roster := r.roster()

	for _, member := range r.proj.Team {
		role, ok := r.engine.cfg.Registry.Get(member.RoleID)
		if !ok {
			return fmt.Errorf("team member %s has unknown role %q", member.ID, member.RoleID)
		}
		teamRoles = append(teamRoles, role)

		a, err := agent.New(agent.Config{
			Member:      member,
			Role:        role,
			ProjectID:   r.proj.ID,
			Requirement: r.proj.Requirement,
			Roster:      roster,
			WorkDir:     r.proj.Workspace,
			Sessions:    r.engine.cfg.Sessions,
			Publish: func(msg *chat.Message) error {
				return r.publish(msg)
			},
			OnStatusChange: r.memberStatusChanged,
		})
		if err != nil {
			return err
		}
		r.agents[member.RoleID] = a
	}

	r.alias = roles.NewAliasTable(teamRoles)
	return nil
}

func (r *run) roster() string {
	var b strings.Builder
	for _, m := range r.proj.Team {
		fmt.Fprintf(&b, "- @%s (%s)", m.RoleID, m.Name)
		if m.Task != "" {
			fmt.Fprintf(&b, ": %s", m.Task)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// kickoff starts the first agent by role priority and cascades from its
// result.
func (r *run) kickoff(ctx context.Context) error {
	first := r.firstAgent()
	if first == nil {
		return fmt.Errorf("project %s has no agents to start", r.proj.ID)
	}

	slog.Info("Starting orchestration",
		"project_id", r.proj.ID,
		"first_role", first.Member().RoleID,
		"team_size", len(r.proj.Team))

	msg := r.invoke(ctx, first, func() (*chat.Message, error) {
		return first.ExecuteTask(ctx, "")
	})
	if msg == nil {
		return ctx.Err()
	}
	return r.cascade(ctx, msg)
}

func (r *run) firstAgent() *agent.Agent {
	for _, roleID := range roles.FirstRolePriority {
		if a, ok := r.agents[roleID]; ok {
			return a
		}
	}
	for _, m := range r.proj.Team {
		if a, ok := r.agents[m.RoleID]; ok {
			return a
		}
	}
	return nil
}

// injectReview gives the reviewer one synthetic nudge when it was
// staffed but never spoke during the cascade.
func (r *run) injectReview(ctx context.Context) error {
	reviewer, ok := r.agents["reviewer"]
	if !ok {
		return nil
	}
	memberID := reviewer.Member().ID
	if r.state.hasFailed(memberID) || r.state.hasSpoken(memberID) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	nudge := chat.New(r.proj.ID, chat.SenderSecretary, "Secretary",
		"@reviewer The team has finished its tasks. Please review the deliverables now.")
	if err := r.publish(nudge); err != nil {
		return err
	}
	return r.cascade(ctx, nudge)
}

// publishSummary closes the chat with a deliverable listing.
func (r *run) publishSummary() {
	files, err := r.engine.cfg.Workspaces.ListFiles(r.proj.ID)
	if err != nil {
		slog.Warn("Failed to list deliverables", "project_id", r.proj.ID, "error", err)
	}

	var b strings.Builder
	b.WriteString("All tasks are finished.")
	var names []string
	for _, f := range files {
		if !f.IsDir {
			names = append(names, f.Path)
		}
	}
	if len(names) > 0 {
		b.WriteString(" Deliverables:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	msg := chat.New(r.proj.ID, chat.SenderSystem, "System", b.String())
	if err := r.publish(msg); err != nil {
		slog.Warn("Failed to publish summary", "project_id", r.proj.ID, "error", err)
	}

	for _, m := range r.proj.Team {
		if m.GetStatus() != project.AgentWorking {
			m.SetStatus(project.AgentDone)
			r.memberStatusChanged(m.ID, project.AgentDone)
		}
	}
}

// publish routes a message through the bus and the engine callbacks,
// and counts as run activity for the heartbeat.
func (r *run) publish(msg *chat.Message) error {
	if err := r.bus.Publish(msg); err != nil {
		return err
	}
	r.proj.AddMessage()
	r.state.touch()

	if m := r.engine.cfg.Metrics; m != nil {
		m.MessagesPublished.Inc()
	}
	if cb := r.engine.cfg.OnMessage; cb != nil {
		cb(msg)
	}
	return nil
}

func (r *run) memberStatusChanged(memberID string, status project.AgentStatus) {
	if m := r.engine.cfg.Metrics; m != nil {
		// Working and Idle always pair up around an execution, so the
		// gauge stays balanced.
		switch status {
		case project.AgentWorking:
			m.ActiveAgents.Inc()
		case project.AgentIdle:
			m.ActiveAgents.Dec()
		}
	}
	if cb := r.engine.cfg.OnStatusChange; cb != nil {
		cb(r.proj.ID, memberID, status)
	}
}

func (e *Engine) projectUpdated(proj *project.Project) {
	if cb := e.cfg.OnProjectUpdate; cb != nil {
		cb(proj)
	}
}

// cleanup tears down every agent session exactly once; individual
// failures are logged, never propagated.
func (r *run) cleanup() {
	for roleID, a := range r.agents {
		if err := a.Cleanup(); err != nil {
			slog.Warn("Agent cleanup failed",
				"project_id", r.proj.ID,
				"role", roleID,
				"error", err)
		}
	}
}
