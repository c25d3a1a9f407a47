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

// Package agent wraps a staffed team member around an execution
// session: it builds role-scoped prompts, streams progress into the
// project chat, and turns session results into addressed messages.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/roles"
	"github.com/kadirpekel/conductor/pkg/session"
)

// errorPrefix marks contained execution failures in message content.
const errorPrefix = "task failed: "

// defaultTools is the tool allowlist granted to agent sessions.
var defaultTools = []string{
	"Read", "Write", "Edit", "Bash", "Glob", "Grep", "WebSearch", "WebFetch",
}

// Config assembles an agent.
type Config struct {
	Member      *project.TeamMember
	Role        roles.Role
	ProjectID   string
	Requirement string
	// Roster is the formatted team listing injected into prompts so the
	// agent knows who it can mention.
	Roster   string
	WorkDir  string
	Sessions session.Factory

	// Publish delivers progress messages to the project chat while a
	// task is running. May be nil.
	Publish func(msg *chat.Message) error
	// OnStatusChange fires on every member status transition. May be
	// nil.
	OnStatusChange func(memberID string, status project.AgentStatus)
}

func (c Config) validate() error {
	if c.Member == nil {
		return fmt.Errorf("team member is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("session factory is required")
	}
	return nil
}

// Agent is one AI team member executing tasks inside a project
// workspace.
type Agent struct {
	cfg Config

	mu      sync.Mutex
	sess    session.Session
	cleaned bool
}

// New creates an agent from a validated config.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	return &Agent{cfg: cfg}, nil
}

// Member returns the wrapped team member.
func (a *Agent) Member() *project.TeamMember {
	return a.cfg.Member
}

// IsWorking reports whether the agent is currently executing.
func (a *Agent) IsWorking() bool {
	return a.cfg.Member.GetStatus() == project.AgentWorking
}

// MarkWaiting flags the agent as queued for execution. The next run
// transitions it to Working.
func (a *Agent) MarkWaiting() {
	a.setStatus(project.AgentWaiting)
}

// ExecuteTask runs a task to completion and returns the agent's final
// message. The task defaults to the member's staffing task when empty.
// On internal failure the returned message carries error content and
// the error is returned alongside it; the message is always non-nil.
func (a *Agent) ExecuteTask(ctx context.Context, task string) (*chat.Message, error) {
	if task == "" {
		task = a.cfg.Member.Task
	}
	return a.run(ctx, a.taskPrompt(task))
}

// HandleMessage reacts to a chat message. It returns (nil, nil) when
// the message does not mention this agent by role ID, role name, or
// member ID.
func (a *Agent) HandleMessage(ctx context.Context, msg *chat.Message) (*chat.Message, error) {
	if !a.mentioned(msg) {
		return nil, nil
	}
	return a.run(ctx, a.messagePrompt(msg))
}

func (a *Agent) mentioned(msg *chat.Message) bool {
	for _, m := range msg.Mentions {
		if strings.EqualFold(m, a.cfg.Member.RoleID) ||
			strings.EqualFold(m, a.cfg.Role.Name) ||
			m == a.cfg.Member.ID {
			return true
		}
	}
	return false
}

func (a *Agent) run(ctx context.Context, prompt string) (*chat.Message, error) {
	a.setStatus(project.AgentWorking)
	defer a.setStatus(project.AgentIdle)

	sess, err := a.session()
	if err != nil {
		return a.errorMessage(err), err
	}

	events, err := sess.Execute(ctx, prompt, defaultTools)
	if err != nil {
		return a.errorMessage(err), err
	}

	var (
		result string
		runErr error
		prog   = newProgressThrottle()
	)
	for ev := range events {
		switch ev.Kind {
		case session.EventAssistant:
			if text, ok := prog.onText(ev.Text); ok {
				a.publishProgress(text)
			}
		case session.EventToolUse:
			if text, ok := prog.onTool(formatToolUse(ev.Tool, ev.ToolInput)); ok {
				a.publishProgress(text)
			}
		case session.EventResult:
			result = ev.Text
		case session.EventError:
			runErr = ev.Err
		}
	}

	if runErr != nil {
		slog.Warn("Agent execution failed",
			"project_id", a.cfg.ProjectID,
			"member_id", a.cfg.Member.ID,
			"role", a.cfg.Member.RoleID,
			"error", runErr)
		return a.errorMessage(runErr), runErr
	}
	if result == "" {
		result = "(no output)"
	}

	return chat.New(a.cfg.ProjectID, a.cfg.Member.ID, a.displayName(), result), nil
}

// session lazily creates the agent's execution session.
func (a *Agent) session() (session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cleaned {
		return nil, fmt.Errorf("agent %s is cleaned up", a.cfg.Member.ID)
	}
	if a.sess == nil {
		sess, err := a.cfg.Sessions.NewSession(a.cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		a.sess = sess
	}
	return a.sess, nil
}

func (a *Agent) setStatus(status project.AgentStatus) {
	a.cfg.Member.SetStatus(status)
	if a.cfg.OnStatusChange != nil {
		a.cfg.OnStatusChange(a.cfg.Member.ID, status)
	}
}

func (a *Agent) displayName() string {
	return a.cfg.Role.DisplayName()
}

func (a *Agent) errorMessage(err error) *chat.Message {
	return chat.New(a.cfg.ProjectID, a.cfg.Member.ID, a.displayName(),
		errorPrefix+err.Error())
}

// IsErrorContent reports whether a message records a contained agent
// failure.
func IsErrorContent(msg *chat.Message) bool {
	return msg != nil && strings.HasPrefix(msg.Content, errorPrefix)
}

func (a *Agent) publishProgress(text string) {
	if a.cfg.Publish == nil {
		return
	}
	msg := chat.New(a.cfg.ProjectID, a.cfg.Member.ID, a.displayName(), text)
	// Progress is informational; strip any accidental mentions so it
	// never triggers a cascade.
	msg.Mentions = nil
	if err := a.cfg.Publish(msg); err != nil {
		slog.Warn("Failed to publish progress",
			"member_id", a.cfg.Member.ID,
			"error", err)
	}
}

func (a *Agent) taskPrompt(task string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s on a project team.\n\n", a.displayName())
	if a.cfg.Role.Instructions != "" {
		b.WriteString(a.cfg.Role.Instructions)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Project requirement:\n%s\n\n", a.cfg.Requirement)
	if a.cfg.Roster != "" {
		fmt.Fprintf(&b, "Your team:\n%s\n\n", a.cfg.Roster)
	}
	fmt.Fprintf(&b, "Your task:\n%s\n\n", task)
	b.WriteString("Work inside the current directory. When you need a teammate " +
		"to continue, end your reply by mentioning them with @<role>, e.g. " +
		"@backend. Only mention teammates listed above.")
	return b.String()
}

func (a *Agent) messagePrompt(msg *chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s on a project team.\n\n", a.displayName())
	if a.cfg.Role.Instructions != "" {
		b.WriteString(a.cfg.Role.Instructions)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Project requirement:\n%s\n\n", a.cfg.Requirement)
	if a.cfg.Roster != "" {
		fmt.Fprintf(&b, "Your team:\n%s\n\n", a.cfg.Roster)
	}
	fmt.Fprintf(&b, "%s wrote to you:\n%s\n\n", msg.FromName, msg.Content)
	b.WriteString("Respond to this message. If it asks you to do work, do it " +
		"in the current directory and report the outcome. Mention a teammate " +
		"with @<role> only when they need to act next.")
	return b.String()
}

// Cleanup tears down the agent's session. Safe to call repeatedly.
func (a *Agent) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cleaned {
		return nil
	}
	a.cleaned = true

	if a.sess != nil {
		sess := a.sess
		a.sess = nil
		if err := sess.Cleanup(); err != nil {
			return fmt.Errorf("failed to clean up session for %s: %w", a.cfg.Member.ID, err)
		}
	}
	return nil
}
