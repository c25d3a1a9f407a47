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

// Package secretary turns a free-form requirement into a staffed
// project: it analyzes the requirement with an execution session,
// selects roles from the catalog, assigns initial tasks, and repairs
// the selection so deliverables always get reviewed.
package secretary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/roles"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/pkg/workspace"
)

// TeamConfig is the analysis outcome: which roles to staff, why, and
// what each starts on.
type TeamConfig struct {
	Roles  []string          `json:"roles"`
	Reason string            `json:"reason"`
	Tasks  map[string]string `json:"tasks"`
}

// Config assembles a secretary.
type Config struct {
	Registry   *roles.Registry
	Workspaces *workspace.Manager
	Sessions   session.Factory
	// Publish delivers the secretary's chat messages. May be nil.
	Publish func(msg *chat.Message) error
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

// Secretary forms project teams.
type Secretary struct {
	cfg Config
}

// New creates a secretary from a validated config.
func New(cfg Config) (*Secretary, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid secretary config: %w", err)
	}
	return &Secretary{cfg: cfg}, nil
}

// HandleRequirement creates a project for the requirement, forms its
// team, and returns the project in Running state together with the
// team config used. The project workspace holds team.json and
// REQUIREMENT.md when this returns.
func (s *Secretary) HandleRequirement(ctx context.Context, requirement string) (*project.Project, *TeamConfig, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil, nil, fmt.Errorf("requirement cannot be empty")
	}

	id := uuid.NewString()[:8]
	dir, err := s.cfg.Workspaces.Create(id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	proj := &project.Project{
		ID:          id,
		Name:        projectName(requirement),
		Requirement: requirement,
		Status:      project.StatusPlanning,
		Workspace:   dir,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	s.publish(chat.New(id, chat.SenderUser, "User", requirement))
	s.publish(chat.New(id, chat.SenderSecretary, "Secretary",
		"Got it. Let me look at the requirement and put a team together."))

	cfg := s.analyze(ctx, proj, dir)
	s.ensureReviewer(cfg)

	if err := s.staff(proj, cfg); err != nil {
		return nil, nil, err
	}

	proj.SetStatus(project.StatusForming)
	if err := s.cfg.Workspaces.SaveTeamConfig(id, proj.Team); err != nil {
		return nil, nil, err
	}
	if err := s.cfg.Workspaces.SaveRequirement(id, requirement); err != nil {
		return nil, nil, err
	}
	proj.SetStatus(project.StatusRunning)

	s.publish(chat.New(id, chat.SenderSecretary, "Secretary", s.announcement(cfg)))

	slog.Info("Team formed",
		"project_id", id,
		"roles", strings.Join(cfg.Roles, ","),
		"reason", cfg.Reason)

	return proj, cfg, nil
}

// analyze runs the requirement through a session and parses the team
// selection, falling back to keyword defaults when analysis fails.
func (s *Secretary) analyze(ctx context.Context, proj *project.Project, dir string) *TeamConfig {
	sess, err := s.cfg.Sessions.NewSession(dir)
	if err != nil {
		slog.Warn("Failed to create analysis session, using fallback team",
			"project_id", proj.ID, "error", err)
		return s.fallbackTeam(proj.Requirement)
	}
	defer func() {
		if err := sess.Cleanup(); err != nil {
			slog.Warn("Failed to clean up analysis session",
				"project_id", proj.ID, "error", err)
		}
	}()

	events, err := sess.Execute(ctx, s.analysisPrompt(proj.Requirement), nil)
	if err != nil {
		slog.Warn("Requirement analysis failed, using fallback team",
			"project_id", proj.ID, "error", err)
		return s.fallbackTeam(proj.Requirement)
	}

	var result string
	for ev := range events {
		switch ev.Kind {
		case session.EventResult:
			result = ev.Text
		case session.EventError:
			slog.Warn("Requirement analysis errored, using fallback team",
				"project_id", proj.ID, "error", ev.Err)
			return s.fallbackTeam(proj.Requirement)
		}
	}

	cfg, err := s.parseTeamConfig(result)
	if err != nil {
		slog.Warn("Could not parse team selection, using fallback team",
			"project_id", proj.ID, "error", err)
		return s.fallbackTeam(proj.Requirement)
	}
	return cfg
}

func (s *Secretary) analysisPrompt(requirement string) string {
	var b strings.Builder
	b.WriteString("You are the secretary of an AI project team. Analyze the " +
		"requirement below and decide which roles are needed.\n\nAvailable roles:\n")
	for _, r := range s.cfg.Registry.All() {
		fmt.Fprintf(&b, "- %s: %s\n", r.ID, r.Description)
	}
	fmt.Fprintf(&b, "\nRequirement:\n%s\n\n", requirement)
	b.WriteString("Reply with only a JSON object of this shape:\n" +
		"{\"roles\": [\"...\"], \"reason\": \"...\", \"tasks\": {\"<role>\": \"<initial task>\"}}\n" +
		"Pick the smallest team that can deliver. Every key of tasks must " +
		"appear in roles.")
	return b.String()
}

// staff instantiates team members from the config.
func (s *Secretary) staff(proj *project.Project, cfg *TeamConfig) error {
	for _, roleID := range cfg.Roles {
		role, ok := s.cfg.Registry.Get(roleID)
		if !ok {
			return fmt.Errorf("team selection names unknown role %q", roleID)
		}
		proj.Team = append(proj.Team, &project.TeamMember{
			ID:     fmt.Sprintf("%s-%s", roleID, proj.ID),
			RoleID: roleID,
			Name:   role.DisplayName(),
			Task:   cfg.Tasks[roleID],
			Status: project.AgentIdle,
		})
	}
	if len(proj.Team) == 0 {
		return fmt.Errorf("team selection produced no members")
	}
	return nil
}

// ensureReviewer adds a reviewer whenever the team contains a role that
// produces deliverables, so every run ends with an acceptance pass.
func (s *Secretary) ensureReviewer(cfg *TeamConfig) {
	hasDeliverable := false
	for _, r := range cfg.Roles {
		if r == "reviewer" {
			return
		}
		if roles.ProducesDeliverable(r) {
			hasDeliverable = true
		}
	}
	if !hasDeliverable {
		return
	}

	cfg.Roles = append(cfg.Roles, "reviewer")
	if cfg.Tasks == nil {
		cfg.Tasks = make(map[string]string)
	}
	cfg.Tasks["reviewer"] = "Review all deliverables against the original " +
		"requirement and report whether they pass acceptance, listing any issues found."
}

func (s *Secretary) announcement(cfg *TeamConfig) string {
	var b strings.Builder
	b.WriteString("Team is ready:\n")
	for _, roleID := range cfg.Roles {
		role, ok := s.cfg.Registry.Get(roleID)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s", role.DisplayName())
		if task := cfg.Tasks[roleID]; task != "" {
			fmt.Fprintf(&b, ": %s", task)
		}
		b.WriteString("\n")
	}
	if cfg.Reason != "" {
		fmt.Fprintf(&b, "\n%s", cfg.Reason)
	}
	return b.String()
}

func (s *Secretary) publish(msg *chat.Message) {
	if s.cfg.Publish == nil {
		return
	}
	if err := s.cfg.Publish(msg); err != nil {
		slog.Warn("Failed to publish secretary message",
			"project_id", msg.ProjectID, "error", err)
	}
}

// projectName derives a short display name from the requirement.
func projectName(requirement string) string {
	name := strings.TrimSpace(strings.SplitN(requirement, "\n", 2)[0])
	runes := []rune(name)
	if len(runes) > 40 {
		name = string(runes[:40]) + "..."
	}
	return name
}
