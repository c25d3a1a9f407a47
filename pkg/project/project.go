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

// Package project defines the project and team-member model shared by
// the secretary, the orchestrator, and the server, plus the SQL-backed
// project registry.
package project

import (
	"sync"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "planning"
	StatusForming   ProjectStatus = "forming"
	StatusRunning   ProjectStatus = "running"
	StatusPaused    ProjectStatus = "paused"
	StatusCompleted ProjectStatus = "completed"
	StatusFailed    ProjectStatus = "failed"
)

// IsTerminal reports whether no further orchestration will happen for a
// project in this status. Paused is terminal in this version: paused
// projects are not resumable.
func (s ProjectStatus) IsTerminal() bool {
	switch s {
	case StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// AgentStatus is the execution state of a single team member.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentWaiting AgentStatus = "waiting"
	AgentDone    AgentStatus = "done"
)

// TeamMember is one staffed agent on a project team. Status is written
// by the agent's goroutine during cascade fan-out and read concurrently
// by the heartbeat, so all access goes through SetStatus/GetStatus.
type TeamMember struct {
	mu sync.Mutex

	ID     string      `json:"id"`
	RoleID string      `json:"role_id"`
	Name   string      `json:"name"`
	Task   string      `json:"task"`
	Status AgentStatus `json:"status"`
}

// SetStatus transitions the member's execution status.
func (m *TeamMember) SetStatus(status AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = status
}

// GetStatus returns the member's current execution status.
func (m *TeamMember) GetStatus() AgentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status
}

// Project is a single orchestration run: a requirement, the team formed
// for it, and its lifecycle state.
type Project struct {
	mu sync.RWMutex

	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Requirement  string        `json:"requirement"`
	Status       ProjectStatus `json:"status"`
	Team         []*TeamMember `json:"team"`
	Workspace    string        `json:"workspace"`
	MessageCount int           `json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SetStatus transitions the project status and bumps UpdatedAt.
func (p *Project) SetStatus(status ProjectStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = status
	p.UpdatedAt = time.Now()
}

// GetStatus returns the current status.
func (p *Project) GetStatus() ProjectStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// AddMessage records that a message was published to the project chat.
func (p *Project) AddMessage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MessageCount++
	p.UpdatedAt = time.Now()
}

// MemberByRole returns the team member staffed for a role, or nil.
func (p *Project) MemberByRole(roleID string) *TeamMember {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.Team {
		if m.RoleID == roleID {
			return m
		}
	}
	return nil
}

// MemberByID returns the team member with the given ID, or nil.
func (p *Project) MemberByID(id string) *TeamMember {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.Team {
		if m.ID == id {
			return m
		}
	}
	return nil
}
