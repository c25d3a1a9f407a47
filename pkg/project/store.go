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

package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrProjectNotFound is returned when a project ID has no stored row.
var ErrProjectNotFound = errors.New("project not found")

const createProjectsTableSQL = `
CREATE TABLE IF NOT EXISTS projects (
    id VARCHAR(255) PRIMARY KEY,
    name TEXT NOT NULL,
    requirement TEXT NOT NULL,
    status VARCHAR(32) NOT NULL,
    team_json TEXT,
    workspace TEXT,
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createProjectsUpdatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at)`

// Store is the SQLite-backed project registry. It survives process
// restarts so the server can list past projects and their outcomes.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the registry at path and initializes the
// schema.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createProjectsTableSQL); err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createProjectsUpdatedAtIndexSQL); err != nil {
		return fmt.Errorf("failed to create updated_at index: %w", err)
	}
	return nil
}

// Save upserts a project. ON CONFLICT preserves created_at on update.
func (s *Store) Save(ctx context.Context, p *Project) error {
	if p == nil {
		return fmt.Errorf("project is required")
	}

	teamJSON, err := json.Marshal(p.Team)
	if err != nil {
		return fmt.Errorf("failed to marshal team: %w", err)
	}

	query := `
INSERT INTO projects (id, name, requirement, status, team_json, workspace, message_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    requirement = excluded.requirement,
    status = excluded.status,
    team_json = excluded.team_json,
    workspace = excluded.workspace,
    message_count = excluded.message_count,
    updated_at = excluded.updated_at
`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Requirement, string(p.GetStatus()),
		string(teamJSON), p.Workspace, p.MessageCount,
		p.CreatedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	return nil
}

// Get retrieves a project by ID.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	query := `
SELECT id, name, requirement, status, team_json, workspace, message_count, created_at, updated_at
FROM projects
WHERE id = ?
`
	p, err := s.scanProject(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project %s: %w", id, err)
	}
	return p, nil
}

// List returns all projects, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	query := `
SELECT id, name, requirement, status, team_json, workspace, message_count, created_at, updated_at
FROM projects
ORDER BY updated_at DESC
`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := s.scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// UpdateStatus sets a project's status without rewriting the team.
func (s *Store) UpdateStatus(ctx context.Context, id string, status ProjectStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of project %s: %w", id, err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanProject(row rowScanner) (*Project, error) {
	var (
		p        Project
		status   string
		teamJSON sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Requirement, &status,
		&teamJSON, &p.Workspace, &p.MessageCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = ProjectStatus(status)

	if teamJSON.Valid && teamJSON.String != "" && teamJSON.String != "null" {
		if err := json.Unmarshal([]byte(teamJSON.String), &p.Team); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team: %w", err)
		}
	}
	return &p, nil
}
