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

// Package workspace manages per-project working directories: creation,
// team/requirement persistence, file listing for the API, and change
// watching.
package workspace

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// internalDir holds bus persistence and other runtime state; it is
// excluded from file listings.
const internalDir = ".conductor"

// FileInfo is one entry of a workspace file tree.
type FileInfo struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// Manager creates and inspects project workspaces under a base
// directory.
type Manager struct {
	baseDir string
}

// NewManager creates a manager rooted at baseDir, creating it if
// needed.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("workspace base directory cannot be empty")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return &Manager{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Dir returns the workspace path for a project without creating it.
func (m *Manager) Dir(projectID string) string {
	return filepath.Join(m.baseDir, projectID)
}

// Create makes the workspace directory for a project and returns its
// path.
func (m *Manager) Create(projectID string) (string, error) {
	dir := m.Dir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace for %s: %w", projectID, err)
	}
	return dir, nil
}

// SaveTeamConfig writes the team composition to team.json in the
// project workspace.
func (m *Manager) SaveTeamConfig(projectID string, team any) error {
	data, err := json.MarshalIndent(team, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal team config: %w", err)
	}
	path := filepath.Join(m.Dir(projectID), "team.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SaveRequirement writes the project requirement to REQUIREMENT.md.
func (m *Manager) SaveRequirement(projectID, requirement string) error {
	content := fmt.Sprintf("# Requirement\n\n%s\n", requirement)
	path := filepath.Join(m.Dir(projectID), "REQUIREMENT.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ListFiles walks the project workspace and returns its file tree with
// workspace-relative paths. Runtime state under .conductor is excluded.
func (m *Manager) ListFiles(projectID string) ([]FileInfo, error) {
	root := m.Dir(projectID)
	var files []FileInfo

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() && (d.Name() == internalDir || strings.HasPrefix(rel, internalDir+string(filepath.Separator))) {
			return filepath.SkipDir
		}

		info := FileInfo{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
		if !d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			info.Size = fi.Size()
		}
		files = append(files, info)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspace for %s does not exist", projectID)
		}
		return nil, fmt.Errorf("failed to list workspace files: %w", err)
	}
	return files, nil
}

// ReadFile returns a file's content by workspace-relative path. Paths
// escaping the workspace are rejected.
func (m *Manager) ReadFile(projectID, relPath string) ([]byte, error) {
	root := m.Dir(projectID)
	full := filepath.Join(root, filepath.FromSlash(relPath))

	clean, err := filepath.Abs(full)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", relPath, err)
	}
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes the workspace", relPath)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	return data, nil
}
