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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyConfigGetsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "./projects", cfg.Workspace.BaseDir)
	assert.Equal(t, "claude", cfg.Executor.Command)
	assert.NotNil(t, cfg.Executor.SkipPermissions)
	assert.True(t, *cfg.Executor.SkipPermissions)
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.HeartbeatDwell)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.HeartbeatInterval)
	assert.Equal(t, "conductor.db", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
workspace:
  base_dir: /tmp/work
  watch: true
executor:
  command: fakecli
  skip_permissions: false
orchestrator:
  heartbeat_dwell: 1s
  heartbeat_interval: 2s
server:
  port: 9000
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/work", cfg.Workspace.BaseDir)
	assert.True(t, cfg.Workspace.Watch)
	assert.Equal(t, "fakecli", cfg.Executor.Command)
	assert.False(t, *cfg.Executor.SkipPermissions)
	assert.Equal(t, time.Second, cfg.Orchestrator.HeartbeatDwell)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.HeartbeatInterval)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_CMD", "from-env")

	cfg, err := Parse([]byte("executor:\n  command: ${CONDUCTOR_TEST_CMD}\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Executor.Command)

	cfg, err = Parse([]byte("executor:\n  command: ${CONDUCTOR_TEST_UNSET:-fallback}\n"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Executor.Command)
}

func TestParseInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: -1\n"},
		{"negative dwell", "orchestrator:\n  heartbeat_dwell: -5s\n"},
		{"not yaml", ":\nnot yaml at all ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: test\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
