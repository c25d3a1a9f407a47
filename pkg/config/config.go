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

// Package config provides configuration types and loading for Conductor.
//
// A single YAML file configures the whole process. Every section has
// SetDefaults and Validate so a zero config file is a working config.
package config

import (
	"fmt"
	"time"
)

// Config is the complete Conductor configuration.
type Config struct {
	// Name is an optional human-readable name for this deployment.
	Name string `yaml:"name,omitempty"`

	Workspace    WorkspaceConfig    `yaml:"workspace,omitempty"`
	Executor     ExecutorConfig     `yaml:"executor,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Server       ServerConfig       `yaml:"server,omitempty"`
	Logger       LoggerConfig       `yaml:"logger,omitempty"`
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.Workspace.SetDefaults()
	c.Executor.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Store.SetDefaults()
	c.Server.SetDefaults()
	c.Logger.SetDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace config validation failed: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor config validation failed: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator config validation failed: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	return nil
}

// WorkspaceConfig configures project workspace directories.
type WorkspaceConfig struct {
	// BaseDir is the directory under which per-project workspaces are created.
	BaseDir string `yaml:"base_dir,omitempty"`

	// Watch enables the fsnotify workspace watcher that surfaces file
	// changes to connected clients.
	Watch bool `yaml:"watch,omitempty"`
}

// SetDefaults applies workspace defaults.
func (w *WorkspaceConfig) SetDefaults() {
	if w.BaseDir == "" {
		w.BaseDir = "./projects"
	}
}

// Validate validates the workspace configuration.
func (w *WorkspaceConfig) Validate() error {
	if w.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	return nil
}

// ExecutorConfig configures the external execution CLI that agent
// sessions are spawned with.
type ExecutorConfig struct {
	// Command is the CLI binary to invoke.
	Command string `yaml:"command,omitempty"`

	// ExtraArgs are appended to every invocation.
	ExtraArgs []string `yaml:"extra_args,omitempty"`

	// SkipPermissions passes the CLI's permission bypass flag. Sessions
	// run unattended, so this defaults to true.
	SkipPermissions *bool `yaml:"skip_permissions,omitempty"`
}

// SetDefaults applies executor defaults.
func (e *ExecutorConfig) SetDefaults() {
	if e.Command == "" {
		e.Command = "claude"
	}
	if e.SkipPermissions == nil {
		v := true
		e.SkipPermissions = &v
	}
}

// Validate validates the executor configuration.
func (e *ExecutorConfig) Validate() error {
	if e.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// OrchestratorConfig tunes the orchestration engine.
type OrchestratorConfig struct {
	// HeartbeatDwell is how long a run may stay silent before synthetic
	// "still working" notices start.
	HeartbeatDwell time.Duration `yaml:"heartbeat_dwell,omitempty"`

	// HeartbeatInterval is the period between synthetic notices once the
	// dwell has elapsed.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty"`
}

// SetDefaults applies orchestrator defaults.
func (o *OrchestratorConfig) SetDefaults() {
	if o.HeartbeatDwell == 0 {
		o.HeartbeatDwell = 15 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
}

// Validate validates the orchestrator configuration.
func (o *OrchestratorConfig) Validate() error {
	if o.HeartbeatDwell < 0 {
		return fmt.Errorf("heartbeat_dwell cannot be negative")
	}
	if o.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval cannot be negative")
	}
	return nil
}

// StoreConfig configures the project store database.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps the store
	// in-process only.
	Path string `yaml:"path,omitempty"`
}

// SetDefaults applies store defaults.
func (s *StoreConfig) SetDefaults() {
	if s.Path == "" {
		s.Path = "conductor.db"
	}
}

// Validate validates the store configuration.
func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// SetDefaults applies server defaults.
func (s *ServerConfig) SetDefaults() {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
}

// Validate validates the server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	return nil
}

// LoggerConfig configures logging output.
type LoggerConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// File is the log file path; empty logs to stderr.
	File string `yaml:"file,omitempty"`

	// Format is "simple" or "verbose".
	Format string `yaml:"format,omitempty"`
}

// SetDefaults applies logger defaults.
func (l *LoggerConfig) SetDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "simple"
	}
}
