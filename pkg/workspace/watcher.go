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

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent reports a file created or modified inside a project
// workspace.
type ChangeEvent struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
	Op        string `json:"op"`
}

// Watcher observes the workspace base directory recursively and
// forwards create/write events. New subdirectories are added to the
// watch set as they appear.
type Watcher struct {
	manager *Manager
	fw      *fsnotify.Watcher
	onEvent func(ChangeEvent)
}

// NewWatcher creates a watcher over the manager's base directory.
// onEvent is invoked from the watch goroutine for every change.
func NewWatcher(manager *Manager, onEvent func(ChangeEvent)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{manager: manager, fw: fw, onEvent: onEvent}
	if err := w.watchTree(manager.BaseDir()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == internalDir {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled or the watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.manager.BaseDir(), event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		// Project directory itself; start watching it.
		if event.Op.Has(fsnotify.Create) {
			w.maybeWatchDir(event.Name)
		}
		return
	}
	projectID, inner := parts[0], parts[1]
	if inner == internalDir || strings.HasPrefix(inner, internalDir+"/") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		w.maybeWatchDir(event.Name)
		w.emit(ChangeEvent{ProjectID: projectID, Path: inner, Op: "created"})
	case event.Op.Has(fsnotify.Write):
		w.emit(ChangeEvent{ProjectID: projectID, Path: inner, Op: "modified"})
	}
}

func (w *Watcher) maybeWatchDir(path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}
	if err := w.watchTree(path); err != nil {
		slog.Warn("Failed to watch new directory", "path", path, "error", err)
	}
}

func (w *Watcher) emit(ev ChangeEvent) {
	if w.onEvent != nil {
		w.onEvent(ev)
	}
}
