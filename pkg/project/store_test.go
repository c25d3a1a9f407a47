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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleProject(id string) *Project {
	return &Project{
		ID:          id,
		Name:        "Demo",
		Requirement: "build something",
		Status:      StatusRunning,
		Team: []*TeamMember{
			{ID: "backend-" + id, RoleID: "backend", Name: "Backend", Task: "implement", Status: AgentIdle},
		},
		Workspace: "/tmp/" + id,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := sampleProject("p1")
	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Name)
	assert.Equal(t, StatusRunning, got.Status)
	require.Len(t, got.Team, 1)
	assert.Equal(t, "backend", got.Team[0].RoleID)
	assert.Equal(t, "implement", got.Team[0].Task)
}

func TestStoreUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := sampleProject("p1")
	require.NoError(t, store.Save(ctx, p))

	p.Name = "Renamed"
	p.Status = StatusCompleted
	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, StatusCompleted, got.Status)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestStoreUpdateStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleProject("p1")))
	require.NoError(t, store.UpdateStatus(ctx, "p1", StatusPaused))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", StatusPaused), ErrProjectNotFound)
}

func TestStoreListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleProject("old")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Save(ctx, sampleProject("new")))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
}

func TestProjectStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusPaused.IsTerminal())
	assert.False(t, StatusPlanning.IsTerminal())
	assert.False(t, StatusForming.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
}

func TestProjectAccessors(t *testing.T) {
	p := sampleProject("p1")
	assert.NotNil(t, p.MemberByRole("backend"))
	assert.Nil(t, p.MemberByRole("frontend"))
	assert.NotNil(t, p.MemberByID("backend-p1"))
	assert.Nil(t, p.MemberByID("nope"))

	p.AddMessage()
	p.AddMessage()
	assert.Equal(t, 2, p.MessageCount)
}
