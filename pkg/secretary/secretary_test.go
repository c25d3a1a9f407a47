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

package secretary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/chat"
	"github.com/kadirpekel/conductor/pkg/project"
	"github.com/kadirpekel/conductor/pkg/roles"
	"github.com/kadirpekel/conductor/pkg/session"
	"github.com/kadirpekel/conductor/pkg/workspace"
)

// analysisSession returns a fixed result for the analysis prompt.
type analysisSession struct {
	result string
	fail   bool
}

func (s *analysisSession) Execute(ctx context.Context, prompt string, tools []string) (<-chan session.Event, error) {
	out := make(chan session.Event, 1)
	if s.fail {
		out <- session.Event{Kind: session.EventError, Err: context.DeadlineExceeded}
	} else {
		out <- session.Event{Kind: session.EventResult, Text: s.result}
	}
	close(out)
	return out, nil
}

func (s *analysisSession) Cleanup() error { return nil }

type analysisFactory struct {
	session *analysisSession
}

func (f *analysisFactory) NewSession(workDir string) (session.Session, error) {
	return f.session, nil
}

func newTestSecretary(t *testing.T, result string, fail bool) (*Secretary, *[]*chat.Message) {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)

	var published []*chat.Message
	sec, err := New(Config{
		Registry:   roles.DefaultRegistry(),
		Workspaces: ws,
		Sessions:   &analysisFactory{session: &analysisSession{result: result, fail: fail}},
		Publish: func(msg *chat.Message) error {
			published = append(published, msg)
			return nil
		},
	})
	require.NoError(t, err)
	return sec, &published
}

func TestHandleRequirementFormsTeam(t *testing.T) {
	result := "Here is my selection:\n```json\n" +
		`{"roles": ["pm", "backend"], "reason": "small build", "tasks": {"pm": "plan it", "backend": "build it"}}` +
		"\n```"
	sec, published := newTestSecretary(t, result, false)

	proj, cfg, err := sec.HandleRequirement(context.Background(), "Build an API")
	require.NoError(t, err)

	assert.Equal(t, project.StatusRunning, proj.GetStatus())
	assert.NotEmpty(t, proj.ID)
	assert.Len(t, proj.ID, 8)

	// Backend produces deliverables, so the reviewer gets added.
	assert.Equal(t, []string{"pm", "backend", "reviewer"}, cfg.Roles)
	require.Len(t, proj.Team, 3)
	assert.Equal(t, "plan it", proj.MemberByRole("pm").Task)
	assert.NotEmpty(t, proj.MemberByRole("reviewer").Task)

	// User message, intro, announcement.
	require.GreaterOrEqual(t, len(*published), 3)
	assert.Equal(t, chat.SenderUser, (*published)[0].FromID)
	assert.Equal(t, "Build an API", (*published)[0].Content)
	last := (*published)[len(*published)-1]
	assert.Contains(t, last.Content, "Team is ready")

	// Workspace artifacts exist.
	files, err := sec.cfg.Workspaces.ListFiles(proj.ID)
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "team.json")
	assert.Contains(t, paths, "REQUIREMENT.md")
}

func TestHandleRequirementAnalysisFailureFallsBack(t *testing.T) {
	sec, _ := newTestSecretary(t, "", true)

	proj, cfg, err := sec.HandleRequirement(context.Background(), "Develop a website for my shop")
	require.NoError(t, err)

	// Dev keywords staff the delivery team, and the reviewer repair
	// still applies.
	assert.Contains(t, cfg.Roles, "pm")
	assert.Contains(t, cfg.Roles, "backend")
	assert.Contains(t, cfg.Roles, "reviewer")
	assert.NotNil(t, proj.MemberByRole("tester"))
}

func TestHandleRequirementGarbageOutputFallsBack(t *testing.T) {
	sec, _ := newTestSecretary(t, "I cannot decide on a team, sorry.", false)

	_, cfg, err := sec.HandleRequirement(context.Background(), "research the best coffee beans")
	require.NoError(t, err)
	assert.Equal(t, []string{"researcher", "reviewer"}, cfg.Roles)
}

func TestHandleRequirementEmpty(t *testing.T) {
	sec, _ := newTestSecretary(t, "", false)
	_, _, err := sec.HandleRequirement(context.Background(), "   ")
	assert.Error(t, err)
}
