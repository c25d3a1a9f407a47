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

package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	ids := reg.IDs()
	assert.Equal(t, []string{
		"pm", "architect", "backend", "frontend", "tester",
		"researcher", "analyst", "writer", "reviewer",
	}, ids)

	pm, ok := reg.Get("pm")
	require.True(t, ok)
	assert.Equal(t, "Product Manager", pm.Name)
	assert.Contains(t, pm.DisplayName(), "🎯")

	_, ok = reg.Get("devops")
	assert.False(t, ok)

	assert.Len(t, reg.All(), len(ids))
}

func TestProducesDeliverable(t *testing.T) {
	for _, id := range []string{"frontend", "backend", "architect", "writer", "researcher", "analyst"} {
		assert.True(t, ProducesDeliverable(id), id)
	}
	for _, id := range []string{"pm", "tester", "reviewer"} {
		assert.False(t, ProducesDeliverable(id), id)
	}
}

func TestFirstRolePriorityCoversCatalog(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range FirstRolePriority {
		_, ok := reg.Get(id)
		assert.True(t, ok, "priority role %s must exist", id)
	}
	// Reviewer never kicks off a project.
	assert.NotContains(t, FirstRolePriority, "reviewer")
}
