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

// Package roles defines the static role catalog for Conductor teams.
//
// Roles are pure data: an identity, a capability description, and the
// behavioral instructions injected into an agent's prompt. The catalog
// is fixed at process start and never mutated.
package roles

import "fmt"

// Role is an immutable role definition.
type Role struct {
	// ID is the stable role identifier (pm, backend, reviewer, ...).
	ID string

	// Name is the display name shown in chat.
	Name string

	// Emoji is the avatar prefix used in display names.
	Emoji string

	// Description is a one-line capability summary, used in the team
	// analysis prompt and roster listings.
	Description string

	// Instructions is the behavioral prompt text for agents with this role.
	Instructions string
}

// DisplayName returns the emoji-prefixed display name.
func (r Role) DisplayName() string {
	if r.Emoji == "" {
		return r.Name
	}
	return r.Emoji + " " + r.Name
}

// Registry is a read-only catalog of role definitions.
type Registry struct {
	byID  map[string]Role
	order []string
}

// NewRegistry builds a registry from the given roles, preserving order.
func NewRegistry(defs []Role) (*Registry, error) {
	r := &Registry{byID: make(map[string]Role, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("role ID cannot be empty")
		}
		if _, exists := r.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate role ID: %s", def.ID)
		}
		r.byID[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	return r, nil
}

// DefaultRegistry returns the registry built from the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(catalog)
	if err != nil {
		// The built-in catalog is a compile-time constant; a failure here
		// is a programming error.
		panic(err)
	}
	return r
}

// Get returns the role with the given ID.
func (r *Registry) Get(id string) (Role, bool) {
	role, ok := r.byID[id]
	return role, ok
}

// All returns all roles in catalog order.
func (r *Registry) All() []Role {
	out := make([]Role, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns all role IDs in catalog order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FirstRolePriority is the fixed ordering used to pick the role that
// kicks off a project: coordinating and analysis roles before builders.
var FirstRolePriority = []string{
	"pm", "architect", "researcher", "analyst", "writer",
	"backend", "frontend", "tester",
}

// deliverableRoles are the roles whose output needs acceptance review;
// whenever one is on a team, a reviewer is added by the repair step.
var deliverableRoles = map[string]bool{
	"frontend":   true,
	"backend":    true,
	"architect":  true,
	"writer":     true,
	"researcher": true,
	"analyst":    true,
}

// ProducesDeliverable reports whether the role's output requires review.
func ProducesDeliverable(roleID string) bool {
	return deliverableRoles[roleID]
}
