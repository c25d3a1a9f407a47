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

import "strings"

// AliasTable resolves mention aliases to role IDs. It is a closed set
// built once per project at team-formation time: role ID, canonical
// name, and localized names all resolve; anything else does not.
type AliasTable struct {
	aliases map[string]string // normalized alias -> role ID
}

// NewAliasTable builds the alias table for the given roles.
func NewAliasTable(team []Role) *AliasTable {
	t := &AliasTable{aliases: make(map[string]string)}
	for _, role := range team {
		t.add(role.ID, role.ID)
		t.add(role.Name, role.ID)
		for _, name := range localizedNames[role.ID] {
			t.add(name, role.ID)
		}
	}
	return t
}

func (t *AliasTable) add(alias, roleID string) {
	key := normalizeAlias(alias)
	if key == "" {
		return
	}
	t.aliases[key] = roleID
}

// Resolve returns the role ID for a mention alias.
func (t *AliasTable) Resolve(alias string) (string, bool) {
	roleID, ok := t.aliases[normalizeAlias(alias)]
	return roleID, ok
}

// Aliases returns the number of registered aliases.
func (t *AliasTable) Aliases() int {
	return len(t.aliases)
}

func normalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
