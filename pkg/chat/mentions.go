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

package chat

import "regexp"

// mentionPattern matches "@" followed by an optional run of emoji and
// whitespace, then a contiguous identifier token. Covers the forms
// agents actually produce: @reviewer, @✅ Reviewer, @验收员.
//
// This is best-effort parsing over model-generated text, not a verified
// protocol; resolution against the project alias table is what decides
// whether a match means anything.
var mentionPattern = regexp.MustCompile(`@[\s\x{FE0F}\x{2600}-\x{27BF}\x{1F300}-\x{1FAFF}]*([0-9A-Za-z_\x{4e00}-\x{9fff}]+)`)

// ExtractMentions returns the mention tokens in text, deduplicated in
// first-seen order. Extraction is idempotent: the same text always
// yields the same list.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	mentions := make([]string, 0, len(matches))
	for _, match := range matches {
		token := match[1]
		if seen[token] {
			continue
		}
		seen[token] = true
		mentions = append(mentions, token)
	}
	return mentions
}
