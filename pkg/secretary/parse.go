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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseTeamConfig extracts the team selection JSON from a session
// result. The model may wrap it in a code fence or surround it with
// prose; both forms are accepted.
func (s *Secretary) parseTeamConfig(text string) (*TeamConfig, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in analysis output")
	}

	var cfg TeamConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse team selection: %w", err)
	}
	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("team selection lists no roles")
	}

	seen := make(map[string]bool, len(cfg.Roles))
	valid := cfg.Roles[:0]
	for _, r := range cfg.Roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		if _, ok := s.cfg.Registry.Get(r); !ok {
			return nil, fmt.Errorf("team selection names unknown role %q", r)
		}
		seen[r] = true
		valid = append(valid, r)
	}
	cfg.Roles = valid

	for role := range cfg.Tasks {
		if !seen[strings.ToLower(role)] {
			return nil, fmt.Errorf("task assigned to role %q outside the team", role)
		}
	}
	return &cfg, nil
}

// extractJSON finds the selection object in model output: a fenced
// block first, then the outermost brace pair.
func extractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

// keyword groups for the analysis fallback. Localized forms are kept
// because requirements arrive in either language.
var (
	devKeywords = []string{
		"develop", "build", "implement", "website", "web app", "app",
		"api", "service", "system", "code", "程序", "开发", "网站", "应用", "系统",
	}
	researchKeywords = []string{
		"research", "investigate", "survey", "compare", "调研", "研究", "调查",
	}
	writingKeywords = []string{
		"write", "article", "blog", "report", "document", "撰写", "文章", "报告",
	}
)

// fallbackTeam selects a team by keyword when analysis output is
// unusable. The default is a lone researcher.
func (s *Secretary) fallbackTeam(requirement string) *TeamConfig {
	lower := strings.ToLower(requirement)
	contains := func(keywords []string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains(devKeywords):
		return &TeamConfig{
			Roles:  []string{"pm", "architect", "backend", "frontend", "tester"},
			Reason: "Development requirement; staffing a standard delivery team.",
			Tasks: map[string]string{
				"pm":        "Break the requirement into a concrete plan and coordinate the team.",
				"architect": "Design the system structure and technology choices.",
				"backend":   "Implement the server-side functionality.",
				"frontend":  "Implement the user-facing functionality.",
				"tester":    "Verify the implementation against the requirement.",
			},
		}
	case contains(researchKeywords):
		return &TeamConfig{
			Roles:  []string{"researcher"},
			Reason: "Research requirement; a researcher will investigate and report.",
			Tasks: map[string]string{
				"researcher": "Research the topic and write up the findings.",
			},
		}
	case contains(writingKeywords):
		return &TeamConfig{
			Roles:  []string{"writer"},
			Reason: "Writing requirement; a writer will produce the content.",
			Tasks: map[string]string{
				"writer": "Write the requested content.",
			},
		}
	default:
		return &TeamConfig{
			Roles:  []string{"researcher"},
			Reason: "Unclear requirement; starting with research.",
			Tasks: map[string]string{
				"researcher": "Clarify the requirement and produce an initial report.",
			},
		}
	}
}
