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

package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/conductor/pkg/agent"
	"github.com/kadirpekel/conductor/pkg/chat"
)

// runState is the mutable cross-goroutine state of one orchestration:
// which members failed, which produced a message, and when the run last
// made progress.
type runState struct {
	mu           sync.Mutex
	failed       map[string]bool
	spoken       map[string]bool
	lastActivity time.Time
}

func newRunState() runState {
	return runState{
		failed:       make(map[string]bool),
		spoken:       make(map[string]bool),
		lastActivity: time.Now(),
	}
}

func (s *runState) addFailed(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[memberID] = true
}

func (s *runState) hasFailed(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[memberID]
}

func (s *runState) markSpoken(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken[memberID] = true
}

func (s *runState) hasSpoken(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spoken[memberID]
}

func (s *runState) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *runState) sinceActivity() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// cascade fans the message out to every mentioned, eligible agent and
// recurses over their replies. It terminates because agents are finite,
// working agents are skipped, failed agents never re-enter, and a
// message is acted on exactly once.
func (r *run) cascade(ctx context.Context, msg *chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	targets := r.resolveTargets(msg)
	if len(targets) == 0 {
		return nil
	}
	if m := r.engine.cfg.Metrics; m != nil {
		m.CascadeRounds.Inc()
	}

	results := make([]*chat.Message, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		target.MarkWaiting()
		g.Go(func() error {
			results[i] = r.invoke(gctx, target, func() (*chat.Message, error) {
				resp, err := target.HandleMessage(gctx, msg)
				if err == nil && resp == nil {
					// The alias table resolved a mention the agent does
					// not recognize itself (a localized name). Treat
					// the message as a direct task.
					resp, err = target.ExecuteTask(gctx, msg.Content)
				}
				return resp, err
			})
			return nil
		})
	}
	// Failures are contained per agent; the group never carries one.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, resp := range results {
		if resp == nil {
			continue
		}
		if err := r.cascade(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}

// resolveTargets maps the message's mentions through the alias table to
// eligible agents: known role, not the sender, not currently working,
// not failed. Duplicate aliases collapse to one dispatch.
func (r *run) resolveTargets(msg *chat.Message) []*agent.Agent {
	var targets []*agent.Agent
	seen := make(map[string]bool)

	for _, mention := range msg.Mentions {
		roleID, ok := r.alias.Resolve(mention)
		if !ok {
			slog.Debug("Ignoring unknown mention",
				"project_id", r.proj.ID,
				"mention", mention)
			continue
		}
		a, ok := r.agents[roleID]
		if !ok || seen[roleID] {
			continue
		}
		member := a.Member()
		if member.ID == msg.FromID {
			continue
		}
		if a.IsWorking() {
			slog.Debug("Skipping busy agent",
				"project_id", r.proj.ID,
				"role", roleID)
			continue
		}
		if r.state.hasFailed(member.ID) {
			slog.Debug("Skipping failed agent",
				"project_id", r.proj.ID,
				"role", roleID)
			continue
		}
		seen[roleID] = true
		targets = append(targets, a)
	}
	return targets
}

// invoke runs one agent execution, publishes its message, and updates
// failure/progress bookkeeping. It returns the message to cascade from,
// or nil when the agent failed or execution was cancelled.
func (r *run) invoke(ctx context.Context, a *agent.Agent, fn func() (*chat.Message, error)) *chat.Message {
	resp, err := fn()
	if resp != nil {
		if perr := r.publish(resp); perr != nil {
			slog.Warn("Failed to publish agent message",
				"project_id", r.proj.ID,
				"member_id", a.Member().ID,
				"error", perr)
		}
	}

	if err != nil || agent.IsErrorContent(resp) {
		r.state.addFailed(a.Member().ID)
		if m := r.engine.cfg.Metrics; m != nil {
			m.AgentRuns.WithLabelValues("failed").Inc()
		}
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	r.state.markSpoken(a.Member().ID)
	if m := r.engine.cfg.Metrics; m != nil {
		m.AgentRuns.WithLabelValues("ok").Inc()
	}
	return resp
}
