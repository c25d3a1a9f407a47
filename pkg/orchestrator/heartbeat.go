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
	"time"

	"github.com/kadirpekel/conductor/pkg/chat"
)

// startHeartbeat watches run activity and publishes a synthetic
// still-working message when agents stay silent past the dwell, then
// every interval thereafter. The returned stop function cancels the
// goroutine and waits for it to exit.
func (r *run) startHeartbeat(ctx context.Context) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	dwell := r.engine.cfg.HeartbeatDwell
	interval := r.engine.cfg.HeartbeatInterval

	go func() {
		defer close(done)

		// Poll at a fraction of the dwell so short configured dwells
		// still get timely heartbeats.
		tick := dwell / 2
		if tick < 10*time.Millisecond {
			tick = 10 * time.Millisecond
		}
		if tick > time.Second {
			tick = time.Second
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		var lastBeat time.Time
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
			}

			if !r.anyWorking() {
				lastBeat = time.Time{}
				continue
			}
			since := r.state.sinceActivity()
			if since < dwell {
				lastBeat = time.Time{}
				continue
			}
			if !lastBeat.IsZero() && time.Since(lastBeat) < interval {
				continue
			}

			r.emitHeartbeat()
			lastBeat = time.Now()
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (r *run) anyWorking() bool {
	for _, a := range r.agents {
		if a.IsWorking() {
			return true
		}
	}
	return false
}

// emitHeartbeat publishes directly through the bus so the heartbeat
// itself does not count as run activity.
func (r *run) emitHeartbeat() {
	var names []string
	for _, m := range r.proj.Team {
		if a, ok := r.agents[m.RoleID]; ok && a.IsWorking() {
			names = append(names, m.Name)
		}
	}
	content := "Still working..."
	if len(names) == 1 {
		content = names[0] + " is still working..."
	} else if len(names) > 1 {
		content = "The team is still working..."
	}

	msg := chat.New(r.proj.ID, chat.SenderSystem, "System", content)
	msg.Mentions = nil
	if err := r.bus.Publish(msg); err != nil {
		slog.Warn("Failed to publish heartbeat",
			"project_id", r.proj.ID, "error", err)
		return
	}
	if m := r.engine.cfg.Metrics; m != nil {
		m.HeartbeatsEmitted.Inc()
	}
	if cb := r.engine.cfg.OnMessage; cb != nil {
		cb(msg)
	}
}
