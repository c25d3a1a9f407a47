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

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a subscriber callback. Handlers may publish further
// messages from within the callback; the bus tolerates re-entrant
// publish by queueing.
type Handler func(msg *Message) error

type subscriber struct {
	id              string
	handler         Handler
	mentionFiltered bool
}

// Bus is the per-project-scoped message bus: publish/subscribe with
// mention filtering, an append-only in-memory log, and optional JSONL
// persistence.
//
// Dispatch runs over a snapshot of the subscriber set and drains an
// internal queue, so a handler that mutates subscriptions or publishes
// again never corrupts iteration. Messages are delivered in publish
// order.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]subscriber
	messages    []*Message
	seq         map[string]int64
	log         *Log

	queue    []*Message
	draining bool
}

// NewBus creates a bus. If workspace is non-empty, published messages
// are persisted to <workspace>/.conductor/messages/chat.jsonl.
func NewBus(workspace string) (*Bus, error) {
	b := &Bus{
		subscribers: make(map[string]subscriber),
		seq:         make(map[string]int64),
	}

	if workspace != "" {
		log, err := NewLog(workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to open message log: %w", err)
		}
		b.log = log
	}

	return b, nil
}

// Subscribe registers a callback. With mentionFiltered set, the callback
// only fires for messages whose mention list contains subscriberID.
// Re-subscribing the same ID replaces the previous registration.
func (b *Bus) Subscribe(subscriberID string, handler Handler, mentionFiltered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[subscriberID] = subscriber{
		id:              subscriberID,
		handler:         handler,
		mentionFiltered: mentionFiltered,
	}
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, subscriberID)
}

// Publish appends the message to the log, persists it, and delivers it
// to every matching subscriber. Insertion order is causal order: a
// message published from within a handler is delivered after the
// message that triggered it.
func (b *Bus) Publish(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	b.mu.Lock()

	b.seq[msg.ProjectID]++
	msg.Seq = b.seq[msg.ProjectID]
	b.messages = append(b.messages, msg)

	if b.log != nil {
		if err := b.log.Append(msg); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to persist message: %w", err)
		}
	}

	b.queue = append(b.queue, msg)
	if b.draining {
		// A handler further up the stack is draining; it will pick this
		// message up in order.
		b.mu.Unlock()
		return nil
	}
	b.draining = true

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]

		snapshot := make([]subscriber, 0, len(b.subscribers))
		for _, sub := range b.subscribers {
			snapshot = append(snapshot, sub)
		}
		b.mu.Unlock()

		for _, sub := range snapshot {
			if sub.mentionFiltered && !next.MentionsSubscriber(sub.id) {
				continue
			}
			b.deliver(sub, next)
		}

		b.mu.Lock()
	}
	b.draining = false
	b.mu.Unlock()

	return nil
}

// deliver invokes a single subscriber callback, containing errors and
// panics so delivery to the remaining subscribers continues.
func (b *Bus) deliver(sub subscriber, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscriber panicked",
				"subscriber_id", sub.id,
				"message_id", msg.ID,
				"panic", r)
		}
	}()

	if err := sub.handler(msg); err != nil {
		slog.Warn("Subscriber callback failed",
			"subscriber_id", sub.id,
			"message_id", msg.ID,
			"error", err)
	}
}

// Messages returns messages, optionally filtered by project and limited
// to the most recent n entries.
func (b *Bus) Messages(projectID string, limit int) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Message
	for _, msg := range b.messages {
		if projectID == "" || msg.ProjectID == projectID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// MessagesForAgent returns the messages relevant to an agent: broadcast
// messages plus any message that mentions the agent.
func (b *Bus) MessagesForAgent(agentID, projectID string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Message
	for _, msg := range b.messages {
		if projectID != "" && msg.ProjectID != projectID {
			continue
		}
		if msg.IsBroadcast() || msg.MentionsSubscriber(agentID) {
			out = append(out, msg)
		}
	}
	return out
}

// Load replays the persisted log into the in-memory log, filtered by
// project if projectID is non-empty. Sequence counters are restored so
// subsequent publishes continue the numbering.
func (b *Bus) Load(projectID string) ([]*Message, error) {
	if b.log == nil {
		return nil, nil
	}

	msgs, err := b.log.Read(projectID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range msgs {
		b.messages = append(b.messages, msg)
		if msg.Seq > b.seq[msg.ProjectID] {
			b.seq[msg.ProjectID] = msg.Seq
		}
	}
	return msgs, nil
}

// Close releases the persistence handle, if any.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.log != nil {
		return b.log.Close()
	}
	return nil
}
