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

// Package chat implements the project message bus.
//
// Messages are append-only: once published they are immutable, ordered
// by a per-project sequence, and persisted one JSON record per line to
// the project workspace. Subscribers receive messages in publish order;
// mention-filtered subscribers only see messages that @mention them.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender IDs used for messages not produced by an agent.
const (
	SenderUser      = "user"
	SenderSecretary = "secretary"
	SenderSystem    = "system"
)

// Message is one entry in a project's chat log.
type Message struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	FromID      string    `json:"from_id"`
	FromName    string    `json:"from_name"`
	Content     string    `json:"content"`
	Mentions    []string  `json:"mentions,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Seq         int64     `json:"seq"`
}

// New creates a message with a fresh ID and timestamp. Mentions are
// extracted from the content.
func New(projectID, fromID, fromName, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		FromID:    fromID,
		FromName:  fromName,
		Content:   content,
		Mentions:  ExtractMentions(content),
		Timestamp: time.Now(),
	}
}

// IsBroadcast reports whether the message has no mentions.
func (m *Message) IsBroadcast() bool {
	return len(m.Mentions) == 0
}

// MentionsSubscriber reports whether the given subscriber ID appears in
// the mention list.
func (m *Message) MentionsSubscriber(id string) bool {
	for _, mention := range m.Mentions {
		if mention == id {
			return true
		}
	}
	return false
}

// Format renders the message for terminal display.
func (m *Message) Format() string {
	line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04:05"), m.FromName, m.Content)
	for _, mention := range m.Mentions {
		line += " @" + mention
	}
	return line
}
