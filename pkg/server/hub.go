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

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope is the wire format of pushed events.
type Envelope struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
	Payload   any    `json:"payload"`
}

// clientCommand is what connected clients may send: subscription
// management only.
type clientCommand struct {
	Action    string `json:"action"`
	ProjectID string `json:"project_id"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan Envelope

	mu       sync.Mutex
	projects map[string]bool
}

// wants reports whether the client subscribed to the project. A client
// with no explicit subscriptions receives everything.
func (c *wsClient) wants(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.projects) == 0 {
		return true
	}
	return c.projects[projectID]
}

func (c *wsClient) setSubscription(projectID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.projects[projectID] = true
	} else {
		delete(c.projects, projectID)
	}
}

// Hub fans runtime events out to websocket clients. It implements
// runtime.EventSink.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API serves local tooling; origin checks are the
			// deployment proxy's job.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish broadcasts an event to every subscribed client. A client
// whose send buffer is full is dropped rather than blocking the
// runtime.
func (h *Hub) Publish(projectID, eventType string, payload any) {
	env := Envelope{Type: eventType, ProjectID: projectID, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(projectID) {
			continue
		}
		select {
		case c.send <- env:
		default:
			slog.Warn("Dropping slow websocket client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and runs the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn:     conn,
		send:     make(chan Envelope, 64),
		projects: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "subscribe":
			if cmd.ProjectID != "" {
				c.setSubscription(cmd.ProjectID, true)
			}
		case "unsubscribe":
			if cmd.ProjectID != "" {
				c.setSubscription(cmd.ProjectID, false)
			}
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()

	for env := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(env); err != nil {
			h.remove(c)
			return
		}
	}
}
