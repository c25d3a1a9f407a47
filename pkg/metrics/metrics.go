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

// Package metrics exposes Prometheus instrumentation for the
// orchestration runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and collectors. Each runtime owns one
// instance; nothing is registered globally.
type Metrics struct {
	registry *prometheus.Registry

	MessagesPublished  prometheus.Counter
	AgentRuns          *prometheus.CounterVec
	CascadeRounds      prometheus.Counter
	HeartbeatsEmitted  prometheus.Counter
	ActiveAgents       prometheus.Gauge
	ProjectCompletions *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		MessagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_messages_published_total",
			Help: "Chat messages published across all projects.",
		}),
		AgentRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_agent_runs_total",
			Help: "Agent executions by outcome.",
		}, []string{"outcome"}),
		CascadeRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_cascade_rounds_total",
			Help: "Mention cascade rounds processed.",
		}),
		HeartbeatsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_heartbeats_total",
			Help: "Synthetic still-working heartbeat messages emitted.",
		}),
		ActiveAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_active_agents",
			Help: "Agents currently executing.",
		}),
		ProjectCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_project_completions_total",
			Help: "Finished orchestration runs by final status.",
		}, []string{"status"}),
	}
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
