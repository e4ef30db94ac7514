/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package metrics exposes device counters in the Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chime"

// Request results
const (
	RequestAccepted = "accepted"
	RequestUnknown  = "unknown"
	RequestFull     = "full"
	RequestInvalid  = "invalid"
)

// Session results
const (
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Metrics holds the device collectors on a private registry
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	sessions    *prometheus.CounterVec
	directives  *prometheus.CounterVec
	kicks       *prometheus.CounterVec
	bytesPlayed prometheus.Counter
}

// New creates the collectors and registers them together with the Go
// runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_requests_total",
			Help:      "Playback requests by result.",
		}, []string{"result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_sessions_total",
			Help:      "Playback sessions by result.",
		}, []string{"result"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_directives_total",
			Help:      "Control directives executed by name.",
		}, []string{"directive"}),
		kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_kicks_total",
			Help:      "Watchdog kicks by supervised unit.",
		}, []string{"unit"}),
		bytesPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "played_bytes_total",
			Help:      "PCM bytes handed to the audio sink.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.sessions,
		m.directives,
		m.kicks,
		m.bytesPlayed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterQueue exports the live depth and fixed capacity of the playback queue
func (m *Metrics) RegisterQueue(depth func() int, capacity int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Playback requests waiting for the worker.",
		}, func() float64 { return float64(depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Maximum number of waiting playback requests.",
		}, func() float64 { return float64(capacity) }),
	)
}

// ObserveRequest counts a producer request
func (m *Metrics) ObserveRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

// ObserveSession counts a finished playback session
func (m *Metrics) ObserveSession(result string, bytes int) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
	m.bytesPlayed.Add(float64(bytes))
}

// ObserveDirective counts an executed control directive
func (m *Metrics) ObserveDirective(name string) {
	if m == nil {
		return
	}
	m.directives.WithLabelValues(name).Inc()
}

// ObserveKick counts a watchdog kick
func (m *Metrics) ObserveKick(unit string) {
	if m == nil {
		return
	}
	m.kicks.WithLabelValues(unit).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
