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

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest(RequestAccepted)
	m.ObserveRequest(RequestAccepted)
	m.ObserveRequest(RequestFull)
	m.ObserveSession(SessionCompleted, 1024)
	m.ObserveSession(SessionFailed, 0)
	m.ObserveDirective("delay500")
	m.ObserveKick("wavPlayerTask")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(RequestAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(RequestFull)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues(SessionFailed)))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.bytesPlayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.directives.WithLabelValues("delay500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.kicks.WithLabelValues("wavPlayerTask")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(RequestAccepted)
		m.ObserveSession(SessionCompleted, 1)
		m.ObserveDirective("delay100")
		m.ObserveKick("unit")
		m.RegisterQueue(func() int { return 0 }, 1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	depth := 3
	m.RegisterQueue(func() int { return depth }, 30)
	m.ObserveRequest(RequestAccepted)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chime_queue_depth 3")
	assert.Contains(t, string(body), "chime_queue_capacity 30")
	assert.Contains(t, string(body), `chime_playback_requests_total{result="accepted"} 1`)
}
