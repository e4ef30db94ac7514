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

package player

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-chime-go/internal/metrics"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
)

type fakeCatalog map[string]bool

func (c fakeCatalog) Resolve(requested string) (playlist.Name, bool) {
	if c[requested] {
		return playlist.Name(requested), true
	}
	return "", false
}

func TestProducer_RequestPlayback(t *testing.T) {
	catalog := fakeCatalog{"door.wav": true, "bell.mp3": true}

	tests := []struct {
		name      string
		requested string
		accepted  bool
		queued    playlist.Name
	}{
		{name: "known_track", requested: "door.wav", accepted: true, queued: "door.wav"},
		{name: "leading_slash", requested: "/bell.mp3", accepted: true, queued: "bell.mp3"},
		{name: "directive", requested: "delay500", accepted: true, queued: "delay500"},
		{name: "directive_with_suffix", requested: "Delay1000.WAV", accepted: true, queued: "delay1000"},
		{name: "unknown_track", requested: "nope.wav", accepted: false},
		{name: "empty", requested: "", accepted: false},
		{name: "too_long", requested: strings.Repeat("x", playlist.MaxNameLen+1), accepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := playlist.NewQueue(4)
			p := NewProducer(catalog, q)

			assert.Equal(t, tt.accepted, p.RequestPlayback(tt.requested))
			if !tt.accepted {
				assert.Equal(t, 0, q.Len())
				return
			}
			require.Equal(t, 1, q.Len())
			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)
			got, ok := q.PopBlocking(ctx, time.Second)
			require.True(t, ok)
			assert.Equal(t, tt.queued, got)
		})
	}
}

func TestProducer_QueueFull(t *testing.T) {
	m := metrics.New()
	q := playlist.NewQueue(2)
	p := NewProducer(fakeCatalog{"a.wav": true}, q, WithMetrics(m))

	assert.True(t, p.RequestPlayback("a.wav"))
	assert.True(t, p.RequestPlayback("delay100"))
	assert.False(t, p.RequestPlayback("a.wav"))
	assert.False(t, p.RequestPlayback("missing.wav"))
	assert.Equal(t, 2, q.Len())

	series, err := testutil.GatherAndCount(m.Registry(), "chime_playback_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series, "accepted, full and unknown")
}
