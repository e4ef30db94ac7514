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
	"strings"

	"github.com/rs/zerolog"

	"github.com/loqalabs/loqa-chime-go/internal/metrics"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
)

// Resolver maps requested names to catalog entries
type Resolver interface {
	Resolve(requested string) (playlist.Name, bool)
}

// Pusher accepts names without blocking
type Pusher interface {
	TryPush(name playlist.Name) bool
}

// Producer validates playback requests and enqueues them for the worker
type Producer struct {
	catalog Resolver
	queue   Pusher
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewProducer creates a producer over catalog and queue
func NewProducer(catalog Resolver, queue Pusher, opts ...Option) *Producer {
	o := buildOptions(opts)
	return &Producer{catalog: catalog, queue: queue, log: o.log, metrics: o.metrics}
}

// RequestPlayback enqueues name if it is a directive or a known track. It
// never blocks and returns false when the request was dropped.
func (p *Producer) RequestPlayback(name string) bool {
	requested := strings.TrimPrefix(name, "/")

	var entry playlist.Name
	if canonical, _, ok := LookupDirective(requested); ok {
		entry = playlist.Name(canonical)
	} else {
		resolved, ok := p.catalog.Resolve(requested)
		if !ok {
			if _, err := playlist.ParseName(requested); err != nil {
				p.log.Warn().Err(err).Msg("⚠️  Invalid playback request")
				p.metrics.ObserveRequest(metrics.RequestInvalid)
				return false
			}
			p.log.Warn().Str("track", requested).Msg("⚠️  Unknown track requested")
			p.metrics.ObserveRequest(metrics.RequestUnknown)
			return false
		}
		entry = resolved
	}

	if !p.queue.TryPush(entry) {
		p.metrics.ObserveRequest(metrics.RequestFull)
		return false
	}

	p.log.Debug().Str("track", string(entry)).Msg("Playback request queued")
	p.metrics.ObserveRequest(metrics.RequestAccepted)
	return true
}
