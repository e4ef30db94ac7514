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

// Package playlist holds the bounded queue of pending playback requests.
package playlist

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// DefaultCapacity matches the firmware playlist depth
const DefaultCapacity = 30

// Queue is a fixed-capacity FIFO of track names paired with a counting
// signal. The signal holds one token per unconsumed entry, so a consumer
// only dequeues after a producer has finished inserting.
type Queue struct {
	mu     sync.Mutex
	ring   []Name
	head   int
	count  int
	signal chan struct{}

	clock clock.Clock
	log   zerolog.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithClock replaces the clock used for pop timeouts
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the queue logger
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a queue holding at most capacity names
func NewQueue(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		ring:   make([]Name, capacity),
		signal: make(chan struct{}, capacity),
		clock:  clock.New(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// TryPush appends name without blocking. It returns false, leaving the queue
// untouched, when the queue is full.
func (q *Queue) TryPush(name Name) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.ring) {
		q.log.Warn().Str("track", string(name)).Int("capacity", len(q.ring)).Msg("⚠️  Playlist full, dropping request")
		return false
	}

	q.ring[(q.head+q.count)%len(q.ring)] = name
	q.count++
	// Never blocks: the signal has room for every slot in the ring.
	q.signal <- struct{}{}
	return true
}

// PopBlocking waits up to timeout for an entry and returns the oldest one.
// A timeout or cancelled ctx returns false; nothing is dropped, and the
// caller is expected to kick its watchdog and try again.
func (q *Queue) PopBlocking(ctx context.Context, timeout time.Duration) (Name, bool) {
	select {
	case <-q.signal:
		return q.dequeue(), true
	default:
	}

	timer := q.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case <-q.signal:
		return q.dequeue(), true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (q *Queue) dequeue() Name {
	q.mu.Lock()
	defer q.mu.Unlock()

	name := q.ring[q.head]
	q.ring[q.head] = ""
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return name
}

// Len returns the number of queued names
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity
func (q *Queue) Cap() int { return len(q.ring) }

// Pending returns the value of the counting signal
func (q *Queue) Pending() int { return len(q.signal) }
