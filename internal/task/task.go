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

// Package task runs worker functions inside watchdog-supervised goroutines.
package task

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/loqalabs/loqa-chime-go/internal/watchdog"
)

const (
	// MaxNameLen bounds task names, matching the firmware task table
	MaxNameLen = 19

	// DefaultCore is the first core with idle-task monitoring enabled
	DefaultCore = 1

	// DefaultYield is the pause between worker invocations
	DefaultYield = time.Millisecond
)

// WorkerFunc is one iteration of a supervised task. ctx identifies the
// supervised unit and must be passed to Kick and SafeSleep.
type WorkerFunc func(ctx context.Context, param any)

// Descriptor describes a supervised task
type Descriptor struct {
	Name      string
	Fn        WorkerFunc
	StackSize uint32
	Priority  int
	Param     any
	Core      int
}

// Supervisor is the watchdog surface the runner depends on
type Supervisor interface {
	Register(ctx context.Context) *watchdog.Registration
	Deregister(ctx context.Context)
	Kick(ctx context.Context)
	Monitored(core int) bool
	Fatal(msg string)
}

// Runner spawns supervised tasks
type Runner struct {
	dog   Supervisor
	clock clock.Clock
	log   zerolog.Logger
	yield time.Duration
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithClock replaces the clock used for yielding
func WithClock(c clock.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithLogger sets the runner logger
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithYield sets the pause between worker invocations
func WithYield(d time.Duration) RunnerOption {
	return func(r *Runner) { r.yield = d }
}

// NewRunner creates a runner whose tasks register with dog
func NewRunner(dog Supervisor, opts ...RunnerOption) *Runner {
	r := &Runner{
		dog:   dog,
		clock: clock.New(),
		log:   zerolog.Nop(),
		yield: DefaultYield,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type spawnOptions struct {
	maxIterations uint64
}

// SpawnOption tunes a single spawned task
type SpawnOption func(*spawnOptions)

// WithMaxIterations stops the task after n worker invocations. Tasks on the
// device never stop; tests use this to run a bounded number of cycles.
func WithMaxIterations(n uint64) SpawnOption {
	return func(o *spawnOptions) { o.maxIterations = n }
}

// Handle observes a spawned task
type Handle struct {
	name       string
	core       int
	done       chan struct{}
	iterations atomic.Uint64
}

// Name returns the (possibly truncated) task name
func (h *Handle) Name() string { return h.name }

// Core returns the designated core
func (h *Handle) Core() int { return h.core }

// Done is closed once the task loop exits
func (h *Handle) Done() <-chan struct{} { return h.done }

// Iterations returns how many times the worker function has returned
func (h *Handle) Iterations() uint64 { return h.iterations.Load() }

// Spawn starts d.Fn in a new goroutine pinned to d.Core. The goroutine
// registers itself with the watchdog before running any worker code, then
// calls the worker forever with a short yield in between. Worker panics are
// not recovered: a stuck or crashed worker is left to the watchdog.
func (r *Runner) Spawn(ctx context.Context, d Descriptor, opts ...SpawnOption) *Handle {
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := truncateName(d.Name, MaxNameLen)
	if name != d.Name {
		r.log.Warn().Str("name", d.Name).Str("truncated", name).Int("max", MaxNameLen).Msg("⚠️  Task name truncated")
	}

	h := &Handle{name: name, core: d.Core, done: make(chan struct{})}

	if d.Fn == nil {
		close(h.done)
		r.dog.Fatal(fmt.Sprintf("task %q has no worker function", name))
		return h
	}
	if !r.dog.Monitored(d.Core) {
		close(h.done)
		r.dog.Fatal(fmt.Sprintf("task %q pinned to unmonitored core %d", name, d.Core))
		return h
	}

	r.log.Info().
		Str("task", name).
		Int("core", d.Core).
		Int("priority", d.Priority).
		Uint32("stack", d.StackSize).
		Msg("🧵 Creating supervised task")

	go r.run(ctx, d, h, o)
	return h
}

// truncateName cuts name to at most limit bytes without splitting a rune
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

func (r *Runner) run(ctx context.Context, d Descriptor, h *Handle, o spawnOptions) {
	defer close(h.done)

	// Never unlocked: the pinned thread exits with the goroutine instead of
	// returning to the scheduler with a narrowed affinity mask.
	runtime.LockOSThread()

	if err := pinToCore(d.Core); err != nil {
		r.log.Warn().Err(err).Str("task", h.name).Int("core", d.Core).Msg("⚠️  Could not pin task to core")
	}

	unitCtx := watchdog.WithUnit(ctx, h.name)
	if r.dog.Register(unitCtx) == nil {
		return
	}
	defer r.dog.Deregister(unitCtx)
	r.dog.Kick(unitCtx)

	for {
		if ctx.Err() != nil {
			r.log.Debug().Str("task", h.name).Msg("Supervised task cancelled")
			return
		}

		d.Fn(unitCtx, d.Param)

		n := h.iterations.Add(1)
		if o.maxIterations > 0 && n >= o.maxIterations {
			return
		}

		if r.yield > 0 {
			r.clock.Sleep(r.yield)
		} else {
			runtime.Gosched()
		}
	}
}
