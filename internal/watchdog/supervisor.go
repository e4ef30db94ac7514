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

// Package watchdog supervises the liveness of long-running device tasks.
//
// Every supervised task owns a Registration and must Kick it more often than
// the configured timeout. A monitor loop feeds the hardware timer only while
// every registration is fresh; a starved registration escalates to the fatal
// handler, which exits the process and leaves the armed hardware timer to
// reset the device.
package watchdog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Defaults taken from the device firmware.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultKickInterval  = 3 * time.Second
	DefaultCheckInterval = 1 * time.Second
)

// Config holds the watchdog timing parameters
type Config struct {
	// Timeout is the maximum time a registered unit may go without kicking.
	Timeout time.Duration

	// KickInterval is the longest single sleep SafeSleep performs between kicks.
	// It must be strictly less than Timeout.
	KickInterval time.Duration

	// CheckInterval is how often the monitor inspects registrations and feeds
	// the hardware timer.
	CheckInterval time.Duration

	// UnmonitoredCores lists cores whose idle-task watchdog is disabled.
	// Supervised tasks must never be pinned to them.
	UnmonitoredCores []int
}

// DefaultConfig returns the firmware timing: 5s timeout, 3s kick chunks,
// core 0 unmonitored.
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		KickInterval:     DefaultKickInterval,
		CheckInterval:    DefaultCheckInterval,
		UnmonitoredCores: []int{0},
	}
}

// Validate reports configuration that would make the watchdog meaningless
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("watchdog timeout must be positive, got %s", c.Timeout)
	}
	if c.KickInterval <= 0 || c.KickInterval >= c.Timeout {
		return fmt.Errorf("kick interval %s must be positive and below timeout %s", c.KickInterval, c.Timeout)
	}
	if c.CheckInterval <= 0 || c.CheckInterval >= c.Timeout {
		return fmt.Errorf("check interval %s must be positive and below timeout %s", c.CheckInterval, c.Timeout)
	}
	return nil
}

// FatalFunc handles unrecoverable watchdog conditions. Production handlers
// must not return.
type FatalFunc func(msg string)

// Option configures a Supervisor
type Option func(*Supervisor)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithLogger sets the supervisor logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithFatal replaces the fatal handler
func WithFatal(fn FatalFunc) Option {
	return func(s *Supervisor) { s.fatal = fn }
}

// WithKickObserver registers a callback invoked after every successful kick
func WithKickObserver(fn func(unit string)) Option {
	return func(s *Supervisor) { s.onKick = fn }
}

// Registration tracks the liveness of one supervised unit
type Registration struct {
	unit     string
	lastKick atomic.Int64
	kicks    atomic.Uint64
}

// Unit returns the name of the registered unit
func (r *Registration) Unit() string { return r.unit }

// Kicks returns how many times the unit has kicked
func (r *Registration) Kicks() uint64 { return r.kicks.Load() }

// LastKick returns the time of the most recent kick
func (r *Registration) LastKick() time.Time { return time.Unix(0, r.lastKick.Load()) }

// Supervisor is the process-wide task watchdog
type Supervisor struct {
	cfg    Config
	hw     HardwareTimer
	clock  clock.Clock
	log    zerolog.Logger
	fatal  FatalFunc
	onKick func(unit string)

	mu         sync.Mutex
	configured bool
	closed     bool
	regs       map[*unit]*Registration
	tripped    bool

	ticker *clock.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a supervisor around the given hardware timer. Configure must be
// called before any unit registers.
func New(cfg Config, hw HardwareTimer, opts ...Option) *Supervisor {
	if hw == nil {
		hw = NopTimer{}
	}
	s := &Supervisor{
		cfg:   cfg,
		hw:    hw,
		clock: clock.New(),
		log:   zerolog.Nop(),
		regs:  make(map[*unit]*Registration),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fatal == nil {
		log := s.log
		s.fatal = func(msg string) {
			log.Fatal().Msg(msg)
		}
	}
	return s
}

// Configure arms the hardware timer and starts the monitor loop. It may be
// called exactly once.
func (s *Supervisor) Configure(ctx context.Context) {
	s.mu.Lock()
	if s.configured {
		s.mu.Unlock()
		s.fatal("watchdog already configured")
		return
	}
	if err := s.cfg.Validate(); err != nil {
		s.mu.Unlock()
		s.fatal(fmt.Sprintf("invalid watchdog config: %v", err))
		return
	}
	if err := s.hw.Arm(s.cfg.Timeout); err != nil {
		s.mu.Unlock()
		s.fatal(fmt.Sprintf("failed to arm watchdog timer: %v", err))
		return
	}
	s.configured = true
	s.ticker = s.clock.Ticker(s.cfg.CheckInterval)
	s.mu.Unlock()

	s.log.Info().
		Dur("timeout", s.cfg.Timeout).
		Dur("kick_interval", s.cfg.KickInterval).
		Ints("unmonitored_cores", s.cfg.UnmonitoredCores).
		Msg("🐕 Watchdog armed")

	s.wg.Add(1)
	go s.monitor(ctx)
}

// Register puts the unit carried by ctx under watchdog control. It must be
// called from inside the unit, once.
func (s *Supervisor) Register(ctx context.Context) *Registration {
	u := unitFrom(ctx)
	if u == nil {
		s.fatal("watchdog register outside of a supervised unit")
		return nil
	}

	s.mu.Lock()
	if !s.configured {
		s.mu.Unlock()
		s.fatal(fmt.Sprintf("watchdog register %q before configure", u.name))
		return nil
	}
	if _, exists := s.regs[u]; exists {
		s.mu.Unlock()
		s.fatal(fmt.Sprintf("unit %q already registered", u.name))
		return nil
	}
	reg := &Registration{unit: u.name}
	reg.lastKick.Store(s.clock.Now().UnixNano())
	s.regs[u] = reg
	u.reg.Store(reg)
	s.mu.Unlock()

	s.log.Debug().Str("unit", u.name).Msg("Unit registered with watchdog")
	return reg
}

// Deregister removes the unit carried by ctx from watchdog control
func (s *Supervisor) Deregister(ctx context.Context) {
	u := unitFrom(ctx)
	if u == nil {
		return
	}
	s.mu.Lock()
	delete(s.regs, u)
	s.mu.Unlock()
	u.reg.Store(nil)
	s.log.Debug().Str("unit", u.name).Msg("Unit deregistered from watchdog")
}

// Kick resets the liveness timer of the calling unit
func (s *Supervisor) Kick(ctx context.Context) {
	u := unitFrom(ctx)
	if u == nil {
		s.fatal("watchdog kick outside of a supervised unit")
		return
	}
	reg := u.reg.Load()
	if reg == nil {
		s.fatal(fmt.Sprintf("watchdog kick from unregistered unit %q", u.name))
		return
	}
	reg.lastKick.Store(s.clock.Now().UnixNano())
	reg.kicks.Add(1)
	if s.onKick != nil {
		s.onKick(u.name)
	}
}

// SafeSleep sleeps for d, kicking the watchdog at least every KickInterval so
// that long waits never starve the calling unit. It returns early only when
// ctx is cancelled.
func (s *Supervisor) SafeSleep(ctx context.Context, d time.Duration) error {
	chunk := s.cfg.KickInterval
	remaining := d
	for remaining > chunk {
		s.Kick(ctx)
		if err := s.sleep(ctx, chunk); err != nil {
			return err
		}
		remaining -= chunk
	}
	s.Kick(ctx)
	if remaining > 0 {
		return s.sleep(ctx, remaining)
	}
	return nil
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// KickInterval returns the longest interval a unit may sleep without kicking
func (s *Supervisor) KickInterval() time.Duration { return s.cfg.KickInterval }

// Monitored reports whether core is covered by idle-task monitoring
func (s *Supervisor) Monitored(core int) bool {
	for _, c := range s.cfg.UnmonitoredCores {
		if c == core {
			return false
		}
	}
	return true
}

// Units returns the names of the currently registered units, sorted
func (s *Supervisor) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.regs))
	for _, reg := range s.regs {
		names = append(names, reg.unit)
	}
	sort.Strings(names)
	return names
}

// Fatal forwards msg to the configured fatal handler
func (s *Supervisor) Fatal(msg string) {
	s.fatal(msg)
}

func (s *Supervisor) monitor(ctx context.Context) {
	defer s.wg.Done()
	defer s.ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.check()
		}
	}
}

func (s *Supervisor) check() {
	now := s.clock.Now()

	s.mu.Lock()
	if s.tripped {
		s.mu.Unlock()
		return
	}
	var starved []string
	for _, reg := range s.regs {
		if now.Sub(reg.LastKick()) >= s.cfg.Timeout {
			starved = append(starved, reg.unit)
		}
	}
	if len(starved) > 0 {
		s.tripped = true
	}
	s.mu.Unlock()

	if len(starved) > 0 {
		sort.Strings(starved)
		s.log.Error().Strs("units", starved).Msg("❌ Task watchdog got triggered")
		s.fatal(fmt.Sprintf("task watchdog triggered by %s", strings.Join(starved, ", ")))
		return
	}

	if err := s.hw.Feed(); err != nil {
		s.mu.Lock()
		s.tripped = true
		s.mu.Unlock()
		s.fatal(fmt.Sprintf("watchdog reset rejected: %v", err))
	}
}

// Close stops the monitor and disarms the hardware timer. Only a graceful
// shutdown should call it; a crashed process must leave the timer armed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	configured := s.configured
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	if !configured {
		return nil
	}
	if err := s.hw.Disarm(); err != nil {
		return fmt.Errorf("failed to disarm watchdog timer: %w", err)
	}
	s.log.Info().Msg("🐕 Watchdog disarmed")
	return nil
}
