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
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/metrics"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
	"github.com/loqalabs/loqa-chime-go/internal/storage"
)

// Worker defaults, taken from the device firmware
const (
	DefaultPopTimeout  = time.Second
	DefaultChunkSize   = 1024
	DefaultBufferSlots = 3
	DefaultVolume      = 128
	DefaultLoopCount   = 1
)

// ErrSinkRejected is returned when the sink refuses a chunk mid-session
var ErrSinkRejected = errors.New("player: sink rejected chunk")

// Config holds the playback parameters
type Config struct {
	PopTimeout  time.Duration
	ChunkSize   int
	BufferSlots int
	Volume      uint8
	LoopCount   int
}

// DefaultConfig returns the firmware playback parameters
func DefaultConfig() Config {
	return Config{
		PopTimeout:  DefaultPopTimeout,
		ChunkSize:   DefaultChunkSize,
		BufferSlots: DefaultBufferSlots,
		Volume:      DefaultVolume,
		LoopCount:   DefaultLoopCount,
	}
}

// Validate rejects parameters the worker cannot run with
func (c Config) Validate() error {
	if c.PopTimeout <= 0 {
		return fmt.Errorf("pop timeout must be positive, got %s", c.PopTimeout)
	}
	if c.ChunkSize <= 0 || c.ChunkSize%4 != 0 {
		return fmt.Errorf("chunk size must be a positive multiple of 4, got %d", c.ChunkSize)
	}
	if c.BufferSlots <= 0 {
		return fmt.Errorf("buffer slots must be positive, got %d", c.BufferSlots)
	}
	if c.LoopCount <= 0 {
		return fmt.Errorf("loop count must be positive, got %d", c.LoopCount)
	}
	return nil
}

// Source hands out queued names, waiting at most timeout
type Source interface {
	PopBlocking(ctx context.Context, timeout time.Duration) (playlist.Name, bool)
}

// Watchdog is the liveness surface the worker reports to
type Watchdog interface {
	Kick(ctx context.Context)
	SafeSleep(ctx context.Context, d time.Duration) error
}

// Worker is the single consumer of the playback queue
type Worker struct {
	queue   Source
	store   storage.Storage
	sink    audio.Sink
	dog     Watchdog
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	slots [][]byte
	next  int
	state atomic.Int32
}

// NewWorker creates the playback worker. Its Step method is meant to run
// inside a supervised task.
func NewWorker(queue Source, store storage.Storage, sink audio.Sink, dog Watchdog, cfg Config, opts ...Option) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	slots := make([][]byte, cfg.BufferSlots)
	for i := range slots {
		slots[i] = make([]byte, cfg.ChunkSize)
	}

	return &Worker{
		queue:   queue,
		store:   store,
		sink:    sink,
		dog:     dog,
		cfg:     cfg,
		log:     o.log,
		metrics: o.metrics,
		slots:   slots,
	}, nil
}

// State returns where the worker currently is in its cycle
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Step waits for one request and carries it out. Failures are logged and
// the worker is back to waiting when Step returns.
func (w *Worker) Step(ctx context.Context, _ any) {
	w.setState(WaitingForSignal)

	name, ok := w.queue.PopBlocking(ctx, w.cfg.PopTimeout)
	if !ok {
		w.dog.Kick(ctx)
		return
	}

	w.setState(Draining)
	defer w.setState(WaitingForSignal)

	if directive, d, ok := LookupDirective(string(name)); ok {
		w.setState(ControlDirective)
		w.log.Debug().Str("directive", directive).Dur("pause", d).Msg("⏸️  Control directive")
		w.metrics.ObserveDirective(directive)
		if err := w.dog.SafeSleep(ctx, d); err != nil {
			w.log.Debug().Err(err).Str("directive", directive).Msg("Directive interrupted")
		}
		return
	}

	w.setState(RealPlayback)
	played, err := w.play(ctx, name)
	if err != nil {
		w.log.Error().Err(err).Str("track", string(name)).Msg("❌ Playback failed")
		w.metrics.ObserveSession(metrics.SessionFailed, played)
		return
	}
	w.metrics.ObserveSession(metrics.SessionCompleted, played)
}

func (w *Worker) play(ctx context.Context, name playlist.Name) (played int, err error) {
	log := w.log.With().Str("session", uuid.NewString()).Str("track", string(name)).Logger()

	stream, err := w.store.Open(string(name))
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() {
		err = multierr.Append(err, stream.Close())
	}()

	dec, err := audio.NewDecoder(string(name), stream)
	if err != nil {
		return 0, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	defer func() {
		err = multierr.Append(err, dec.Close())
	}()

	format := dec.Format()
	log.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Int("bits", format.BitDepth).
		Msg("🔊 Playing track")

	for {
		if err := ctx.Err(); err != nil {
			return played, err
		}
		w.dog.Kick(ctx)

		slot := w.slots[w.next]
		w.next = (w.next + 1) % len(w.slots)

		n, readErr := dec.ReadChunk(slot)
		if n > 0 {
			if !w.sink.Play(slot[:n], format, w.cfg.Volume, w.cfg.LoopCount) {
				return played, ErrSinkRejected
			}
			played += n
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return played, fmt.Errorf("failed to decode %s: %w", name, readErr)
		}
	}

	log.Info().Int("bytes", played).Msg("✅ Track finished")
	return played, nil
}
