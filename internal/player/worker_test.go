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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
	"github.com/loqalabs/loqa-chime-go/internal/storage"
	"github.com/loqalabs/loqa-chime-go/internal/watchdog"
)

type fakeSource struct {
	mu    sync.Mutex
	names []playlist.Name
}

func (f *fakeSource) push(names ...playlist.Name) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, names...)
}

func (f *fakeSource) PopBlocking(context.Context, time.Duration) (playlist.Name, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.names) == 0 {
		return "", false
	}
	n := f.names[0]
	f.names = f.names[1:]
	return n, true
}

type fakeDog struct {
	mu      sync.Mutex
	kicks   int
	sleeps  []time.Duration
	onSleep func()
}

func (f *fakeDog) Kick(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeDog) SafeSleep(_ context.Context, d time.Duration) error {
	if f.onSleep != nil {
		f.onSleep()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	return nil
}

type trackedStream struct {
	*bytes.Reader
	closed *int
}

func (s trackedStream) Close() error {
	*s.closed++
	return nil
}

type fakeStorage struct {
	files  map[string][]byte
	opens  []string
	closed int
}

func (f *fakeStorage) Open(name string) (io.ReadSeekCloser, error) {
	f.opens = append(f.opens, name)
	data, ok := f.files[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return trackedStream{Reader: bytes.NewReader(data), closed: &f.closed}, nil
}

func (f *fakeStorage) List(string) ([]storage.Entry, error) { return nil, nil }

type sinkCall struct {
	pcm    []byte
	first  *byte
	format audio.Format
	volume uint8
	loops  int
}

type fakeSink struct {
	calls  []sinkCall
	reject bool
}

func (f *fakeSink) Play(pcm []byte, format audio.Format, volume uint8, loops int) bool {
	if f.reject {
		return false
	}
	f.calls = append(f.calls, sinkCall{
		pcm:    append([]byte(nil), pcm...),
		first:  &pcm[0],
		format: format,
		volume: volume,
		loops:  loops,
	})
	return true
}

func (f *fakeSink) played() []byte {
	var out []byte
	for _, c := range f.calls {
		out = append(out, c.pcm...)
	}
	return out
}

func wavFile(channels, rate int, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16), uint16(1), uint16(channels), uint32(rate),
		uint32(rate * channels * 2), uint16(channels * 2), uint16(16),
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

type workerFixture struct {
	source *fakeSource
	store  *fakeStorage
	sink   *fakeSink
	dog    *fakeDog
	worker *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	f := &workerFixture{
		source: &fakeSource{},
		store:  &fakeStorage{files: map[string][]byte{}},
		sink:   &fakeSink{},
		dog:    &fakeDog{},
	}
	w, err := NewWorker(f.source, f.store, f.sink, f.dog, DefaultConfig())
	require.NoError(t, err)
	f.worker = w
	return f
}

func TestWorker_TimeoutKicks(t *testing.T) {
	f := newWorkerFixture(t)

	f.worker.Step(context.Background(), nil)

	assert.Equal(t, 1, f.dog.kicks)
	assert.Empty(t, f.dog.sleeps)
	assert.Equal(t, WaitingForSignal, f.worker.State())
}

func TestWorker_Directives(t *testing.T) {
	tests := []struct {
		queued string
		want   time.Duration
	}{
		{queued: "delay100", want: 100 * time.Millisecond},
		{queued: "delay200", want: 200 * time.Millisecond},
		{queued: "delay500", want: 500 * time.Millisecond},
		{queued: "delay750", want: 750 * time.Millisecond},
		{queued: "delay1000", want: time.Second},
		{queued: "delay5000", want: 5 * time.Second},
		{queued: "DELAY100.WAV", want: 100 * time.Millisecond},
		{queued: "delay500.wav", want: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.queued, func(t *testing.T) {
			f := newWorkerFixture(t)
			f.source.push(playlist.Name(tt.queued))

			var during State
			f.dog.onSleep = func() { during = f.worker.State() }

			f.worker.Step(context.Background(), nil)

			assert.Equal(t, []time.Duration{tt.want}, f.dog.sleeps)
			assert.Equal(t, ControlDirective, during)
			assert.Empty(t, f.store.opens, "directives never reach storage")
			assert.Empty(t, f.sink.calls, "directives never reach the sink")
			assert.Equal(t, WaitingForSignal, f.worker.State())
		})
	}
}

func TestWorker_DirectiveTakesItsDuration(t *testing.T) {
	fatal := make(chan string, 1)
	dog := watchdog.New(watchdog.DefaultConfig(), nil, watchdog.WithFatal(func(msg string) { fatal <- msg }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dog.Configure(ctx)
	defer dog.Close()

	unitCtx := watchdog.WithUnit(ctx, "player")
	require.NotNil(t, dog.Register(unitCtx))

	source := &fakeSource{}
	source.push("delay100")
	w, err := NewWorker(source, &fakeStorage{}, &fakeSink{}, dog, DefaultConfig())
	require.NoError(t, err)

	start := time.Now()
	w.Step(unitCtx, nil)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, fatal)
}

func TestWorker_RealPlayback(t *testing.T) {
	f := newWorkerFixture(t)
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	f.store.files["door.wav"] = wavFile(2, 44100, data)
	f.source.push("door.wav")

	f.worker.Step(context.Background(), nil)

	assert.Equal(t, []string{"door.wav"}, f.store.opens)
	assert.Equal(t, 1, f.store.closed)
	require.Len(t, f.sink.calls, 3)
	assert.Len(t, f.sink.calls[0].pcm, DefaultChunkSize)
	assert.Len(t, f.sink.calls[2].pcm, 3000-2*DefaultChunkSize)
	assert.Equal(t, data, f.sink.played())

	for _, c := range f.sink.calls {
		assert.Equal(t, audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}, c.format)
		assert.Equal(t, uint8(DefaultVolume), c.volume)
		assert.Equal(t, DefaultLoopCount, c.loops)
	}
	assert.GreaterOrEqual(t, f.dog.kicks, len(f.sink.calls), "kicks before every chunk")
	assert.Equal(t, WaitingForSignal, f.worker.State())
}

func TestWorker_BufferRing(t *testing.T) {
	f := newWorkerFixture(t)
	f.store.files["long.wav"] = wavFile(1, 8000, make([]byte, 6*DefaultChunkSize))
	f.source.push("long.wav")

	f.worker.Step(context.Background(), nil)

	require.Len(t, f.sink.calls, 6)
	for i := 0; i < DefaultBufferSlots; i++ {
		assert.Same(t, f.sink.calls[i].first, f.sink.calls[i+DefaultBufferSlots].first, "slot %d reused", i)
	}
	assert.NotSame(t, f.sink.calls[0].first, f.sink.calls[1].first)
	assert.NotSame(t, f.sink.calls[1].first, f.sink.calls[2].first)
}

func TestWorker_FailuresAreRecoverable(t *testing.T) {
	f := newWorkerFixture(t)
	f.store.files["garbage.wav"] = []byte("this is not a riff file")
	f.store.files["notes.txt"] = []byte("hello")
	f.store.files["good.wav"] = wavFile(1, 8000, make([]byte, 100))
	f.source.push("missing.wav", "garbage.wav", "notes.txt", "good.wav")

	for i := 0; i < 4; i++ {
		f.worker.Step(context.Background(), nil)
		assert.Equal(t, WaitingForSignal, f.worker.State())
	}

	assert.Equal(t, []string{"missing.wav", "garbage.wav", "notes.txt", "good.wav"}, f.store.opens)
	assert.Equal(t, 3, f.store.closed, "every opened stream is closed")
	assert.Len(t, f.sink.played(), 100, "only the good track reaches the sink")
}

func TestWorker_SinkRejects(t *testing.T) {
	f := newWorkerFixture(t)
	f.sink.reject = true
	f.store.files["door.wav"] = wavFile(1, 8000, make([]byte, 4096))
	f.source.push("door.wav")

	f.worker.Step(context.Background(), nil)
	assert.Equal(t, WaitingForSignal, f.worker.State())
	assert.Equal(t, []string{"door.wav"}, f.store.opens)
	assert.Equal(t, 1, f.store.closed)

	_, err := f.worker.play(context.Background(), "door.wav")
	assert.True(t, errors.Is(err, ErrSinkRejected))
	assert.Equal(t, 2, f.store.closed)
}

func TestWorker_Cancelled(t *testing.T) {
	f := newWorkerFixture(t)
	f.store.files["door.wav"] = wavFile(1, 8000, make([]byte, 4096))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	played, err := f.worker.play(ctx, "door.wav")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, played)
	assert.Equal(t, 1, f.store.closed)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "zero_timeout", modify: func(c *Config) { c.PopTimeout = 0 }},
		{name: "odd_chunk", modify: func(c *Config) { c.ChunkSize = 1022 }},
		{name: "no_slots", modify: func(c *Config) { c.BufferSlots = 0 }},
		{name: "no_loops", modify: func(c *Config) { c.LoopCount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())

			_, err := NewWorker(&fakeSource{}, &fakeStorage{}, &fakeSink{}, &fakeDog{}, cfg)
			assert.Error(t, err)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting", WaitingForSignal.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "directive", ControlDirective.String())
	assert.Equal(t, "playing", RealPlayback.String())
	assert.Equal(t, "unknown", State(42).String())
}
