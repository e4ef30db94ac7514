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

package audio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Sink defaults
const (
	DefaultFramesPerBuffer = 512
	DefaultSinkQueueDepth  = 4
)

// Sink renders raw PCM chunks. Play copies what it needs before returning,
// so the caller may reuse pcm immediately.
type Sink interface {
	Play(pcm []byte, f Format, volume uint8, loops int) bool
}

type sinkChunk struct {
	format  Format
	samples []float32
}

// StreamSink renders PCM through an AudioBackend output stream. A writer
// goroutine owns the stream and reopens it whenever the format changes.
type StreamSink struct {
	backend         AudioBackend
	log             zerolog.Logger
	framesPerBuffer int

	chunks    chan sinkChunk
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// writer goroutine state
	stream  StreamInterface
	current Format
	pending []float32
}

// SinkOption configures a StreamSink
type SinkOption func(*StreamSink)

// WithSinkLogger sets the sink logger
func WithSinkLogger(log zerolog.Logger) SinkOption {
	return func(s *StreamSink) { s.log = log }
}

// WithFramesPerBuffer sets the device buffer size in frames
func WithFramesPerBuffer(n int) SinkOption {
	return func(s *StreamSink) { s.framesPerBuffer = n }
}

// WithQueueDepth bounds how many chunks may wait for the device
func WithQueueDepth(n int) SinkOption {
	return func(s *StreamSink) { s.chunks = make(chan sinkChunk, n) }
}

// NewStreamSink initializes backend and starts the writer goroutine
func NewStreamSink(backend AudioBackend, opts ...SinkOption) (*StreamSink, error) {
	s := &StreamSink{
		backend:         backend,
		log:             zerolog.Nop(),
		framesPerBuffer: DefaultFramesPerBuffer,
		chunks:          make(chan sinkChunk, DefaultSinkQueueDepth),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.framesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", s.framesPerBuffer)
	}

	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Play scales pcm by volume/255, repeats it loops times and queues it for
// the device. The samples are converted before the chunk is queued, so the
// caller owns pcm again on return. A full queue makes Play wait until the
// device takes a chunk; a device that stops draining holds the caller,
// whose watchdog then escalates. Play returns false if the chunk was rejected or the sink is closed.
func (s *StreamSink) Play(pcm []byte, f Format, volume uint8, loops int) bool {
	if err := f.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("⚠️  Sink rejected chunk")
		return false
	}
	if len(pcm)%f.BlockAlign() != 0 {
		s.log.Warn().Int("bytes", len(pcm)).Int("block_align", f.BlockAlign()).Msg("⚠️  Sink rejected partial frame")
		return false
	}
	if loops < 1 {
		loops = 1
	}

	samples := ToFloat32(pcm, f.BitDepth, float32(volume)/255)
	if loops > 1 {
		one := samples
		samples = make([]float32, 0, len(one)*loops)
		for i := 0; i < loops; i++ {
			samples = append(samples, one...)
		}
	}

	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.chunks <- sinkChunk{format: f, samples: samples}:
		return true
	case <-s.done:
		return false
	}
}

// ToFloat32 converts little-endian PCM to float samples scaled by gain
func ToFloat32(pcm []byte, bits int, gain float32) []float32 {
	if bits == 8 {
		out := make([]float32, len(pcm))
		for i, b := range pcm {
			out[i] = (float32(b) - 128) / 128 * gain
		}
		return out
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768 * gain
	}
	return out
}

func (s *StreamSink) writer() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			s.drain()
			s.flush()
			s.closeStream()
			return
		case c := <-s.chunks:
			s.render(c)
		}
	}
}

func (s *StreamSink) drain() {
	for {
		select {
		case c := <-s.chunks:
			s.render(c)
		default:
			return
		}
	}
}

func (s *StreamSink) render(c sinkChunk) {
	if s.stream == nil || c.format != s.current {
		s.flush()
		s.closeStream()
		if err := s.openStream(c.format); err != nil {
			s.log.Error().Err(err).Str("format", c.format.String()).Msg("❌ Failed to open output stream")
			return
		}
	}

	s.pending = append(s.pending, c.samples...)
	size := s.framesPerBuffer * s.current.Channels
	for len(s.pending) >= size {
		if !s.write(s.pending[:size]) {
			s.pending = s.pending[:0]
			return
		}
		s.pending = s.pending[:copy(s.pending, s.pending[size:])]
	}
}

// flush pads the partial buffer with silence and writes it
func (s *StreamSink) flush() {
	if s.stream == nil || len(s.pending) == 0 {
		s.pending = s.pending[:0]
		return
	}
	size := s.framesPerBuffer * s.current.Channels
	for len(s.pending) < size {
		s.pending = append(s.pending, 0)
	}
	s.write(s.pending)
	s.pending = s.pending[:0]
}

func (s *StreamSink) write(buf []float32) bool {
	if err := s.stream.Write(buf); err != nil {
		s.log.Error().Err(err).Msg("❌ Output stream write failed")
		s.closeStream()
		return false
	}
	return true
}

func (s *StreamSink) openStream(f Format) error {
	stream, err := s.backend.CreateOutputStream(float64(f.SampleRate), f.Channels, s.framesPerBuffer)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream
	s.current = f
	s.log.Debug().Str("format", f.String()).Msg("🔊 Output stream opened")
	return nil
}

func (s *StreamSink) closeStream() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("⚠️  Failed to stop output stream")
	}
	if err := s.stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("⚠️  Failed to close output stream")
	}
	s.stream = nil
}

// Close plays out queued chunks, closes the stream and terminates the backend
func (s *StreamSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.backend.Terminate()
	})
	return err
}
