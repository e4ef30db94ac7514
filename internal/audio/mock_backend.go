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
	"time"
)

// StreamConfig records the parameters a mock stream was opened with
type StreamConfig struct {
	SampleRate float64
	Channels   int
	BufferSize int
}

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	opened             []StreamConfig
	initError          error
	terminateError     error
	createStreamError  error
	streamStartError   error
	writeError         error
	failWrites         int
	simulateRealTiming bool
	playbackAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:           make(map[string]*MockStream),
		playbackAudioData: make([][]float32, 0),
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetStreamStartError makes Start fail on streams created from now on
func (m *MockAudioBackend) SetStreamStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamStartError = err
}

// FailNextWrites makes the next n writes on any stream return err
func (m *MockAudioBackend) FailNextWrites(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = n
	m.writeError = err
}

// SetSimulateRealTiming makes writes block for the duration of the samples
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// GetPlaybackAudioData returns every buffer written to output streams
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// OpenedStreams returns the configuration of every stream created so far
func (m *MockAudioBackend) OpenedStreams() []StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]StreamConfig, len(m.opened))
	copy(result, m.opened)
	return result
}

// ActiveStreams returns how many streams are open
func (m *MockAudioBackend) ActiveStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// IsInitialized reports whether Initialize succeeded and Terminate has not run
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate closes every open stream and shuts the mock down
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}
	streams := make([]*MockStream, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	// Stream locks are taken before the backend lock
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Stop()
		_ = stream.Close()
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
		startError:         m.streamStartError,
	}

	m.streams[streamID] = stream
	m.opened = append(m.opened, StreamConfig{SampleRate: sampleRate, Channels: channels, BufferSize: bufferSize})
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	sampleRate         float64
	channels           int
	bufferSize         int
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	startError         error
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}
	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}
	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isActive = false
	return nil
}

// Close closes the mock stream and removes it from the backend
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return nil
	}
	m.isOpen = false
	m.isActive = false

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()
	return nil
}

// Write records data as played output
func (m *MockStream) Write(data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.backend.takeWriteFailure(); err != nil {
		return err
	}
	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}
	if !m.isActive {
		return fmt.Errorf("stream not started")
	}
	if len(data) != m.bufferSize*m.channels {
		return fmt.Errorf("write of %d samples, stream expects %d", len(data), m.bufferSize*m.channels)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.backend.mu.Lock()
	m.backend.playbackAudioData = append(m.backend.playbackAudioData, dataCopy)
	m.backend.mu.Unlock()

	if m.simulateRealTiming {
		frames := len(data) / m.channels
		time.Sleep(time.Duration(float64(frames) / m.sampleRate * float64(time.Second)))
	}

	return nil
}

func (m *MockAudioBackend) takeWriteFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites == 0 {
		return nil
	}
	m.failWrites--
	return m.writeError
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}
