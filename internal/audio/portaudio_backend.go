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

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// CreateOutputStream opens the default output device
func (p *PortAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	outputBuffer := make([]float32, bufferSize*channels)

	stream, err := portaudio.OpenDefaultStream(
		0,        // no input
		channels, // output channels
		sampleRate,
		bufferSize,
		outputBuffer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{
		stream:       stream,
		outputBuffer: outputBuffer,
	}, nil
}

// PortAudioStream implements StreamInterface over a blocking PortAudio stream
type PortAudioStream struct {
	stream       *portaudio.Stream
	outputBuffer []float32
	active       bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.active = true
	return nil
}

// Stop stops the audio stream after queued samples have played
func (p *PortAudioStream) Stop() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.active = false
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.active = false
	return p.stream.Close()
}

// Write copies data into the device buffer and blocks until it is queued
func (p *PortAudioStream) Write(data []float32) error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if len(data) != len(p.outputBuffer) {
		return fmt.Errorf("write of %d samples, stream expects %d", len(data), len(p.outputBuffer))
	}

	copy(p.outputBuffer, data)
	return p.stream.Write()
}

// IsActive returns true between Start and Stop
func (p *PortAudioStream) IsActive() bool {
	return p.stream != nil && p.active
}
