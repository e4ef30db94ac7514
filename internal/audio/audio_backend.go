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

// Package audio decodes track containers and renders PCM through an output
// backend.
package audio

// AudioBackend provides an abstraction layer over the output device so the
// sink can be tested without hardware
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// CreateOutputStream creates a blocking output stream. bufferSize is in
	// frames; every Write must carry bufferSize*channels samples.
	CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)
}

// StreamInterface abstracts an output stream
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// Write interleaved float samples, blocking until the device accepts them
	Write(data []float32) error

	// IsActive returns true if the stream is started and not stopped
	IsActive() bool
}
