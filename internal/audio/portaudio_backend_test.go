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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isCIEnvironment detects if we're running in a CI environment
func isCIEnvironment() bool {
	ciEnvVars := []string{
		"CI", // Generic CI indicator
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}

// TestPortAudioBackend tests the PortAudio backend implementation
func TestPortAudioBackend(t *testing.T) {
	// PortAudio has no output device on CI runners
	if isCIEnvironment() {
		t.Skip("Skipping PortAudio tests in CI environment")
	}

	t.Run("backend_creation", func(t *testing.T) {
		backend := NewPortAudioBackend()
		require.NotNil(t, backend, "should create PortAudio backend")
		assert.False(t, backend.initialized, "should not be initialized by default")
	})

	t.Run("double_initialization", func(t *testing.T) {
		backend := NewPortAudioBackend()

		err := backend.Initialize()
		if err != nil {
			t.Skipf("PortAudio initialization failed (may be expected): %v", err)
		}

		err = backend.Initialize()
		assert.NoError(t, err, "double initialization should be safe")

		assert.NoError(t, backend.Terminate())
		assert.False(t, backend.initialized, "should be marked as not initialized")
	})

	t.Run("terminate_without_init", func(t *testing.T) {
		backend := NewPortAudioBackend()
		assert.NoError(t, backend.Terminate(), "should handle terminate without init")
	})

	t.Run("stream_without_initialization", func(t *testing.T) {
		backend := NewPortAudioBackend()

		stream, err := backend.CreateOutputStream(44100, 2, 512)
		require.Error(t, err, "should fail without initialization")
		assert.Nil(t, stream, "stream should be nil on error")
		assert.Contains(t, err.Error(), "not initialized")
	})
}

// TestPortAudioOutputStream writes one buffer of silence to the default device
func TestPortAudioOutputStream(t *testing.T) {
	if isCIEnvironment() {
		t.Skip("Skipping PortAudio tests in CI environment")
	}

	backend := NewPortAudioBackend()
	if err := backend.Initialize(); err != nil {
		t.Skipf("PortAudio initialization failed (may be expected): %v", err)
	}
	defer func() { _ = backend.Terminate() }()

	stream, err := backend.CreateOutputStream(44100, 2, 256)
	if err != nil {
		t.Skipf("CreateOutputStream failed (may be expected): %v", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		t.Skipf("Stream start failed (may be expected): %v", err)
	}
	assert.True(t, stream.IsActive())

	assert.Error(t, stream.Write(make([]float32, 10)), "wrong buffer size must be rejected")
	if err := stream.Write(make([]float32, 512)); err != nil {
		t.Logf("Stream write failed (may be expected): %v", err)
	}

	assert.NoError(t, stream.Stop())
	assert.False(t, stream.IsActive())
}
