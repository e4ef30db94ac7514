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

package main

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/config"
	"github.com/loqalabs/loqa-chime-go/internal/player"
)

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Storage.Root = root
	cfg.Playback.PopTimeout = 20 * time.Millisecond
	return cfg
}

func TestRunDaemonPlaysQueuedTracks(t *testing.T) {
	root := t.TempDir()
	writeNoise(t, root, "door.wav", 8000, 100*time.Millisecond)

	backend := audio.NewMockAudioBackend()
	var fatals atomic.Int32
	ready := make(chan *player.Producer, 1)
	deps := daemonDeps{
		backend: backend,
		fatal:   func(string) { fatals.Add(1) },
		ready:   ready,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runDaemon(ctx, testConfig(root), zerolog.Nop(), deps, []string{"door.wav", "missing.wav"})
	}()

	var producer *player.Producer
	select {
	case producer = <-ready:
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never became ready")
	}

	require.Eventually(t, func() bool {
		return len(backend.GetPlaybackAudioData()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, producer.RequestPlayback("delay100"))
	assert.False(t, producer.RequestPlayback("unknown.wav"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	assert.Zero(t, fatals.Load())
	assert.False(t, backend.IsInitialized(), "sink should terminate the backend on shutdown")
}

func TestRunDaemonMissingVolume(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "absent"))
	err := runDaemon(context.Background(), cfg, zerolog.Nop(), daemonDeps{backend: audio.NewMockAudioBackend()}, nil)
	assert.Error(t, err)
}

func TestRunDaemonBackendFailure(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	backend.SetInitError(assert.AnError)

	err := runDaemon(context.Background(), testConfig(t.TempDir()), zerolog.Nop(), daemonDeps{backend: backend}, nil)
	assert.ErrorIs(t, err, assert.AnError)
}
