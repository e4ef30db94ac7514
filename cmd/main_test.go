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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseArgs(t *testing.T, args ...string) (*CLI, *kong.Context, string, error) {
	t.Helper()
	var c CLI
	var out bytes.Buffer
	parser, err := newParser(&c, kong.Writers(&out, &out), kong.Exit(func(int) {}))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	return &c, ctx, out.String(), err
}

func TestApplicationFlags(t *testing.T) {
	_, _, out, _ := parseArgs(t, "--help")

	for _, want := range []string{"Loqa Chime", "--config", "--log-level"} {
		assert.Contains(t, out, want, "help output should mention %s", want)
	}
}

func TestRunIsDefaultCommand(t *testing.T) {
	_, ctx, _, err := parseArgs(t)
	require.NoError(t, err)
	assert.Equal(t, "run", ctx.Command())
}

func TestRunFlags(t *testing.T) {
	c, ctx, _, err := parseArgs(t,
		"--log-level", "debug",
		"run",
		"--root", "/mnt/card",
		"--device-id", "porch",
		"--nats", "nats://hub:4222",
		"--metrics-addr", ":9100",
		"--watchdog-device", "/dev/watchdog0",
		"--play", "door.wav,delay500",
	)
	require.NoError(t, err)
	assert.Equal(t, "run", ctx.Command())
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "/mnt/card", c.Run.Root)
	assert.Equal(t, "porch", c.Run.DeviceID)
	assert.Equal(t, "nats://hub:4222", c.Run.NATS)
	assert.Equal(t, ":9100", c.Run.MetricsAddr)
	assert.Equal(t, "/dev/watchdog0", c.Run.WatchdogDevice)
	assert.Equal(t, []string{"door.wav", "delay500"}, c.Run.Play)
}

func TestInspectRequiresExistingFile(t *testing.T) {
	_, _, _, err := parseArgs(t, "inspect")
	assert.Error(t, err)

	_, _, _, err = parseArgs(t, "inspect", filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestNoiseDefaults(t *testing.T) {
	c, ctx, _, err := parseArgs(t, "noise", "out.wav")
	require.NoError(t, err)
	assert.Equal(t, "noise <output>", ctx.Command())
	assert.Equal(t, 44100, c.Noise.Rate)
	assert.Equal(t, "1s", c.Noise.Duration.String())
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(&Globals{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "chime", cfg.DeviceID)
		assert.Equal(t, "/sdcard", cfg.Storage.Root)
	})

	t.Run("file then flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chime.yaml")
		require.NoError(t, os.WriteFile(path, []byte("device_id: hall\nstorage:\n  root: /media/card\n"), 0o644))

		run := &RunCmd{DeviceID: "porch", NATS: "nats://hub:4222"}
		cfg, err := loadConfig(&Globals{Config: path, LogLevel: "warn"}, run.override)
		require.NoError(t, err)
		assert.Equal(t, "porch", cfg.DeviceID)
		assert.Equal(t, "/media/card", cfg.Storage.Root)
		assert.Equal(t, "nats://hub:4222", cfg.NATS.URL)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := loadConfig(&Globals{LogLevel: "loud"}, nil)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(&Globals{Config: filepath.Join(t.TempDir(), "nope.yaml")}, nil)
		assert.Error(t, err)
	})
}
