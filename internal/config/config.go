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

// Package config loads the device configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/catalog"
	"github.com/loqalabs/loqa-chime-go/internal/logging"
	"github.com/loqalabs/loqa-chime-go/internal/player"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
	"github.com/loqalabs/loqa-chime-go/internal/task"
	"github.com/loqalabs/loqa-chime-go/internal/watchdog"
)

// Config represents the complete chime configuration
type Config struct {
	DeviceID string         `yaml:"device_id"`
	Storage  StorageConfig  `yaml:"storage"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Queue    QueueConfig    `yaml:"queue"`
	Playback PlaybackConfig `yaml:"playback"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Task     TaskConfig     `yaml:"task"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// StorageConfig locates the track volume
type StorageConfig struct {
	Root string `yaml:"root"` // mount point of the SD card
}

// CatalogConfig controls the startup scan
type CatalogConfig struct {
	Capacity     int      `yaml:"capacity"`
	Extensions   []string `yaml:"extensions"`
	HiddenPrefix string   `yaml:"hidden_prefix"`
}

// QueueConfig sizes the playback request queue
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// PlaybackConfig holds worker and sink parameters
type PlaybackConfig struct {
	PopTimeout      time.Duration `yaml:"pop_timeout"`
	ChunkSize       int           `yaml:"chunk_size"`   // bytes per sink call
	BufferSlots     int           `yaml:"buffer_slots"` // ring of sample buffers
	Volume          uint8         `yaml:"volume"`       // 0-255
	LoopCount       int           `yaml:"loop_count"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
}

// WatchdogConfig holds the task watchdog timing
type WatchdogConfig struct {
	Device           string        `yaml:"device"` // empty runs without a hardware timer
	Timeout          time.Duration `yaml:"timeout"`
	KickInterval     time.Duration `yaml:"kick_interval"`
	CheckInterval    time.Duration `yaml:"check_interval"`
	UnmonitoredCores []int         `yaml:"unmonitored_cores"`
}

// TaskConfig describes the supervised playback task
type TaskConfig struct {
	Name      string `yaml:"name"`
	Core      int    `yaml:"core"`
	Priority  int    `yaml:"priority"`
	StackSize uint32 `yaml:"stack_size"`
}

// NATSConfig enables the request subscriber when URL is set
type NATSConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the firmware settings
func Default() *Config {
	wd := watchdog.DefaultConfig()
	pb := player.DefaultConfig()
	return &Config{
		DeviceID: "chime",
		Storage:  StorageConfig{Root: "/sdcard"},
		Catalog: CatalogConfig{
			Capacity:     catalog.DefaultCapacity,
			Extensions:   audio.Extensions(),
			HiddenPrefix: catalog.DefaultHiddenPrefix,
		},
		Queue: QueueConfig{Capacity: playlist.DefaultCapacity},
		Playback: PlaybackConfig{
			PopTimeout:      pb.PopTimeout,
			ChunkSize:       pb.ChunkSize,
			BufferSlots:     pb.BufferSlots,
			Volume:          pb.Volume,
			LoopCount:       pb.LoopCount,
			FramesPerBuffer: audio.DefaultFramesPerBuffer,
		},
		Watchdog: WatchdogConfig{
			Timeout:          wd.Timeout,
			KickInterval:     wd.KickInterval,
			CheckInterval:    wd.CheckInterval,
			UnmonitoredCores: wd.UnmonitoredCores,
		},
		Task: TaskConfig{
			Name:      "wavPlayerTask",
			Core:      task.DefaultCore,
			Priority:  1,
			StackSize: 10240,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every setting the device cannot run with
func (c *Config) Validate() error {
	var err error

	if strings.TrimSpace(c.DeviceID) == "" {
		err = multierr.Append(err, errors.New("device_id is required"))
	}
	if c.Storage.Root == "" {
		err = multierr.Append(err, errors.New("storage.root is required"))
	}
	if c.Catalog.Capacity <= 0 {
		err = multierr.Append(err, fmt.Errorf("catalog.capacity must be positive, got %d", c.Catalog.Capacity))
	}
	if len(c.Catalog.Extensions) == 0 {
		err = multierr.Append(err, errors.New("catalog.extensions must not be empty"))
	}
	for _, ext := range c.Catalog.Extensions {
		if !audio.IsSupported("x" + ext) {
			err = multierr.Append(err, fmt.Errorf("catalog.extensions: no decoder for %q", ext))
		}
	}
	if c.Queue.Capacity <= 0 {
		err = multierr.Append(err, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	if c.Playback.FramesPerBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("playback.frames_per_buffer must be positive, got %d", c.Playback.FramesPerBuffer))
	}
	if pbErr := c.PlayerConfig().Validate(); pbErr != nil {
		err = multierr.Append(err, fmt.Errorf("playback: %w", pbErr))
	}

	wd := c.WatchdogConfig()
	if wdErr := wd.Validate(); wdErr != nil {
		err = multierr.Append(err, fmt.Errorf("watchdog: %w", wdErr))
	}
	if c.Task.Name == "" {
		err = multierr.Append(err, errors.New("task.name is required"))
	}
	for _, core := range wd.UnmonitoredCores {
		if core == c.Task.Core {
			err = multierr.Append(err, fmt.Errorf("task.core %d is not monitored by the watchdog", core))
		}
	}
	if _, lvlErr := logging.ParseLevel(c.Log.Level); lvlErr != nil {
		err = multierr.Append(err, lvlErr)
	}
	return err
}

// WatchdogConfig converts the watchdog section
func (c *Config) WatchdogConfig() watchdog.Config {
	return watchdog.Config{
		Timeout:          c.Watchdog.Timeout,
		KickInterval:     c.Watchdog.KickInterval,
		CheckInterval:    c.Watchdog.CheckInterval,
		UnmonitoredCores: c.Watchdog.UnmonitoredCores,
	}
}

// PlayerConfig converts the playback section
func (c *Config) PlayerConfig() player.Config {
	return player.Config{
		PopTimeout:  c.Playback.PopTimeout,
		ChunkSize:   c.Playback.ChunkSize,
		BufferSlots: c.Playback.BufferSlots,
		Volume:      c.Playback.Volume,
		LoopCount:   c.Playback.LoopCount,
	}
}

// CatalogConfig converts the catalog section
func (c *Config) CatalogConfig() catalog.Config {
	return catalog.Config{
		Capacity:     c.Catalog.Capacity,
		Extensions:   c.Catalog.Extensions,
		HiddenPrefix: c.Catalog.HiddenPrefix,
	}
}
