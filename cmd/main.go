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
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/cli"
	"github.com/loqalabs/loqa-chime-go/internal/config"
	"github.com/loqalabs/loqa-chime-go/internal/logging"
)

// version is set via ldflags at build time
var version = "dev"

// Globals are flags shared by every command
type Globals struct {
	Config   string `help:"YAML configuration file." type:"path" placeholder:"FILE"`
	LogLevel string `name:"log-level" help:"Log level, overrides the config file." placeholder:"LEVEL"`
	Pretty   bool   `help:"Human readable log output."`
}

// CLI is the command tree
type CLI struct {
	Globals

	Run     RunCmd           `cmd:"" default:"1" help:"Run the playback daemon."`
	Inspect InspectCmd       `cmd:"" help:"Print the container header of a track."`
	Noise   NoiseCmd         `cmd:"" help:"Write a random-noise WAV file."`
	Version kong.VersionFlag `help:"Show version information."`
}

// RunCmd starts the daemon
type RunCmd struct {
	Root           string   `help:"Track volume mount point." type:"path"`
	DeviceID       string   `name:"device-id" help:"Device identifier used in NATS subjects."`
	NATS           string   `name:"nats" help:"NATS URL, empty disables remote requests."`
	MetricsAddr    string   `name:"metrics-addr" help:"Prometheus listen address, empty disables."`
	WatchdogDevice string   `name:"watchdog-device" help:"Hardware watchdog device, empty runs without one."`
	Play           []string `help:"Tracks or directives to queue at startup." sep:","`
}

// Run loads the configuration and blocks until SIGINT or SIGTERM
func (r *RunCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g, r.override)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Pretty || g.Pretty)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.PrintBanner(os.Stderr, version)
	return runDaemon(ctx, cfg, log, daemonDeps{backend: audio.NewPortAudioBackend()}, r.Play)
}

func (r *RunCmd) override(cfg *config.Config) {
	if r.Root != "" {
		cfg.Storage.Root = r.Root
	}
	if r.DeviceID != "" {
		cfg.DeviceID = r.DeviceID
	}
	if r.NATS != "" {
		cfg.NATS.URL = r.NATS
	}
	if r.MetricsAddr != "" {
		cfg.Metrics.Listen = r.MetricsAddr
	}
	if r.WatchdogDevice != "" {
		cfg.Watchdog.Device = r.WatchdogDevice
	}
}

// loadConfig reads the optional config file, then applies flag overrides
func loadConfig(g *Globals, override func(*config.Config)) (*config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newParser(c *CLI, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("loqa-chime"),
		kong.Description("Watchdog-supervised chime playback daemon."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter()),
	}
	return kong.New(c, append(base, opts...)...)
}

func main() {
	var c CLI
	parser, err := newParser(&c)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(&c.Globals); err != nil {
		cli.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}
