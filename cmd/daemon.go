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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/loqalabs/loqa-chime-go/internal/audio"
	"github.com/loqalabs/loqa-chime-go/internal/catalog"
	"github.com/loqalabs/loqa-chime-go/internal/config"
	"github.com/loqalabs/loqa-chime-go/internal/metrics"
	"github.com/loqalabs/loqa-chime-go/internal/nats"
	"github.com/loqalabs/loqa-chime-go/internal/player"
	"github.com/loqalabs/loqa-chime-go/internal/playlist"
	"github.com/loqalabs/loqa-chime-go/internal/storage"
	"github.com/loqalabs/loqa-chime-go/internal/task"
	"github.com/loqalabs/loqa-chime-go/internal/watchdog"
)

const shutdownTimeout = 5 * time.Second

// daemonDeps holds the pieces swapped out under test
type daemonDeps struct {
	backend audio.AudioBackend
	fatal   watchdog.FatalFunc // nil exits the process
	ready   chan<- *player.Producer
}

// runDaemon wires storage, catalog, queue, sink, watchdog and the playback
// task, then blocks until ctx is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, log zerolog.Logger, deps daemonDeps, initial []string) (err error) {
	m := metrics.New()

	store, err := storage.NewDirStorage(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to open track volume: %w", err)
	}
	log.Info().Str("root", store.Root()).Msg("📂 Track volume mounted")

	cat, err := catalog.Build(store, "/", cfg.CatalogConfig(), log)
	if err != nil {
		return err
	}

	queue := playlist.NewQueue(cfg.Queue.Capacity, playlist.WithLogger(log))
	m.RegisterQueue(queue.Len, queue.Cap())

	producer := player.NewProducer(cat, queue, player.WithLogger(log), player.WithMetrics(m))

	sink, err := audio.NewStreamSink(deps.backend,
		audio.WithSinkLogger(log),
		audio.WithFramesPerBuffer(cfg.Playback.FramesPerBuffer),
	)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()

	var hw watchdog.HardwareTimer = watchdog.NopTimer{}
	if cfg.Watchdog.Device != "" {
		hw = watchdog.NewDeviceTimer(cfg.Watchdog.Device)
	}
	dogOpts := []watchdog.Option{
		watchdog.WithLogger(log),
		watchdog.WithKickObserver(m.ObserveKick),
	}
	if deps.fatal != nil {
		dogOpts = append(dogOpts, watchdog.WithFatal(deps.fatal))
	}
	dog := watchdog.New(cfg.WatchdogConfig(), hw, dogOpts...)
	dog.Configure(ctx)
	defer func() { err = multierr.Append(err, dog.Close()) }()

	worker, err := player.NewWorker(queue, store, sink, dog, cfg.PlayerConfig(),
		player.WithLogger(log), player.WithMetrics(m))
	if err != nil {
		return err
	}

	handle := task.NewRunner(dog, task.WithLogger(log)).Spawn(ctx, task.Descriptor{
		Name:      cfg.Task.Name,
		Fn:        worker.Step,
		StackSize: cfg.Task.StackSize,
		Priority:  cfg.Task.Priority,
		Core:      cfg.Task.Core,
	})
	defer func() { <-handle.Done() }()

	if cfg.NATS.URL != "" {
		sub, subErr := nats.NewPlaySubscriber(ctx, cfg.NATS.URL, cfg.DeviceID, producer, log)
		if subErr == nil {
			subErr = sub.Start()
			defer sub.Close()
		}
		if subErr != nil {
			log.Warn().Err(subErr).Msg("⚠️  Remote play requests disabled")
		}
	}

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, m, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	for _, name := range initial {
		producer.RequestPlayback(name)
	}

	log.Info().
		Str("device", cfg.DeviceID).
		Int("tracks", cat.Len()).
		Int("queue_capacity", queue.Cap()).
		Msg("🔔 Chime ready")
	if deps.ready != nil {
		deps.ready <- producer
	}

	<-ctx.Done()
	log.Info().Msg("🛑 Shutting down")
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("📈 Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("❌ Metrics server failed")
		}
	}()
	return srv
}
