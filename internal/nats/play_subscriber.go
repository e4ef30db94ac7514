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

// Package nats receives playback requests addressed to this device.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// BroadcastSubject reaches every chime on the bus
const BroadcastSubject = "chime.broadcast.play"

const (
	connectAttempts   = 5
	connectRetryDelay = 2 * time.Second
)

// DeviceSubject returns the play subject of a single device
func DeviceSubject(deviceID string) string {
	return fmt.Sprintf("chime.%s.play", deviceID)
}

// PlayRequest asks the device to queue a track by name
type PlayRequest struct {
	RequestID string `json:"request_id"`
	Track     string `json:"track"`
	Source    string `json:"source,omitempty"`
}

// PlayReply is published to the reply subject of a request, if any
type PlayReply struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

// PlaybackRequester is the producer side of the playback queue
type PlaybackRequester interface {
	RequestPlayback(name string) bool
}

// ChimeNATSConnection interface for dependency injection
type ChimeNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// ChimeNATSConnectionAdapter adapts *nats.Conn to ChimeNATSConnection
type ChimeNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewChimeNATSConnectionAdapter(conn *nats.Conn) *ChimeNATSConnectionAdapter {
	return &ChimeNATSConnectionAdapter{conn: conn}
}

func (a *ChimeNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *ChimeNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *ChimeNATSConnectionAdapter) Close() {
	a.conn.Close()
}

// Connect dials natsURL, retrying a few times while the bus comes up
func Connect(ctx context.Context, natsURL, deviceID string, log zerolog.Logger) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL,
			nats.Name("loqa-chime-"+deviceID),
			nats.MaxReconnects(-1),
		)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msgf("⚠️  Failed to connect to NATS (attempt %d/%d)", i+1, connectAttempts)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Info().Str("url", natsURL).Msg("✅ Connected to NATS")
	return nc, nil
}

// PlaySubscriber turns NATS play requests into producer calls
type PlaySubscriber struct {
	natsConn  ChimeNATSConnection
	deviceID  string
	requester PlaybackRequester
	log       zerolog.Logger
}

// NewPlaySubscriber connects to natsURL and returns an unstarted subscriber
func NewPlaySubscriber(ctx context.Context, natsURL, deviceID string, requester PlaybackRequester, log zerolog.Logger) (*PlaySubscriber, error) {
	nc, err := Connect(ctx, natsURL, deviceID, log)
	if err != nil {
		return nil, err
	}
	return NewPlaySubscriberWithConnection(NewChimeNATSConnectionAdapter(nc), deviceID, requester, log), nil
}

// NewPlaySubscriberWithConnection creates a subscriber over an existing connection (for testing)
func NewPlaySubscriberWithConnection(natsConn ChimeNATSConnection, deviceID string, requester PlaybackRequester, log zerolog.Logger) *PlaySubscriber {
	return &PlaySubscriber{
		natsConn:  natsConn,
		deviceID:  deviceID,
		requester: requester,
		log:       log,
	}
}

// Start subscribes to the device and broadcast subjects
func (s *PlaySubscriber) Start() error {
	subjects := []string{DeviceSubject(s.deviceID), BroadcastSubject}
	for _, subject := range subjects {
		if _, err := s.natsConn.Subscribe(subject, s.handlePlayMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}

	s.log.Info().Strs("subjects", subjects).Msg("🎧 Subscribed to play requests")
	return nil
}

func (s *PlaySubscriber) handlePlayMessage(msg *nats.Msg) {
	var req PlayRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Error().Err(err).Str("subject", msg.Subject).Msg("❌ Failed to unmarshal play request")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	accepted := s.requester.RequestPlayback(req.Track)
	s.log.Info().
		Str("request", req.RequestID).
		Str("track", req.Track).
		Str("source", req.Source).
		Bool("accepted", accepted).
		Msg("📥 Play request")

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(PlayReply{RequestID: req.RequestID, Accepted: accepted})
	if err != nil {
		s.log.Error().Err(err).Msg("❌ Failed to marshal play reply")
		return
	}
	if err := s.natsConn.Publish(msg.Reply, data); err != nil {
		s.log.Warn().Err(err).Str("request", req.RequestID).Msg("⚠️  Failed to publish play reply")
	}
}

// Close closes the NATS connection
func (s *PlaySubscriber) Close() {
	if s.natsConn != nil {
		s.natsConn.Close()
		s.log.Info().Msg("🔌 NATS connection closed")
	}
}
