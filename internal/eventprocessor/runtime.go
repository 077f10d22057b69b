// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

// Runtime owns the NATS resources used for forwarding.
type Runtime struct {
	Server    *EmbeddedServer // nil when connecting to an external server
	Streams   *StreamInitializer
	Publisher *Publisher

	conn *natsgo.Conn
}

// Start brings up the messaging layer described by cfg: the embedded server
// if requested, the stream, and the publisher. Partially created resources
// are released on error.
func Start(ctx context.Context, cfg config.NATSConfig) (*Runtime, error) {
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return StartWithSettings(ctx, settings)
}

// StartWithSettings is Start with explicit package settings.
func StartWithSettings(ctx context.Context, settings Settings) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	if settings.Embedded {
		rt.Server, err = NewEmbeddedServer(settings.Server)
		if err != nil {
			return nil, err
		}
		settings.Publisher.URL = rt.Server.ClientURL()
	}

	rt.conn, err = natsgo.Connect(settings.Publisher.URL,
		natsgo.Name("security-events-admin"),
		natsgo.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", settings.Publisher.URL, err)
	}

	js, err := jetstream.New(rt.conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	rt.Streams, err = NewStreamInitializer(js, settings.Stream)
	if err != nil {
		return nil, err
	}
	if _, err = rt.Streams.EnsureStream(ctx); err != nil {
		return nil, err
	}

	rt.Publisher, err = NewPublisher(settings.Publisher, settings.Breaker, NewZerologAdapter())
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("url", settings.Publisher.URL).
		Str("stream", settings.Stream.Name).
		Strs("subjects", settings.Stream.Subjects).
		Bool("embedded", settings.Embedded).
		Msg("JetStream forwarding ready")
	return rt, nil
}

// Healthy reports whether the connection is up and the stream is reachable.
func (r *Runtime) Healthy(ctx context.Context) bool {
	if r.conn == nil || !r.conn.IsConnected() || r.Streams == nil {
		return false
	}
	return r.Streams.IsHealthy(ctx)
}

// Close releases the publisher, the admin connection and the embedded server,
// in that order.
func (r *Runtime) Close() error {
	var errs []error
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.conn != nil {
		r.conn.Close()
	}
	if r.Server != nil {
		r.Server.Shutdown()
	}
	return errors.Join(errs...)
}
