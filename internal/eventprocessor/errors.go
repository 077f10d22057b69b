// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package eventprocessor

import "errors"

var (
	// ErrNilPublisher is returned when a Publisher is built without a backend.
	ErrNilPublisher = errors.New("publisher is nil")

	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")

	// ErrStreamNotFound is returned when the JetStream stream does not exist.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrServerNotReady is returned when the embedded server fails to start in time.
	ErrServerNotReady = errors.New("NATS server not ready")
)
