// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEventType is returned for an event type outside the registry.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidSeverity is returned for a severity outside low/medium/high/critical.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrInvalidSource is returned for a source outside system/user/external.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidPayload is returned when event data or metadata cannot be encoded.
	ErrInvalidPayload = errors.New("invalid event payload")

	// ErrInvalidWindow is returned by ParseWindow for an unsupported window.
	ErrInvalidWindow = errors.New("invalid statistics window")

	// ErrDerivationTooDeep is returned when listeners keep deriving events
	// past the configured depth.
	ErrDerivationTooDeep = errors.New("derived event depth exceeded")

	// ErrBusClosed is returned by Emit after Close.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrEventNotFound is returned by stores for an unknown event ID.
	ErrEventNotFound = errors.New("event not found")
)

// ValidationError describes an emit call rejected before any side effect.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
