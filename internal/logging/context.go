// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type (
	correlationKey struct{}
	loggerKey      struct{}
)

// GenerateCorrelationID returns a short random ID (8 hex characters of a
// UUIDv4), long enough to grep for within a day of logs.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// ContextWithCorrelationID sets the correlation ID carried by ctx. An empty
// id clears it for everything derived from the returned context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// ContextWithNewCorrelationID is ContextWithCorrelationID with a generated ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ContextWithLogger makes Ctx use l instead of the process logger.
//
//nolint:gocritic // zerolog.Logger is passed by value throughout zerolog
func ContextWithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Ctx returns the context's logger (or the process logger) tagged with the
// context's correlation_id when there is one.
//
//	logging.Ctx(ctx).Info().Strs("keys", keys).Msg("Lockout cleared")
func Ctx(ctx context.Context) *zerolog.Logger {
	l, ok := ctx.Value(loggerKey{}).(zerolog.Logger)
	if !ok {
		l = Logger()
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.With().Str("correlation_id", id).Logger()
	}
	return &l
}

// WithComponent returns a child of the process logger with component=name.
// Packages take one at construction: "bus", "service", "threat", "rules".
func WithComponent(name string) zerolog.Logger {
	return With().Str("component", name).Logger()
}
