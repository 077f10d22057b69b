// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

type contextKey string

const (
	emitContextKey contextKey = "emit_context"
	depthKey       contextKey = "derivation_depth"
)

// MaxDerivationDepth bounds how many times listeners may re-emit from an
// event they received.
const MaxDerivationDepth = 4

// EmitContext is the request-scoped attribution merged into emitted events.
type EmitContext struct {
	CorrelationID string
	SessionID     string
	UserID        string
	IPAddress     string
	Source        Source
}

// WithEmitContext returns a context carrying ec. The correlation ID is
// mirrored into the logging context so log lines carry it too.
func WithEmitContext(ctx context.Context, ec EmitContext) context.Context {
	ctx = context.WithValue(ctx, emitContextKey, ec)
	if ec.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, ec.CorrelationID)
	}
	return ctx
}

// WithoutEmitContext returns a context with any emit context cleared,
// including the correlation ID mirrored into the logging context. The next
// event emitted from it gets a fresh correlation ID.
func WithoutEmitContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, emitContextKey, EmitContext{})
	return logging.ContextWithCorrelationID(ctx, "")
}

// EmitContextFrom returns the emit context carried by ctx, if any.
func EmitContextFrom(ctx context.Context) (EmitContext, bool) {
	ec, ok := ctx.Value(emitContextKey).(EmitContext)
	return ec, ok
}

// DerivedContext returns a context for emitting an event caused by evt:
// same correlation ID, session and IP, source system.
func DerivedContext(ctx context.Context, evt *Event) context.Context {
	return WithEmitContext(ctx, EmitContext{
		CorrelationID: evt.CorrelationID,
		SessionID:     evt.SessionID,
		UserID:        evt.UserID,
		IPAddress:     evt.IPAddress,
		Source:        SourceSystem,
	})
}

func derivationDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey).(int)
	return d
}

func withDerivationDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey, d)
}
