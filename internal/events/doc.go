// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package events is the append-only security event log: the closed event
vocabulary, the Bus that validates and broadcasts events, and the stores that
persist them.

# Vocabulary

EventType, Severity and Source are closed sets. Emit rejects anything outside
them with a *ValidationError before a listener runs or persistence is
attempted, so a typo at a call site fails loudly instead of producing an
event no listener will ever match.

# Emitting

Request-scoped attribution (correlation, session, user, client IP, source)
travels in the context rather than on the bus:

	ctx = events.WithEmitContext(ctx, events.EmitContext{
	    CorrelationID: reqID,
	    UserID:        "operator-7",
	    Source:        events.SourceUser,
	})
	evt, err := bus.Emit(ctx, events.TypeDataRead, events.SeverityLow, payload, nil)

# Listeners

Subscribe registers a listener for one event type, SubscribeAll for every
event. Generic listeners run first, then type listeners, each in
registration order and synchronously on the emitting goroutine. A listener
that returns an error or panics is logged and counted; the remaining
listeners still run and Emit still succeeds.

Listeners may emit derived events with the context they receive. Derivation
depth is tracked in that context and capped, so a listener that reacts to
its own output cannot recurse forever.

# Persistence

Accepted events are queued and written by RunWithContext, which runs as a
supervised service. A full queue drops the event (counted in
security_events_persist_dropped_total); a failing store is logged and
counted. Neither surfaces as an error to the emitter. After a successful
write the event is handed to every configured Sink (for example a NATS
JetStream forwarder).

# Stores

  - MemoryStore: bounded in-process store for development and tests
  - DuckDBStore: security_events table in DuckDB
*/
package events
