// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package eventprocessor forwards persisted security events to NATS JetStream.

The package owns the messaging side of the pipeline:

  - EmbeddedServer runs an in-process NATS server with JetStream enabled,
    for single-node deployments that do not operate their own cluster.
  - StreamInitializer creates or updates the SECURITY_EVENTS stream before
    anything is published, so the publisher never auto-provisions.
  - Publisher wraps the Watermill NATS publisher with a circuit breaker and
    sets the Nats-Msg-Id header from the message UUID. The bus uses the
    event ID as the UUID, so a retried forward is deduplicated by JetStream.
  - Runtime ties the three together from config.NATSConfig.

Subjects follow "<prefix>.<event type>", for example
"security.events.auth_lockout". The stream captures "<prefix>.>".

# Wiring

	rt, err := eventprocessor.Start(ctx, cfg.NATS)
	if err != nil {
		return err
	}
	defer rt.Close()

	sink := events.NewWatermillSink(rt.Publisher, cfg.NATS.SubjectPrefix)

The sink is passed to events.NewBus. Forwarding failures are logged and
counted but never fail the emit; the local store remains the source of truth.
*/
package eventprocessor
