// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package service is the producer-facing API of the security event pipeline.

Service wraps an events.Bus with typed emitters (EmitAuthFailure,
EmitThreatDetected, ...) and registers the automated response policies as
bus listeners at construction:

  - user.login.failed: counts failures per user and per IP; reaching the
    lockout threshold emits one auth_lockout per lock transition.
  - auth.unlock: returns the named keys to NORMAL.
  - threat.detected: blocks the source IP (high or critical, AutoBlock
    enabled) and emits threat_blocked.
  - manufacturing.station.access, data.read, data.write, data.export: feed
    per-minute activity counts to the analyzer and run a threat assessment.
    The outcome is logged; a threat raises security.anomaly. Nothing is
    blocked.
  - compliance.violation: emits a compliance_report.

Derived events keep the correlation ID of the event that caused them.
Repeated derived alerts for the same type, IP and user are suppressed for
the configured window.

The service also keeps in-memory counters and a ring buffer of recent
events (GetMetrics, GetCachedEvents). They are not durable; the bus store
is the record.
*/
package service
