// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package metrics provides Prometheus instrumentation for the security event pipeline.

Collectors are registered with the default registry through promauto and are
updated through the Record* helpers so callers never touch label ordering.

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format:

	curl http://localhost:9464/metrics

# Available Metrics

Event bus:
  - security_events_emitted_total{event_type,severity}
  - security_events_rejected_total{reason}
  - security_events_persisted_total
  - security_events_persist_failures_total
  - security_events_persist_dropped_total
  - security_events_persist_queue_depth
  - security_events_persist_duration_seconds
  - security_listener_errors_total{event_type}
  - security_events_forwarded_total{result}
  - security_events_retention_deleted_total

Detection and response:
  - security_rule_hits_total{rule_id,severity}
  - security_rule_errors_total{rule_id}
  - security_threat_assessments_total{level}
  - security_threat_score
  - security_reputation_lookups_total{result}
  - security_reputation_failures_total{reason}
  - security_blocked_ips
  - security_ip_blocks_total{origin}
  - security_lockouts_total
  - security_alerts_suppressed_total{event_type}
  - security_anomalies_detected_total{key_prefix}

Circuit breakers:
  - circuit_breaker_state{name}
  - circuit_breaker_transitions_total{name,from,to}
*/
package metrics
