// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event bus metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_emitted_total",
			Help: "Total number of security events accepted by the bus",
		},
		[]string{"event_type", "severity"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_rejected_total",
			Help: "Total number of emit calls rejected by validation",
		},
		[]string{"reason"}, // "unknown_type", "invalid_severity", "invalid_payload", "closed"
	)

	EventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_events_persisted_total",
			Help: "Total number of security events written to the durable store",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_events_persist_failures_total",
			Help: "Total number of failed durable store writes",
		},
	)

	PersistDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_events_persist_dropped_total",
			Help: "Total number of events dropped because the persistence queue was full",
		},
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_events_persist_queue_depth",
			Help: "Number of events waiting in the persistence queue",
		},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "security_events_persist_duration_seconds",
			Help:    "Duration of durable store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ListenerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_listener_errors_total",
			Help: "Total number of listener errors and panics",
		},
		[]string{"event_type"},
	)

	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_forwarded_total",
			Help: "Total number of events forwarded to external sinks",
		},
		[]string{"result"}, // "success", "error"
	)

	NATSPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_nats_messages_published_total",
			Help: "Total number of messages published to JetStream",
		},
		[]string{"result"}, // "success", "error", "rejected"
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_events_retention_deleted_total",
			Help: "Total number of events removed by retention cleanup",
		},
	)

	// Detection metrics
	RuleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rule_hits_total",
			Help: "Total number of rule hits",
		},
		[]string{"rule_id", "severity"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rule_errors_total",
			Help: "Total number of rules that errored or panicked during evaluation",
		},
		[]string{"rule_id"},
	)

	ThreatAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_threat_assessments_total",
			Help: "Total number of threat assessments by resulting level",
		},
		[]string{"level"},
	)

	ThreatScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "security_threat_score",
			Help:    "Distribution of aggregate threat scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.85, 1.0},
		},
	)

	ReputationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_reputation_lookups_total",
			Help: "Total number of IP reputation lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	ReputationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_reputation_failures_total",
			Help: "Total number of failed IP reputation lookups",
		},
		[]string{"reason"}, // "timeout", "circuit_open", "rate_limited", "error"
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_anomalies_detected_total",
			Help: "Total number of statistical anomalies detected",
		},
		[]string{"key_prefix"},
	)

	// Response metrics
	BlockedIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_blocked_ips",
			Help: "Current number of blocked IP addresses",
		},
	)

	IPBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_ip_blocks_total",
			Help: "Total number of IP blocks issued",
		},
		[]string{"origin"}, // "manual", "automatic"
	)

	Lockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_lockouts_total",
			Help: "Total number of account or IP lockouts",
		},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_suppressed_total",
			Help: "Total number of derived alerts dropped as duplicates",
		},
		[]string{"event_type"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordEventEmitted records an accepted emission.
func RecordEventEmitted(eventType, severity string) {
	EventsEmitted.WithLabelValues(eventType, severity).Inc()
}

// RecordEventRejected records a rejected emission.
func RecordEventRejected(reason string) {
	EventsRejected.WithLabelValues(reason).Inc()
}

// RecordPersist records the outcome of one durable store write.
func RecordPersist(duration time.Duration, err error) {
	PersistDuration.Observe(duration.Seconds())
	if err != nil {
		PersistFailures.Inc()
		return
	}
	EventsPersisted.Inc()
}

// RecordPersistDropped records an event dropped at a full persistence queue.
func RecordPersistDropped() {
	PersistDropped.Inc()
}

// UpdatePersistQueueDepth sets the persistence queue gauge.
func UpdatePersistQueueDepth(depth int) {
	PersistQueueDepth.Set(float64(depth))
}

// RecordListenerError records a listener error or recovered panic.
func RecordListenerError(eventType string) {
	ListenerErrors.WithLabelValues(eventType).Inc()
}

// RecordForward records a forwarding attempt to an external sink.
func RecordForward(err error) {
	if err != nil {
		EventsForwarded.WithLabelValues("error").Inc()
		return
	}
	EventsForwarded.WithLabelValues("success").Inc()
}

// RecordNATSPublish records a JetStream publish outcome.
func RecordNATSPublish(result string) {
	NATSPublished.WithLabelValues(result).Inc()
}

// RecordRetentionCleanup records events removed by retention cleanup.
func RecordRetentionCleanup(deleted int64) {
	if deleted > 0 {
		RetentionDeleted.Add(float64(deleted))
	}
}

// RecordRuleHit records a rule hit.
func RecordRuleHit(ruleID, severity string) {
	RuleHits.WithLabelValues(ruleID, severity).Inc()
}

// RecordRuleError records a rule that errored or panicked.
func RecordRuleError(ruleID string) {
	RuleErrors.WithLabelValues(ruleID).Inc()
}

// RecordThreatAssessment records an aggregate assessment.
func RecordThreatAssessment(level string, score float64) {
	ThreatAssessments.WithLabelValues(level).Inc()
	ThreatScore.Observe(score)
}

// RecordReputationLookup records whether a lookup was served from cache.
func RecordReputationLookup(cached bool) {
	if cached {
		ReputationLookups.WithLabelValues("hit").Inc()
		return
	}
	ReputationLookups.WithLabelValues("miss").Inc()
}

// RecordReputationFailure records a failed reputation lookup.
func RecordReputationFailure(reason string) {
	ReputationFailures.WithLabelValues(reason).Inc()
}

// RecordAnomaly records a statistical anomaly. Only the key prefix before the
// first ':' is used as a label to keep cardinality bounded.
func RecordAnomaly(key string) {
	prefix, _, _ := strings.Cut(key, ":")
	AnomaliesDetected.WithLabelValues(prefix).Inc()
}

// RecordIPBlock records a block issued manually or by the response policy.
func RecordIPBlock(automatic bool) {
	if automatic {
		IPBlocks.WithLabelValues("automatic").Inc()
		return
	}
	IPBlocks.WithLabelValues("manual").Inc()
}

// UpdateBlockedIPs sets the blocked IP gauge.
func UpdateBlockedIPs(n int) {
	BlockedIPs.Set(float64(n))
}

// RecordLockout records an issued lockout.
func RecordLockout() {
	Lockouts.Inc()
}

// RecordAlertSuppressed records a derived alert dropped as a duplicate.
func RecordAlertSuppressed(eventType string) {
	AlertsSuppressed.WithLabelValues(eventType).Inc()
}

// RecordCircuitBreakerTransition records a breaker state change.
// States follow gobreaker's String(): "closed", "half-open", "open".
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	switch to {
	case "closed":
		CircuitBreakerState.WithLabelValues(name).Set(0)
	case "half-open":
		CircuitBreakerState.WithLabelValues(name).Set(1)
	case "open":
		CircuitBreakerState.WithLabelValues(name).Set(2)
	}
}
