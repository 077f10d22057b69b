// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package config

import "time"

// Config holds all configuration for the security event pipeline.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Server     ServerConfig     `koanf:"server"`
	Events     EventsConfig     `koanf:"events"`
	Analyzer   AnalyzerConfig   `koanf:"analyzer"`
	Threat     ThreatConfig     `koanf:"threat"`
	Response   ResponseConfig   `koanf:"response"`
	Database   DatabaseConfig   `koanf:"database"`
	NATS       NATSConfig       `koanf:"nats"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Environment variable: LOG_LEVEL
	// Default: info
	Level string `koanf:"level" validate:"required"`

	// Format is json or console.
	// Environment variable: LOG_FORMAT
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file:line in every entry.
	// Environment variable: LOG_CALLER
	// Default: false
	Caller bool `koanf:"caller"`
}

// ServerConfig holds the operational HTTP listener settings.
type ServerConfig struct {
	// Enabled turns on the /healthz and /metrics listener.
	// Environment variable: HTTP_ENABLED
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Host is the bind address.
	// Environment variable: HTTP_HOST
	// Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the listen port.
	// Environment variable: HTTP_PORT
	// Default: 9464
	Port int `koanf:"port" validate:"gte=1,lte=65535"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// EventsConfig holds SecurityEventBus settings.
type EventsConfig struct {
	// PersistBufferSize is the capacity of the asynchronous persistence queue.
	// Events are dropped (and counted) when the queue is full.
	// Environment variable: EVENTS_PERSIST_BUFFER
	// Default: 1000
	PersistBufferSize int `koanf:"persist_buffer_size" validate:"gte=1"`

	// PersistTimeout bounds a single store write.
	// Environment variable: EVENTS_PERSIST_TIMEOUT
	// Default: 5s
	PersistTimeout time.Duration `koanf:"persist_timeout" validate:"gt=0"`

	// ListenerTimeout is the deadline placed on each listener's context.
	// Default: 5s
	ListenerTimeout time.Duration `koanf:"listener_timeout" validate:"gt=0"`

	// RetentionDays is the horizon used by the retention cleanup service.
	// Environment variable: EVENTS_RETENTION_DAYS
	// Default: 2555 (7 years)
	RetentionDays int `koanf:"retention_days" validate:"gte=1"`

	// CleanupInterval is how often retention cleanup runs.
	// Default: 24h
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`

	// CacheSize is the ring buffer capacity of recent events kept in memory.
	// Environment variable: EVENTS_CACHE_SIZE
	// Default: 1000
	CacheSize int `koanf:"cache_size" validate:"gte=1"`

	// MemoryStoreSize caps the in-memory store used when DuckDB is disabled.
	// Default: 100000
	MemoryStoreSize int `koanf:"memory_store_size" validate:"gte=1"`

	// MaxQueryLimit caps Filter.Limit on GetEvents.
	// Default: 1000
	MaxQueryLimit int `koanf:"max_query_limit" validate:"gte=1"`
}

// AnalyzerConfig holds StatisticalAnalyzer settings.
type AnalyzerConfig struct {
	// WindowSize is the number of samples retained per key.
	// Default: 100
	WindowSize int `koanf:"window_size" validate:"gte=2"`

	// ZThreshold is the z-score above which a sample is an outlier.
	// Environment variable: ANALYZER_Z_THRESHOLD
	// Default: 2.0
	ZThreshold float64 `koanf:"z_threshold" validate:"gt=0"`

	// MinSamples is the window size below which nothing is anomalous.
	// Default: 5
	MinSamples int `koanf:"min_samples" validate:"gte=2"`
}

// ThreatConfig holds ThreatAggregator settings.
type ThreatConfig struct {
	// StatisticalWeight, RuleWeight and ReputationWeight weight the sub-scores.
	// Defaults: 0.3, 0.4, 0.3
	StatisticalWeight float64 `koanf:"statistical_weight" validate:"gte=0,lte=1"`
	RuleWeight        float64 `koanf:"rule_weight" validate:"gte=0,lte=1"`
	ReputationWeight  float64 `koanf:"reputation_weight" validate:"gte=0,lte=1"`

	// MediumThreshold, HighThreshold and CriticalThreshold map a score to a level.
	// Defaults: 0.3, 0.6, 0.85
	MediumThreshold   float64 `koanf:"medium_threshold" validate:"gt=0,lt=1"`
	HighThreshold     float64 `koanf:"high_threshold" validate:"gt=0,lt=1"`
	CriticalThreshold float64 `koanf:"critical_threshold" validate:"gt=0,lte=1"`

	// BlockThreshold is the score at or above which an assessment is a threat.
	// Default: 0.6
	BlockThreshold float64 `koanf:"block_threshold" validate:"gt=0,lte=1"`

	// FailedLoginThreshold and FailedLoginWindow seed the failed-login burst rule.
	// Defaults: 5, 5m
	FailedLoginThreshold int           `koanf:"failed_login_threshold" validate:"gte=1"`
	FailedLoginWindow    time.Duration `koanf:"failed_login_window" validate:"gt=0"`

	// EquipmentErrorThreshold and EquipmentErrorWindow seed the equipment error rule.
	// Defaults: 3, 10m
	EquipmentErrorThreshold int           `koanf:"equipment_error_threshold" validate:"gte=1"`
	EquipmentErrorWindow    time.Duration `koanf:"equipment_error_window" validate:"gt=0"`

	// DataExportThreshold and DataExportWindow seed the per-user read/export burst rule.
	// Defaults: 50, 10m
	DataExportThreshold int           `koanf:"data_export_threshold" validate:"gte=1"`
	DataExportWindow    time.Duration `koanf:"data_export_window" validate:"gt=0"`

	// ShiftStartHour and ShiftEndHour bound the production shift. Station access
	// outside [start, end) raises a medium hit. start > end wraps midnight.
	// Defaults: 6, 22
	ShiftStartHour int `koanf:"shift_start_hour" validate:"gte=0,lte=23"`
	ShiftEndHour   int `koanf:"shift_end_hour" validate:"gte=0,lte=24"`

	// ShiftTimezone is the IANA zone the shift hours are read in. Event
	// timestamps are UTC and are converted before the shift check.
	// Environment variable: THREAT_SHIFT_TIMEZONE
	// Default: "UTC"
	ShiftTimezone string `koanf:"shift_timezone"`

	// ReputationURL enables the HTTP reputation client when non-empty.
	// Environment variable: THREAT_REPUTATION_URL
	// Default: "" (disabled)
	ReputationURL string `koanf:"reputation_url" validate:"omitempty,url"`

	// ReputationAPIKey is sent as a bearer token.
	// Environment variable: THREAT_REPUTATION_API_KEY
	ReputationAPIKey string `koanf:"reputation_api_key"`

	// ReputationTimeout bounds a single lookup.
	// Default: 2s
	ReputationTimeout time.Duration `koanf:"reputation_timeout" validate:"gt=0"`

	// ReputationRateLimit is the maximum lookups per second.
	// Default: 10
	ReputationRateLimit float64 `koanf:"reputation_rate_limit" validate:"gt=0"`

	// ReputationCacheTTL is how long a lookup result is reused.
	// Default: 15m
	ReputationCacheTTL time.Duration `koanf:"reputation_cache_ttl" validate:"gt=0"`

	// BlocklistPath enables badger persistence of blocked IPs when non-empty.
	// Environment variable: THREAT_BLOCKLIST_PATH
	// Default: "" (in-memory only)
	BlocklistPath string `koanf:"blocklist_path"`

	// SweepInterval is how often expired blocks are evicted.
	// Default: 1m
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

// ResponseConfig holds the automated response policy settings.
type ResponseConfig struct {
	// LockoutThreshold is the failed attempts within LockoutWindow that lock a key.
	// Environment variable: RESPONSE_LOCKOUT_THRESHOLD
	// Default: 5
	LockoutThreshold int `koanf:"lockout_threshold" validate:"gte=1"`

	// LockoutWindow is the rolling window failures are counted in.
	// Default: 15m
	LockoutWindow time.Duration `koanf:"lockout_window" validate:"gt=0"`

	// LockoutDuration is how long a key stays LOCKED without an explicit unlock.
	// Default: 30m
	LockoutDuration time.Duration `koanf:"lockout_duration" validate:"gt=0"`

	// AutoBlock blocks the source IP of high severity threat detections.
	// Environment variable: RESPONSE_AUTO_BLOCK
	// Default: true
	AutoBlock bool `koanf:"auto_block"`

	// BlockTTL is the lifetime of automatic blocks. Zero means permanent.
	// Default: 24h
	BlockTTL time.Duration `koanf:"block_ttl" validate:"gte=0"`

	// SuppressionWindow drops duplicate derived alerts for the same key.
	// Default: 60s
	SuppressionWindow time.Duration `koanf:"suppression_window" validate:"gt=0"`

	// SuppressionCacheSize caps the number of tracked alert keys.
	// Default: 10000
	SuppressionCacheSize int `koanf:"suppression_cache_size" validate:"gte=1"`

	// ObserveEmitsAnomaly emits security.anomaly when an observed access is a threat.
	// Default: true
	ObserveEmitsAnomaly bool `koanf:"observe_emits_anomaly"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Enabled persists events to DuckDB. When false an in-memory store is used.
	// Environment variable: DUCKDB_ENABLED
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB database file.
	// Environment variable: DUCKDB_PATH
	// Default: /data/security-events.duckdb
	Path string `koanf:"path" validate:"required_if=Enabled true"`
}

// NATSConfig holds JetStream forwarding settings.
type NATSConfig struct {
	// Enabled forwards persisted events to JetStream.
	// Environment variable: NATS_ENABLED
	// Default: false
	Enabled bool `koanf:"enabled"`

	// URL of the NATS server.
	// Environment variable: NATS_URL
	// Default: nats://127.0.0.1:4222
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process NATS server with JetStream.
	// Environment variable: NATS_EMBEDDED
	// Default: true
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	// Default: /data/nats/jetstream
	StoreDir string `koanf:"store_dir"`

	// StreamName is the JetStream stream holding security events.
	// Default: SECURITY_EVENTS
	StreamName string `koanf:"stream_name" validate:"required_if=Enabled true"`

	// SubjectPrefix is prepended to the event type to form the subject.
	// Default: security.events
	SubjectPrefix string `koanf:"subject_prefix" validate:"required_if=Enabled true"`

	// StreamRetentionDays bounds how long JetStream keeps messages.
	// Default: 30
	StreamRetentionDays int `koanf:"stream_retention_days" validate:"gte=0"`
}

// SupervisorConfig holds suture restart policy settings.
type SupervisorConfig struct {
	// Default: 5
	FailureThreshold float64 `koanf:"failure_threshold" validate:"gt=0"`
	// Default: 30
	FailureDecay float64 `koanf:"failure_decay" validate:"gt=0"`
	// Default: 15s
	FailureBackoff time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	// Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// ShiftLocation resolves ShiftTimezone. An empty zone is UTC.
func (t ThreatConfig) ShiftLocation() (*time.Location, error) {
	if t.ShiftTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.ShiftTimezone)
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
