// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/security-events/config.yaml",
	"/etc/security-events/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultRetentionDays is the seven year audit horizon.
const DefaultRetentionDays = 2555

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            9464,
			ShutdownTimeout: 10 * time.Second,
		},
		Events: EventsConfig{
			PersistBufferSize: 1000,
			PersistTimeout:    5 * time.Second,
			ListenerTimeout:   5 * time.Second,
			RetentionDays:     DefaultRetentionDays,
			CleanupInterval:   24 * time.Hour,
			CacheSize:         1000,
			MemoryStoreSize:   100000,
			MaxQueryLimit:     1000,
		},
		Analyzer: AnalyzerConfig{
			WindowSize: 100,
			ZThreshold: 2.0,
			MinSamples: 5,
		},
		Threat: ThreatConfig{
			StatisticalWeight:       0.3,
			RuleWeight:              0.4,
			ReputationWeight:        0.3,
			MediumThreshold:         0.3,
			HighThreshold:           0.6,
			CriticalThreshold:       0.85,
			BlockThreshold:          0.6,
			FailedLoginThreshold:    5,
			FailedLoginWindow:       5 * time.Minute,
			EquipmentErrorThreshold: 3,
			EquipmentErrorWindow:    10 * time.Minute,
			DataExportThreshold:     50,
			DataExportWindow:        10 * time.Minute,
			ShiftStartHour:          6,
			ShiftEndHour:            22,
			ShiftTimezone:           "UTC",
			ReputationTimeout:       2 * time.Second,
			ReputationRateLimit:     10,
			ReputationCacheTTL:      15 * time.Minute,
			SweepInterval:           time.Minute,
		},
		Response: ResponseConfig{
			LockoutThreshold:     5,
			LockoutWindow:        15 * time.Minute,
			LockoutDuration:      30 * time.Minute,
			AutoBlock:            true,
			BlockTTL:             24 * time.Hour,
			SuppressionWindow:    60 * time.Second,
			SuppressionCacheSize: 10000,
			ObserveEmitsAnomaly:  true,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "/data/security-events.duckdb",
		},
		NATS: NATSConfig{
			Enabled:             false,
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			StreamName:          "SECURITY_EVENTS",
			SubjectPrefix:       "security.events",
			StreamRetentionDays: 30,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Default returns the built-in configuration without consulting files or
// the environment. Tests and embedded callers use it as a starting point.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration with layered sources:
//  1. Defaults
//  2. Optional YAML config file
//  3. Environment variables
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"http_enabled":          "server.enabled",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"events_persist_buffer":    "events.persist_buffer_size",
	"events_persist_timeout":   "events.persist_timeout",
	"events_listener_timeout":  "events.listener_timeout",
	"events_retention_days":    "events.retention_days",
	"events_cleanup_interval":  "events.cleanup_interval",
	"events_cache_size":        "events.cache_size",
	"events_memory_store_size": "events.memory_store_size",
	"events_max_query_limit":   "events.max_query_limit",

	"analyzer_window_size": "analyzer.window_size",
	"analyzer_z_threshold": "analyzer.z_threshold",
	"analyzer_min_samples": "analyzer.min_samples",

	"threat_statistical_weight":        "threat.statistical_weight",
	"threat_rule_weight":               "threat.rule_weight",
	"threat_reputation_weight":         "threat.reputation_weight",
	"threat_medium_threshold":          "threat.medium_threshold",
	"threat_high_threshold":            "threat.high_threshold",
	"threat_critical_threshold":        "threat.critical_threshold",
	"threat_block_threshold":           "threat.block_threshold",
	"threat_failed_login_threshold":    "threat.failed_login_threshold",
	"threat_failed_login_window":       "threat.failed_login_window",
	"threat_equipment_error_threshold": "threat.equipment_error_threshold",
	"threat_equipment_error_window":    "threat.equipment_error_window",
	"threat_data_export_threshold":     "threat.data_export_threshold",
	"threat_data_export_window":        "threat.data_export_window",
	"threat_shift_start_hour":          "threat.shift_start_hour",
	"threat_shift_end_hour":            "threat.shift_end_hour",
	"threat_shift_timezone":            "threat.shift_timezone",
	"threat_reputation_url":            "threat.reputation_url",
	"threat_reputation_api_key":        "threat.reputation_api_key",
	"threat_reputation_timeout":        "threat.reputation_timeout",
	"threat_reputation_rate_limit":     "threat.reputation_rate_limit",
	"threat_reputation_cache_ttl":      "threat.reputation_cache_ttl",
	"threat_blocklist_path":            "threat.blocklist_path",
	"threat_sweep_interval":            "threat.sweep_interval",

	"response_lockout_threshold":      "response.lockout_threshold",
	"response_lockout_window":         "response.lockout_window",
	"response_lockout_duration":       "response.lockout_duration",
	"response_auto_block":             "response.auto_block",
	"response_block_ttl":              "response.block_ttl",
	"response_suppression_window":     "response.suppression_window",
	"response_suppression_cache_size": "response.suppression_cache_size",
	"response_observe_emits_anomaly":  "response.observe_emits_anomaly",

	"duckdb_enabled": "database.enabled",
	"duckdb_path":    "database.path",

	"nats_enabled":               "nats.enabled",
	"nats_url":                   "nats.url",
	"nats_embedded":              "nats.embedded_server",
	"nats_store_dir":             "nats.store_dir",
	"nats_stream_name":           "nats.stream_name",
	"nats_subject_prefix":        "nats.subject_prefix",
	"nats_stream_retention_days": "nats.stream_retention_days",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped.
//
// Examples:
//   - LOG_LEVEL -> logging.level
//   - RESPONSE_LOCKOUT_THRESHOLD -> response.lockout_threshold
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
