// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package config loads and validates configuration for the security event pipeline.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, then config.yaml / config.yml in the
    working directory, then /etc/security-events/config.yaml
 3. Environment variables mapped through an explicit table (envTransformFunc)

Unmapped environment variables are ignored so that unrelated process
environment never leaks into the configuration tree.

# Configuration Structure

  - LoggingConfig: zerolog level, format and caller info
  - ServerConfig: operational HTTP listener (/healthz, /metrics)
  - EventsConfig: bus persistence queue, listener timeout, retention
  - AnalyzerConfig: per-key sample windows and z-score threshold
  - ThreatConfig: score weights, level thresholds, reputation client, blocklist
  - ResponseConfig: lockout policy, automatic IP blocking, alert suppression
  - DatabaseConfig: DuckDB event store
  - NATSConfig: optional JetStream forwarding of security events
  - SupervisorConfig: suture restart policy

# Validation

Validate runs go-playground/validator struct tags first and then the
cross-field checks that tags cannot express (ascending level thresholds,
non-zero weight sum, NATS URL when forwarding to an external server).
*/
package config
