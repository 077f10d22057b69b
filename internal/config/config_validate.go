// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package config

import (
	"errors"
	"fmt"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/validation"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks struct constraints and then cross-field rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	checks := []func() error{
		c.validateLogging,
		c.validateThreat,
		c.validateNATS,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateThreat() error {
	t := c.Threat
	if t.StatisticalWeight+t.RuleWeight+t.ReputationWeight <= 0 {
		return errors.New("threat weights must not all be zero")
	}
	if !(t.MediumThreshold < t.HighThreshold && t.HighThreshold < t.CriticalThreshold) {
		return fmt.Errorf("threat level thresholds must ascend: medium=%.2f high=%.2f critical=%.2f",
			t.MediumThreshold, t.HighThreshold, t.CriticalThreshold)
	}
	if _, err := t.ShiftLocation(); err != nil {
		return fmt.Errorf("THREAT_SHIFT_TIMEZONE %q: %w", t.ShiftTimezone, err)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return errors.New("NATS_STORE_DIR is required when the embedded server is enabled")
	}
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return errors.New("NATS_URL is required when using an external NATS server")
	}
	return nil
}
