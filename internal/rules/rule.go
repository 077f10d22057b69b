// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package rules

import (
	"sort"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
)

// Context is the snapshot a rule evaluates.
type Context struct {
	// Now is the evaluation time. Zero means time.Now().
	Now time.Time

	// Events is the caller-supplied recent event window.
	Events []events.Event

	// Series holds named numeric sequences, oldest first.
	Series map[string][]float64

	// Metadata carries free-form attributes such as station_id.
	Metadata map[string]string

	SourceIP string
	UserID   string
}

func (c *Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Hit is produced when a rule fires.
type Hit struct {
	RuleID   string                 `json:"rule_id"`
	Severity events.Severity        `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Rule is a detection rule. Evaluate returns nil when the rule does not fire.
type Rule interface {
	ID() string
	Description() string
	Evaluate(c *Context) (*Hit, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleID    string
	Desc      string
	Evaluator func(c *Context) (*Hit, error)
}

// ID implements Rule.
func (f RuleFunc) ID() string { return f.RuleID }

// Description implements Rule.
func (f RuleFunc) Description() string { return f.Desc }

// Evaluate implements Rule.
func (f RuleFunc) Evaluate(c *Context) (*Hit, error) { return f.Evaluator(c) }

// SortBySeverity orders hits most severe first, keeping registration order
// among equal severities.
func SortBySeverity(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Severity.Rank() > hits[j].Severity.Rank()
	})
}

// MaxSeverity returns the most severe hit severity, or "" for no hits.
func MaxSeverity(hits []Hit) events.Severity {
	var best events.Severity
	for _, h := range hits {
		if h.Severity.Rank() > best.Rank() {
			best = h.Severity
		}
	}
	return best
}
