// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package rules

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

// Engine evaluates registered rules in registration order.
type Engine struct {
	mu     sync.RWMutex
	rules  []*registered
	logger zerolog.Logger

	statsMu     sync.Mutex
	evaluations int64
}

type registered struct {
	rule    Rule
	hits    int64
	errors  int64
	lastHit *time.Time
}

// RuleStatistics are the counters of one registered rule.
type RuleStatistics struct {
	Index       int        `json:"index"`
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Hits        int64      `json:"hits"`
	Errors      int64      `json:"errors"`
	LastHitAt   *time.Time `json:"last_hit_at,omitempty"`
}

// Statistics summarizes the engine since construction.
type Statistics struct {
	TotalRules  int              `json:"total_rules"`
	Evaluations int64            `json:"evaluations"`
	Rules       []RuleStatistics `json:"rules"`
}

// NewEngine creates an engine, optionally seeded with rules.
func NewEngine(rules ...Rule) *Engine {
	e := &Engine{logger: logging.WithComponent("rules")}
	for _, r := range rules {
		e.AddRule(r)
	}
	return e
}

// AddRule appends a rule. Rules with duplicate IDs are kept as separate rules.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, &registered{rule: r})
	n := len(e.rules)
	e.mu.Unlock()

	e.logger.Debug().Str("rule_id", r.ID()).Int("index", n-1).Msg("Registered rule")
}

// Len returns the number of registered rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every rule against c and returns the hits in registration
// order. Failing rules are skipped.
func (e *Engine) Evaluate(c *Context) []Hit {
	if c == nil {
		c = &Context{}
	}

	e.mu.RLock()
	rules := make([]*registered, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var hits []Hit
	for i, r := range rules {
		hit, err := e.evaluateOne(r.rule, c)
		if err != nil {
			metrics.RecordRuleError(r.rule.ID())
			e.logger.Error().Err(err).
				Str("rule_id", r.rule.ID()).
				Int("index", i).
				Msg("Rule evaluation failed")
			e.statsMu.Lock()
			r.errors++
			e.statsMu.Unlock()
			continue
		}
		if hit == nil {
			continue
		}
		if hit.RuleID == "" {
			hit.RuleID = r.rule.ID()
		}
		metrics.RecordRuleHit(hit.RuleID, string(hit.Severity))

		now := c.now()
		e.statsMu.Lock()
		r.hits++
		r.lastHit = &now
		e.statsMu.Unlock()

		hits = append(hits, *hit)
	}

	e.statsMu.Lock()
	e.evaluations++
	e.statsMu.Unlock()

	return hits
}

// evaluateOne converts a panic into an error.
func (e *Engine) evaluateOne(r Rule, c *Context) (hit *Hit, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Debug().Str("stack", string(debug.Stack())).Msg("Rule panic stack")
			hit = nil
			err = fmt.Errorf("rule panicked: %v", p)
		}
	}()
	return r.Evaluate(c)
}

// GetRuleStatistics returns per-rule counters in registration order.
func (e *Engine) GetRuleStatistics() Statistics {
	e.mu.RLock()
	rules := make([]*registered, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	stats := Statistics{
		TotalRules:  len(rules),
		Evaluations: e.evaluations,
		Rules:       make([]RuleStatistics, len(rules)),
	}
	for i, r := range rules {
		stats.Rules[i] = RuleStatistics{
			Index:       i,
			ID:          r.rule.ID(),
			Description: r.rule.Description(),
			Hits:        r.hits,
			Errors:      r.errors,
		}
		if r.lastHit != nil {
			t := *r.lastHit
			stats.Rules[i].LastHitAt = &t
		}
	}
	return stats
}
