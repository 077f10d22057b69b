// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/analyzer"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/rules"
)

// Context is the input to one assessment. Every field is optional.
type Context struct {
	// RecentEvents are evaluated by the rule engine.
	RecentEvents []events.Event

	// SeriesByKey holds numeric series, oldest first; the last value of
	// each is scored against the rest.
	SeriesByKey map[string][]float64

	SourceIP  string
	UserID    string
	StationID string

	// TimeWindow, when positive, limits RecentEvents to [Now-TimeWindow, Now].
	TimeWindow time.Duration

	// Now overrides the aggregator clock.
	Now time.Time
}

// Contributions are the per-signal sub-scores, each in [0, 1].
type Contributions struct {
	Statistical float64 `json:"statistical"`
	Rule        float64 `json:"rule"`
	Reputation  float64 `json:"reputation"`
}

// Assessment is the result of Evaluate.
type Assessment struct {
	Score         float64         `json:"score"`
	Level         events.Severity `json:"level"`
	IsThreat      bool            `json:"is_threat"`
	Contributions Contributions   `json:"contributions"`
	Hits          []rules.Hit     `json:"hits,omitempty"`

	// AnomalyKey names the series that produced the statistical sub-score.
	AnomalyKey string `json:"anomaly_key,omitempty"`

	// Blocked is set when SourceIP is on the blocklist.
	Blocked bool `json:"blocked"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithReputationClient enables the reputation contributor.
func WithReputationClient(c ReputationClient) Option {
	return func(a *Aggregator) { a.reputation = c }
}

// WithBlocklist replaces the default memory-only blocklist.
func WithBlocklist(b *Blocklist) Option {
	return func(a *Aggregator) { a.blocklist = b }
}

// WithRules registers extra rules after the built-in templates.
func WithRules(rs ...rules.Rule) Option {
	return func(a *Aggregator) { a.extraRules = append(a.extraRules, rs...) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator scores threats and owns the blocklist.
type Aggregator struct {
	cfg        config.ThreatConfig
	analyzer   *analyzer.Analyzer
	engine     *rules.Engine
	reputation ReputationClient
	blocklist  *Blocklist
	extraRules []rules.Rule
	now        func() time.Time
	logger     zerolog.Logger

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// NewAggregator creates an aggregator. The rule engine is seeded with the
// failed login, equipment error, data exfiltration and after-hours templates
// using the thresholds in cfg.
func NewAggregator(cfg config.ThreatConfig, an *analyzer.Analyzer, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg,
		analyzer: an,
		now:      time.Now,
		logger:   logging.WithComponent("threat"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.analyzer == nil {
		a.analyzer = analyzer.New(analyzer.DefaultConfig())
	}
	if a.blocklist == nil {
		a.blocklist = NewBlocklist(nil, a.now)
	}

	loc, err := cfg.ShiftLocation()
	if err != nil {
		a.logger.Warn().Err(err).Str("timezone", cfg.ShiftTimezone).Msg("Unknown shift timezone, using UTC")
		loc = time.UTC
	}

	a.engine = rules.NewEngine(
		rules.FailedLoginBurst(cfg.FailedLoginThreshold, cfg.FailedLoginWindow),
		rules.EquipmentErrorRate(cfg.EquipmentErrorThreshold, cfg.EquipmentErrorWindow),
		rules.DataExfiltrationBurst(cfg.DataExportThreshold, cfg.DataExportWindow),
		rules.StationAccessAfterHours(cfg.ShiftStartHour, cfg.ShiftEndHour, loc),
	)
	for _, r := range a.extraRules {
		a.engine.AddRule(r)
	}
	return a
}

// Engine exposes the rule engine for statistics and extra registrations.
func (a *Aggregator) Engine() *rules.Engine { return a.engine }

// Analyzer returns the statistical analyzer.
func (a *Aggregator) Analyzer() *analyzer.Analyzer { return a.analyzer }

// Blocklist returns the blocklist.
func (a *Aggregator) Blocklist() *Blocklist { return a.blocklist }

// Evaluate produces an assessment. It never fails: a contributor that
// errors, panics or times out contributes 0.
func (a *Aggregator) Evaluate(ctx context.Context, tc Context) Assessment {
	now := tc.Now
	if now.IsZero() {
		now = a.now()
	}

	recent := tc.RecentEvents
	if tc.TimeWindow > 0 {
		recent = eventsWithin(recent, now.Add(-tc.TimeWindow), now)
	}

	res := Assessment{EvaluatedAt: now}

	res.Contributions.Statistical, res.AnomalyKey = a.statisticalScore(tc.SeriesByKey)

	res.Hits = a.engine.Evaluate(&rules.Context{
		Now:      now,
		Events:   recent,
		Series:   tc.SeriesByKey,
		SourceIP: tc.SourceIP,
		UserID:   tc.UserID,
		Metadata: stationMetadata(tc.StationID),
	})
	rules.SortBySeverity(res.Hits)
	res.Contributions.Rule = severityWeight(rules.MaxSeverity(res.Hits))

	if tc.SourceIP != "" {
		res.Contributions.Reputation = a.reputationScore(ctx, tc.SourceIP)
		res.Blocked = a.blocklist.IsBlocked(tc.SourceIP)
	}

	res.Score = clamp01(
		a.cfg.StatisticalWeight*res.Contributions.Statistical +
			a.cfg.RuleWeight*res.Contributions.Rule +
			a.cfg.ReputationWeight*res.Contributions.Reputation,
	)
	res.Level = a.level(res.Score)

	if hit := rules.MaxSeverity(res.Hits); hit.AtLeast(events.SeverityHigh) {
		res.IsThreat = true
		if hit.Rank() > res.Level.Rank() {
			res.Level = hit
		}
	}
	if res.Level.AtLeast(events.SeverityHigh) || res.Score >= a.cfg.BlockThreshold {
		res.IsThreat = true
	}

	metrics.RecordThreatAssessment(string(res.Level), res.Score)
	if res.IsThreat {
		a.logger.Warn().
			Float64("score", res.Score).
			Str("level", string(res.Level)).
			Int("hits", len(res.Hits)).
			Str("source_ip", tc.SourceIP).
			Str("user_id", logging.SanitizeUserID(tc.UserID)).
			Msg("Threat assessed")
	} else {
		a.logger.Debug().
			Float64("score", res.Score).
			Str("level", string(res.Level)).
			Msg("Threat assessed")
	}
	return res
}

// CheckIPThreat evaluates an IP on its own. A blocked IP is always a
// threat at level high or above.
func (a *Aggregator) CheckIPThreat(ctx context.Context, ip string) (Assessment, error) {
	canonical, err := NormalizeIP(ip)
	if err != nil {
		return Assessment{}, err
	}
	res := a.Evaluate(ctx, Context{SourceIP: canonical})
	if res.Blocked {
		res.IsThreat = true
		if !res.Level.AtLeast(events.SeverityHigh) {
			res.Level = events.SeverityHigh
		}
	}
	return res, nil
}

// BlockIP blocks ip. ttl <= 0 blocks until UnblockIP.
func (a *Aggregator) BlockIP(ctx context.Context, ip, reason string, ttl time.Duration) (BlockEntry, error) {
	return a.blocklist.Block(ctx, ip, reason, ttl, false)
}

// AutoBlockIP blocks ip on behalf of the response policy.
func (a *Aggregator) AutoBlockIP(ctx context.Context, ip, reason string, ttl time.Duration) (BlockEntry, error) {
	return a.blocklist.Block(ctx, ip, reason, ttl, true)
}

// UnblockIP removes a block and reports whether one existed.
func (a *Aggregator) UnblockIP(ctx context.Context, ip string) (bool, error) {
	return a.blocklist.Unblock(ctx, ip)
}

// IsIPBlocked reports whether ip is currently blocked.
func (a *Aggregator) IsIPBlocked(ip string) bool {
	return a.blocklist.IsBlocked(ip)
}

// ListBlocked returns the active blocks.
func (a *Aggregator) ListBlocked() []BlockEntry {
	return a.blocklist.List()
}

// RunWithContext sweeps expired blocks every SweepInterval until ctx is done.
func (a *Aggregator) RunWithContext(ctx context.Context) error {
	interval := a.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", interval).Msg("Blocklist sweeper started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Blocklist sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *Aggregator) sweep() {
	now := a.now()
	a.blocklist.Sweep(now)
	a.sweepMu.Lock()
	a.lastSweep = now
	a.sweepMu.Unlock()
}

// LastSweep returns when the sweeper last ran.
func (a *Aggregator) LastSweep() time.Time {
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()
	return a.lastSweep
}

// statisticalScore returns the highest anomaly confidence over all series
// and the key that produced it. Keys are visited in sorted order so ties
// resolve deterministically.
func (a *Aggregator) statisticalScore(series map[string][]float64) (float64, string) {
	if len(series) == 0 {
		return 0, ""
	}
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestKey := 0.0, ""
	for _, k := range keys {
		an := a.analyzer.ScoreLast(series[k])
		if !an.IsAnomaly {
			continue
		}
		metrics.RecordAnomaly(k)
		if an.Confidence > best {
			best, bestKey = an.Confidence, k
		}
	}
	return clamp01(best), bestKey
}

// reputationScore consults the reputation client within ReputationTimeout.
func (a *Aggregator) reputationScore(ctx context.Context, ip string) (score float64) {
	if a.reputation == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("ip", ip).Msg("Reputation client panicked")
			metrics.RecordReputationFailure("error")
			score = 0
		}
	}()

	timeout := a.cfg.ReputationTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		rep *ReputationResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: errors.New("reputation client panicked")}
			}
		}()
		rep, err := a.reputation.CheckIP(ctx, ip)
		done <- result{rep: rep, err: err}
	}()

	// A client that ignores ctx must not hold up the assessment.
	select {
	case <-ctx.Done():
		metrics.RecordReputationFailure("timeout")
		a.logger.Warn().Str("ip", ip).Dur("timeout", timeout).Msg("Reputation lookup timed out")
		return 0
	case r := <-done:
		if r.err != nil {
			reason := "error"
			switch {
			case errors.Is(r.err, context.DeadlineExceeded):
				reason = "timeout"
			case errors.Is(r.err, ErrCircuitOpen):
				reason = "circuit_open"
			case errors.Is(r.err, ErrRateLimited):
				reason = "rate_limited"
			}
			metrics.RecordReputationFailure(reason)
			a.logger.Warn().Err(r.err).Str("ip", ip).Msg("Reputation lookup failed")
			return 0
		}
		if r.rep == nil {
			return 0
		}
		return clamp01(r.rep.Score)
	}
}

func (a *Aggregator) level(score float64) events.Severity {
	switch {
	case score < a.cfg.MediumThreshold:
		return events.SeverityLow
	case score < a.cfg.HighThreshold:
		return events.SeverityMedium
	case score < a.cfg.CriticalThreshold:
		return events.SeverityHigh
	default:
		return events.SeverityCritical
	}
}

func severityWeight(s events.Severity) float64 {
	switch s {
	case events.SeverityLow:
		return 0.25
	case events.SeverityMedium:
		return 0.5
	case events.SeverityHigh:
		return 0.8
	case events.SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

func eventsWithin(evts []events.Event, from, to time.Time) []events.Event {
	out := make([]events.Event, 0, len(evts))
	for i := range evts {
		ts := evts[i].Timestamp
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, evts[i])
	}
	return out
}

func stationMetadata(stationID string) map[string]string {
	if stationID == "" {
		return nil
	}
	return map[string]string{"station_id": stationID}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
