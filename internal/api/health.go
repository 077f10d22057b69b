// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

// HealthCheck probes one dependency. Optional checks report "degraded"
// instead of failing readiness.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// CheckResult is one entry of the readiness report.
type CheckResult struct {
	Status    string  `json:"status"` // "ok" or "failed"
	Error     string  `json:"error,omitempty"`
	Optional  bool    `json:"optional,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status    string                 `json:"status"` // "ok", "degraded" or "unavailable"
	Uptime    float64                `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler serves the health endpoints.
type Handler struct {
	mu           sync.RWMutex
	checks       []HealthCheck
	startTime    time.Time
	checkTimeout time.Duration
}

// NewHandler creates a handler with the given checks.
func NewHandler(checks ...HealthCheck) *Handler {
	return &Handler{
		checks:       checks,
		startTime:    time.Now(),
		checkTimeout: 2 * time.Second,
	}
}

// AddCheck registers another check.
func (h *Handler) AddCheck(c HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &HealthReport{
		Status:    "ok",
		Uptime:    time.Since(h.startTime).Seconds(),
		Timestamp: time.Now().UTC(),
	})
}

// HealthReady runs every check concurrently.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())
	status := http.StatusOK
	if report.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

// Run executes the checks and builds the report.
func (h *Handler) Run(ctx context.Context) *HealthReport {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := &HealthReport{
		Status:    "ok",
		Uptime:    time.Since(h.startTime).Seconds(),
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}
	// Sorted so the failure log is stable.
	order := make([]int, len(checks))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return checks[order[a]].Name < checks[order[b]].Name })

	for _, i := range order {
		res := results[i]
		report.Checks[checks[i].Name] = res
		if res.Status == "ok" {
			continue
		}
		logging.Warn().Str("check", checks[i].Name).Str("error", res.Error).Msg("Health check failed")
		if res.Optional {
			if report.Status == "ok" {
				report.Status = "degraded"
			}
			continue
		}
		report.Status = "unavailable"
	}
	return report
}

func runCheck(ctx context.Context, c HealthCheck) (res CheckResult) {
	start := time.Now()
	res = CheckResult{Status: "ok", Optional: c.Optional}
	defer func() {
		if r := recover(); r != nil {
			res.Status = "failed"
			res.Error = "check panicked"
		}
		res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	}()
	if err := c.Check(ctx); err != nil {
		res.Status = "failed"
		res.Error = err.Error()
	}
	return res
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
