// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

func okCheck(name string) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error { return nil }}
}

func failCheck(name string, optional bool) HealthCheck {
	return HealthCheck{
		Name:     name,
		Optional: optional,
		Check:    func(context.Context) error { return errors.New(name + " down") },
	}
}

func getReport(t *testing.T, router http.Handler, path string) (int, HealthReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
	}
	return rec.Code, report
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{"all ok", []HealthCheck{okCheck("event_store"), okCheck("nats")}, http.StatusOK, "ok"},
		{"optional failure", []HealthCheck{okCheck("event_store"), failCheck("nats", true)}, http.StatusOK, "degraded"},
		{"required failure", []HealthCheck{failCheck("event_store", false), failCheck("nats", true)}, http.StatusServiceUnavailable, "unavailable"},
		{"no checks", nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewHandler(tt.checks...), prometheus.NewRegistry())
			code, report := getReport(t, router, "/healthz")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if report.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", report.Status, tt.wantStatus)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("checks = %d, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestHealthReady_PanickingCheck(t *testing.T) {
	h := NewHandler(HealthCheck{Name: "broken", Check: func(context.Context) error { panic("nil store") }})
	report := h.Run(context.Background())
	if report.Status != "unavailable" {
		t.Errorf("status = %q, want unavailable", report.Status)
	}
	if report.Checks["broken"].Error != "check panicked" {
		t.Errorf("error = %q", report.Checks["broken"].Error)
	}
}

func TestHealthLive(t *testing.T) {
	router := NewRouter(NewHandler(failCheck("event_store", false)), prometheus.NewRegistry())
	code, report := getReport(t, router, "/healthz/live")
	if code != http.StatusOK || report.Status != "ok" {
		t.Errorf("live = %d %q, want 200 ok", code, report.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "security_test_counter_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	router := NewRouter(NewHandler(), reg)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "security_test_counter_total 3") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestRequestIDWithLogging(t *testing.T) {
	var got string
	h := RequestIDWithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "req-42" {
		t.Errorf("correlation id = %q, want req-42", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == "" {
		t.Error("no correlation id generated")
	}
}

func TestUnknownRoute(t *testing.T) {
	router := NewRouter(NewHandler(), prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 404 or 405", rec.Code)
	}
}
