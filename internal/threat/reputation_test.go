// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func newTestReputationClient(t *testing.T, handler http.HandlerFunc) (*HTTPReputationClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPReputationClient(HTTPReputationClientConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Timeout:   time.Second,
		RateLimit: 1000,
		CacheTTL:  time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client, &calls
}

func TestHTTPReputationClient_LookupAndCache(t *testing.T) {
	client, calls := newTestReputationClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ip/198.51.100.23" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":0.72,"risk":"high"}`))
	})

	for i := 0; i < 3; i++ {
		res, err := client.CheckIP(context.Background(), "198.51.100.23")
		if err != nil {
			t.Fatal(err)
		}
		if res.Score != 0.72 || res.Risk != "high" {
			t.Errorf("result = %+v", res)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1 (cached)", n)
	}
}

func TestHTTPReputationClient_NotFoundIsClean(t *testing.T) {
	client, _ := newTestReputationClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	res, err := client.CheckIP(context.Background(), "198.51.100.24")
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 0 {
		t.Errorf("score = %v, want 0", res.Score)
	}
}

func TestHTTPReputationClient_BreakerOpens(t *testing.T) {
	client, calls := newTestReputationClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.CheckIP(ctx, "198.51.100.25")
		if !errors.Is(err, ErrReputationUnavailable) {
			t.Fatalf("attempt %d: err = %v, want ErrReputationUnavailable", i, err)
		}
	}
	if client.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", client.State())
	}

	_, err := client.CheckIP(ctx, "198.51.100.25")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if n := calls.Load(); n != 5 {
		t.Errorf("server called %d times, want 5", n)
	}
}

func TestHTTPReputationClient_InvalidInput(t *testing.T) {
	if _, err := NewHTTPReputationClient(HTTPReputationClientConfig{}); err == nil {
		t.Error("empty base URL accepted")
	}

	client, calls := newTestReputationClient(t, func(http.ResponseWriter, *http.Request) {})
	_, err := client.CheckIP(context.Background(), "../../admin")
	if !errors.Is(err, ErrInvalidIP) {
		t.Errorf("err = %v, want ErrInvalidIP", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid IP reached the server")
	}
}

func TestHTTPReputationClient_MalformedBody(t *testing.T) {
	client, _ := newTestReputationClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":`))
	})
	_, err := client.CheckIP(context.Background(), "198.51.100.26")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("err = %v, want decode error", err)
	}
}
