// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

// ReputationResult is an external opinion of an IP address.
type ReputationResult struct {
	// Score is the probability-like badness in [0, 1].
	Score float64 `json:"score"`
	// Risk is the provider's label (low, medium, high, critical).
	Risk string `json:"risk,omitempty"`
}

// ReputationClient looks up IP reputation.
type ReputationClient interface {
	CheckIP(ctx context.Context, ip string) (*ReputationResult, error)
}

// ReputationClientFunc adapts a function to ReputationClient.
type ReputationClientFunc func(ctx context.Context, ip string) (*ReputationResult, error)

// CheckIP implements ReputationClient.
func (f ReputationClientFunc) CheckIP(ctx context.Context, ip string) (*ReputationResult, error) {
	return f(ctx, ip)
}

const (
	reputationBreakerName = "reputation-api"
	reputationCacheSize   = 4096
	maxReputationBody     = 64 << 10
)

// HTTPReputationClientConfig configures HTTPReputationClient.
type HTTPReputationClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// HTTPReputationClient queries GET {BaseURL}/v1/ip/{ip}. Calls go through a
// rate limiter and a circuit breaker; results are cached per IP.
type HTTPReputationClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*ReputationResult]
	cache   *lru.LRU[string, *ReputationResult]
}

// NewHTTPReputationClient creates a client.
//
// Circuit breaker configuration:
//   - 1 probe request in half-open state
//   - 1 minute measurement window
//   - 30 second timeout before probing again
//   - Opens after 5 consecutive failures
func NewHTTPReputationClient(cfg HTTPReputationClientConfig) (*HTTPReputationClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("reputation base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid reputation base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	metrics.CircuitBreakerState.WithLabelValues(reputationBreakerName).Set(0)
	log := logging.WithComponent("reputation")

	breaker := gobreaker.NewCircuitBreaker[*ReputationResult](gobreaker.Settings{
		Name:        reputationBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Caller cancellation says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Reputation circuit breaker state transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &HTTPReputationClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		breaker: breaker,
		cache:   lru.NewLRU[string, *ReputationResult](reputationCacheSize, nil, cfg.CacheTTL),
	}, nil
}

// CheckIP implements ReputationClient.
func (c *HTTPReputationClient) CheckIP(ctx context.Context, ip string) (*ReputationResult, error) {
	canonical, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.cache.Get(canonical); ok {
		metrics.RecordReputationLookup(true)
		return cached, nil
	}
	metrics.RecordReputationLookup(false)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	res, err := c.breaker.Execute(func() (*ReputationResult, error) {
		return c.fetch(ctx, canonical)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	c.cache.Add(canonical, res)
	return res, nil
}

// State returns the breaker state.
func (c *HTTPReputationClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *HTTPReputationClient) fetch(ctx context.Context, ip string) (*ReputationResult, error) {
	endpoint := c.baseURL + "/v1/ip/" + url.PathEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create reputation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReputationUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown to the provider.
		return &ReputationResult{Score: 0, Risk: "low"}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrReputationUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReputationBody))
	if err != nil {
		return nil, fmt.Errorf("read reputation response: %w", err)
	}
	var out ReputationResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode reputation response: %w", err)
	}
	out.Score = clamp01(out.Score)
	return &out, nil
}
