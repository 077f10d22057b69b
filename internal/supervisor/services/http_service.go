// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService serves the operational endpoints (/healthz, /metrics)
// until the supervisor cancels it, then drains in-flight requests.
type HTTPServerService struct {
	server  HTTPServer
	addr    string
	drain   time.Duration
	logger  zerolog.Logger
	serving atomic.Bool
}

// NewHTTPServerService wraps server. drain bounds graceful shutdown and
// defaults to 10s. The listen address is read from *http.Server for logs.
func NewHTTPServerService(server HTTPServer, drain time.Duration) *HTTPServerService {
	if drain <= 0 {
		drain = 10 * time.Second
	}
	var addr string
	if s, ok := server.(*http.Server); ok {
		addr = s.Addr
	}
	return &HTTPServerService{
		server: server,
		addr:   addr,
		drain:  drain,
		logger: logging.WithComponent("http-server").With().Str("addr", addr).Logger(),
	}
}

// Serve implements suture.Service. A listener that fails returns the error so
// suture restarts it with backoff; cancellation returns ctx.Err() once the
// server has drained.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	exited := make(chan error, 1)
	go func() { exited <- h.server.ListenAndServe() }()

	h.serving.Store(true)
	defer h.serving.Store(false)
	h.logger.Info().Msg("Operational HTTP server listening")

	select {
	case err := <-exited:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			h.logger.Info().Msg("Operational HTTP server closed")
			return nil
		}
		h.logger.Error().Err(err).Msg("Operational HTTP server failed")
		return fmt.Errorf("listen on %q: %w", h.addr, err)
	case <-ctx.Done():
	}

	start := time.Now()
	// ctx is already done; drain against a fresh deadline.
	drainCtx, cancel := context.WithTimeout(context.Background(), h.drain)
	defer cancel()
	if err := h.server.Shutdown(drainCtx); err != nil {
		h.logger.Warn().Err(err).Dur("drain", h.drain).Msg("Operational HTTP server did not drain")
		return fmt.Errorf("drain %q: %w", h.addr, err)
	}
	<-exited
	h.logger.Info().Dur("took", time.Since(start)).Msg("Operational HTTP server stopped")
	return ctx.Err()
}

// Serving reports whether Serve is running.
func (h *HTTPServerService) Serving() bool {
	return h.serving.Load()
}

// Addr is the configured listen address, or "" for a non-*http.Server.
func (h *HTTPServerService) Addr() string {
	return h.addr
}

func (h *HTTPServerService) String() string {
	return "http-server"
}
