// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("Starting security event pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}

	if err := a.run(ctx); err != nil {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}
	if err := a.close(); err != nil {
		logging.Error().Err(err).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
	logging.Info().Msg("Shutdown complete")
}
