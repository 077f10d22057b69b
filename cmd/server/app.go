// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/analyzer"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/api"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/eventprocessor"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/service"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/supervisor"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/supervisor/services"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/threat"
)

// app holds every long-lived component so shutdown can release them in
// reverse order.
type app struct {
	cfg *config.Config

	db         *sql.DB
	duck       *events.DuckDBStore
	nats       *eventprocessor.Runtime
	blockStore *threat.BadgerBlocklistStore

	bus    *events.Bus
	agg    *threat.Aggregator
	svc    *service.Service
	health *api.Handler
	tree   *supervisor.Tree
}

// newApp builds the pipeline from cfg. Resources opened before a failure
// are closed before returning.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var busOpts []events.Option
	if cfg.NATS.Enabled {
		a.nats, err = eventprocessor.Start(ctx, cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("start JetStream forwarding: %w", err)
		}
		busOpts = append(busOpts, events.WithSinks(
			events.NewWatermillSink(a.nats.Publisher, cfg.NATS.SubjectPrefix),
		))
	}

	a.bus = events.NewBus(store, events.Config{
		PersistBufferSize: cfg.Events.PersistBufferSize,
		PersistTimeout:    cfg.Events.PersistTimeout,
		ListenerTimeout:   cfg.Events.ListenerTimeout,
		MaxQueryLimit:     cfg.Events.MaxQueryLimit,
		MemoryStoreSize:   cfg.Events.MemoryStoreSize,
	}, busOpts...)

	if err := a.buildAggregator(ctx); err != nil {
		return nil, err
	}

	a.svc, err = service.New(a.bus, a.agg, cfg.Response, service.WithCacheSize(cfg.Events.CacheSize))
	if err != nil {
		return nil, fmt.Errorf("create security event service: %w", err)
	}
	if err := a.svc.RebuildLockouts(ctx); err != nil {
		// A cold tracker only delays lockouts; keep starting.
		logging.Warn().Err(err).Msg("Failed to rebuild lockout state from history")
	}

	a.health = api.NewHandler(a.healthChecks()...)
	if err := a.buildTree(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (events.Store, error) {
	if !a.cfg.Database.Enabled {
		logging.Warn().Msg("DuckDB disabled; security events are kept in memory only")
		return events.NewMemoryStore(a.cfg.Events.MemoryStoreSize), nil
	}

	db, err := sql.Open("duckdb", a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open DuckDB at %s: %w", a.cfg.Database.Path, err)
	}
	a.db = db
	a.duck = events.NewDuckDBStore(db)
	if err := a.duck.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("create security_events table: %w", err)
	}
	logging.Info().Str("path", a.cfg.Database.Path).Msg("DuckDB event store ready")
	return a.duck, nil
}

func (a *app) buildAggregator(ctx context.Context) error {
	tc := a.cfg.Threat
	an := analyzer.New(analyzer.Config{
		WindowSize: a.cfg.Analyzer.WindowSize,
		ZThreshold: a.cfg.Analyzer.ZThreshold,
		MinSamples: a.cfg.Analyzer.MinSamples,
	})

	var opts []threat.Option
	if tc.BlocklistPath != "" {
		bs, err := threat.OpenBadgerBlocklistStore(tc.BlocklistPath)
		if err != nil {
			return fmt.Errorf("open blocklist store: %w", err)
		}
		a.blockStore = bs
		opts = append(opts, threat.WithBlocklist(threat.NewBlocklist(bs, nil)))
	}
	if tc.ReputationURL != "" {
		rc, err := threat.NewHTTPReputationClient(threat.HTTPReputationClientConfig{
			BaseURL:   tc.ReputationURL,
			APIKey:    tc.ReputationAPIKey,
			Timeout:   tc.ReputationTimeout,
			RateLimit: tc.ReputationRateLimit,
			CacheTTL:  tc.ReputationCacheTTL,
		})
		if err != nil {
			return fmt.Errorf("create reputation client: %w", err)
		}
		opts = append(opts, threat.WithReputationClient(rc))
	}

	a.agg = threat.NewAggregator(tc, an, opts...)

	if a.blockStore != nil {
		n, err := a.agg.Blocklist().Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore blocklist: %w", err)
		}
		logging.Info().Int("entries", n).Msg("Blocklist restored")
	}
	return nil
}

func (a *app) healthChecks() []api.HealthCheck {
	checks := []api.HealthCheck{{
		Name: "event_bus",
		Check: func(context.Context) error {
			if pending := a.bus.Pending(); pending >= a.cfg.Events.PersistBufferSize {
				return fmt.Errorf("persistence queue saturated (%d pending)", pending)
			}
			return nil
		},
	}}
	if a.duck != nil {
		checks = append(checks, api.HealthCheck{Name: "event_store", Check: a.duck.Ping})
	}
	if a.nats != nil {
		rt := a.nats
		checks = append(checks, api.HealthCheck{
			Name:     "nats",
			Optional: true,
			Check: func(ctx context.Context) error {
				if !rt.Healthy(ctx) {
					return errors.New("JetStream stream unreachable")
				}
				return nil
			},
		})
	}
	return checks
}

func (a *app) buildTree() error {
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(a.cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddStorageService(services.NewRunnerService("event-persister", a.bus))
	tree.AddStorageService(services.NewRetentionService(a.bus, a.cfg.Events.RetentionDays, a.cfg.Events.CleanupInterval))
	tree.AddDetectionService(services.NewRunnerService("blocklist-sweeper", a.agg))

	if a.cfg.Server.Enabled {
		srv := api.NewServer(a.cfg.Server.Addr(), api.NewRouter(a.health, nil))
		tree.AddAPIService(services.NewHTTPServerService(srv, a.cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", a.cfg.Server.Addr()).Msg("Operational HTTP server enabled")
	}

	a.tree = tree
	return nil
}

// run serves the supervisor tree until ctx is canceled.
func (a *app) run(ctx context.Context) error {
	errCh := a.tree.ServeBackground(ctx)
	logging.Info().Msg("Supervisor tree started")

	err := <-errCh
	if report, rerr := a.tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// close flushes the bus and releases resources in reverse start order.
func (a *app) close() error {
	var errs []error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if a.blockStore != nil {
		if err := a.blockStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close blocklist store: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close DuckDB: %w", err))
		}
	}
	return errors.Join(errs...)
}
