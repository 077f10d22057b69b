// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package supervisor runs the pipeline's long-lived goroutines under suture v4.

The tree has three layers so that a crash in one does not restart the others:

	root ("security-events")
	├── storage-layer
	│   ├── event-persister    (events.Bus.RunWithContext)
	│   └── retention-cleanup  (events.Bus.CleanupOldEvents on a ticker)
	├── detection-layer
	│   └── blocklist-sweeper  (threat.Aggregator.RunWithContext)
	└── api-layer
	    └── http-server        (/healthz, /metrics)

Supervisor events are logged through sutureslog, backed by the zerolog slog
adapter from internal/logging.

# Usage

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}
	tree.AddStorageService(services.NewRunnerService("event-persister", bus))
	tree.AddDetectionService(services.NewRunnerService("blocklist-sweeper", agg))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
*/
package supervisor
