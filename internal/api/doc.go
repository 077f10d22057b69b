// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package api exposes the operational HTTP surface of the pipeline.

Routes:

	GET /healthz        readiness: runs every registered check, 503 if a required one fails
	GET /healthz/live   liveness: 200 while the process is serving
	GET /metrics        Prometheus exposition

There is no event ingestion or query API here; producers call the service
package in-process.
*/
package api
