// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

// Package services adapts pipeline components to suture.Service.
//
// Each wrapper turns a component's own lifecycle into Serve(ctx) error and
// implements fmt.Stringer so suture can name it in log output.
package services
