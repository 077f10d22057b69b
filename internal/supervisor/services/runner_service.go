// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package services

import (
	"context"
	"fmt"
)

// ContextRunner is a component that blocks in RunWithContext until ctx is
// done. events.Bus (persistence writer) and threat.Aggregator (blocklist
// sweeper) both satisfy it.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService supervises a ContextRunner.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. A panic in the runner is returned as an
// error so suture restarts it with backoff instead of crashing the process.
func (s *RunnerService) Serve(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", s.name, r)
		}
	}()
	return s.runner.RunWithContext(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}
