// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import "errors"

var (
	// ErrInvalidIP is returned for an address that does not parse.
	ErrInvalidIP = errors.New("invalid IP address")

	// ErrReputationUnavailable is returned when the reputation service
	// cannot be consulted (breaker open, rate limited, transport failure).
	ErrReputationUnavailable = errors.New("reputation service unavailable")
)

var (
	// ErrCircuitOpen is returned while the reputation breaker rejects calls.
	ErrCircuitOpen = errors.New("reputation circuit breaker open")

	// ErrRateLimited is returned when a lookup could not obtain a rate token
	// before its deadline.
	ErrRateLimited = errors.New("reputation lookup rate limited")
)
