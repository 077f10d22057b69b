// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import (
	"context"
	"fmt"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/threat"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/validation"
)

// criticalThreatScore is the report score at which threat.detected is
// emitted as critical instead of high.
const criticalThreatScore = 0.85

// attributed fills the user, IP and source of the emit context in ctx from
// the payload where the caller has not set them.
func attributed(ctx context.Context, source events.Source, userID, ip string) context.Context {
	ec, _ := events.EmitContextFrom(ctx)
	if ec.UserID == "" {
		ec.UserID = userID
	}
	if ec.IPAddress == "" && ip != "" {
		if canonical, err := threat.NormalizeIP(ip); err == nil {
			ip = canonical
		}
		ec.IPAddress = ip
	}
	if ec.Source == "" {
		ec.Source = source
	}
	return events.WithEmitContext(ctx, ec)
}

func validatePayload(name string, v interface{}) error {
	if err := validation.ValidateStruct(v); err != nil {
		metrics.RecordEventRejected("event_data")
		return &events.ValidationError{
			Field: "event_data",
			Value: name,
			Err:   fmt.Errorf("%w: %w", events.ErrInvalidPayload, err),
		}
	}
	return nil
}

// EmitAuthSuccess records a successful login (low).
func (s *Service) EmitAuthSuccess(ctx context.Context, a AuthAttempt) (*events.Event, error) {
	if err := validatePayload("auth_attempt", &a); err != nil {
		return nil, err
	}
	ctx = attributed(ctx, events.SourceUser, firstNonEmpty(a.UserID, a.Username), a.IPAddress)
	return s.bus.Emit(ctx, events.TypeAuthSuccess, events.SeverityLow, a, nil)
}

// EmitAuthFailure records a failed login (medium). Failures count toward
// lockout of both the user and the IP.
func (s *Service) EmitAuthFailure(ctx context.Context, a AuthAttempt) (*events.Event, error) {
	if err := validatePayload("auth_attempt", &a); err != nil {
		return nil, err
	}
	ctx = attributed(ctx, events.SourceUser, firstNonEmpty(a.UserID, a.Username), a.IPAddress)
	return s.bus.Emit(ctx, events.TypeAuthFailure, events.SeverityMedium, a, nil)
}

// EmitUnlock clears a lockout (low).
func (s *Service) EmitUnlock(ctx context.Context, r UnlockRequest) (*events.Event, error) {
	if err := validatePayload("unlock_request", &r); err != nil {
		return nil, err
	}
	if r.IPAddress != "" {
		if canonical, err := threat.NormalizeIP(r.IPAddress); err == nil {
			r.IPAddress = canonical
		}
	}
	return s.bus.Emit(ctx, events.TypeAuthUnlock, events.SeverityLow, r, nil)
}

// EmitThreatDetected records a detection: high, or critical when the
// report score is at least 0.85.
func (s *Service) EmitThreatDetected(ctx context.Context, r ThreatReport) (*events.Event, error) {
	if err := validatePayload("threat_report", &r); err != nil {
		return nil, err
	}
	sev := events.SeverityHigh
	if r.Score >= criticalThreatScore {
		sev = events.SeverityCritical
	}
	ctx = attributed(ctx, events.SourceExternal, "", r.IPAddress)
	return s.bus.Emit(ctx, events.TypeThreatDetected, sev, r, nil)
}

// EmitManufacturingEvent records station access (low).
func (s *Service) EmitManufacturingEvent(ctx context.Context, a ManufacturingActivity) (*events.Event, error) {
	if err := validatePayload("manufacturing_activity", &a); err != nil {
		return nil, err
	}
	ctx = attributed(ctx, events.SourceUser, a.OperatorID, "")
	return s.bus.Emit(ctx, events.TypeStationAccess, events.SeverityLow, a, nil)
}

// EmitEquipmentError records an equipment fault (medium).
func (s *Service) EmitEquipmentError(ctx context.Context, f EquipmentFault) (*events.Event, error) {
	if err := validatePayload("equipment_fault", &f); err != nil {
		return nil, err
	}
	return s.bus.Emit(ctx, events.TypeEquipmentError, events.SeverityMedium, f, nil)
}

// EmitDataAccess records a data operation. Reads and writes are low;
// deletes and exports are medium.
func (s *Service) EmitDataAccess(ctx context.Context, a DataAccess) (*events.Event, error) {
	if err := validatePayload("data_access", &a); err != nil {
		return nil, err
	}

	var (
		t   events.EventType
		sev = events.SeverityLow
	)
	switch a.Operation {
	case DataOperationRead:
		t = events.TypeDataRead
	case DataOperationWrite:
		t = events.TypeDataWrite
	case DataOperationDelete:
		t, sev = events.TypeDataDelete, events.SeverityMedium
	case DataOperationExport:
		t, sev = events.TypeDataExport, events.SeverityMedium
	}
	return s.bus.Emit(attributed(ctx, events.SourceUser, "", ""), t, sev, a, nil)
}

// EmitComplianceViolation records a compliance violation (high).
func (s *Service) EmitComplianceViolation(ctx context.Context, v ComplianceViolation) (*events.Event, error) {
	if err := validatePayload("compliance_violation", &v); err != nil {
		return nil, err
	}
	return s.bus.Emit(ctx, events.TypeComplianceViolation, events.SeverityHigh, v, nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
