// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// EventType identifies a kind of security event.
type EventType string

const (
	// Authentication events
	TypeAuthSuccess    EventType = "auth.login.success"
	TypeAuthFailure    EventType = "user.login.failed"
	TypeAuthLogout     EventType = "auth.logout"
	TypeAuthLockout    EventType = "auth_lockout"
	TypeAuthUnlock     EventType = "auth.unlock"
	TypeSessionExpired EventType = "auth.session.expired"

	// Threat events
	TypeThreatDetected  EventType = "threat.detected"
	TypeThreatBlocked   EventType = "threat_blocked"
	TypeThreatUnblocked EventType = "threat.unblocked"
	TypeAnomaly         EventType = "security.anomaly"

	// Manufacturing events
	TypeStationAccess   EventType = "manufacturing.station.access"
	TypeEquipmentError  EventType = "equipment.status.error"
	TypeQualityOverride EventType = "manufacturing.quality.override"

	// Data access events
	TypeDataRead   EventType = "data.read"
	TypeDataWrite  EventType = "data.write"
	TypeDataDelete EventType = "data.delete"
	TypeDataExport EventType = "data.export"

	// Compliance events
	TypeComplianceViolation EventType = "compliance.violation"
	TypeComplianceReport    EventType = "compliance_report"

	// System events
	TypeConfigChanged    EventType = "system.config.changed"
	TypeRetentionCleanup EventType = "system.retention.cleanup"
)

// Category groups event types for statistics and log fields.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryThreat         Category = "threat"
	CategoryManufacturing  Category = "manufacturing"
	CategoryDataAccess     Category = "data_access"
	CategoryCompliance     Category = "compliance"
	CategorySystem         Category = "system"
)

var registry = map[EventType]Category{
	TypeAuthSuccess:    CategoryAuthentication,
	TypeAuthFailure:    CategoryAuthentication,
	TypeAuthLogout:     CategoryAuthentication,
	TypeAuthLockout:    CategoryAuthentication,
	TypeAuthUnlock:     CategoryAuthentication,
	TypeSessionExpired: CategoryAuthentication,

	TypeThreatDetected:  CategoryThreat,
	TypeThreatBlocked:   CategoryThreat,
	TypeThreatUnblocked: CategoryThreat,
	TypeAnomaly:         CategoryThreat,

	TypeStationAccess:   CategoryManufacturing,
	TypeEquipmentError:  CategoryManufacturing,
	TypeQualityOverride: CategoryManufacturing,

	TypeDataRead:   CategoryDataAccess,
	TypeDataWrite:  CategoryDataAccess,
	TypeDataDelete: CategoryDataAccess,
	TypeDataExport: CategoryDataAccess,

	TypeComplianceViolation: CategoryCompliance,
	TypeComplianceReport:    CategoryCompliance,

	TypeConfigChanged:    CategorySystem,
	TypeRetentionCleanup: CategorySystem,
}

// Valid reports whether t is a registered event type.
func (t EventType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Category returns t's category, or "" for unregistered types.
func (t EventType) Category() Category {
	return registry[t]
}

// EventTypes returns every registered event type in sorted order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseEventType validates s against the registry.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", &ValidationError{Field: "event_type", Value: s, Err: ErrUnknownEventType}
	}
	return t, nil
}

// Severity is the seriousness of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities from 1 (low) to 4 (critical); unknown is 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity validates s.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", &ValidationError{Field: "severity", Value: s, Err: ErrInvalidSeverity}
	}
	return sev, nil
}

// Source identifies who originated an event.
type Source string

const (
	SourceSystem   Source = "system"
	SourceUser     Source = "user"
	SourceExternal Source = "external"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceSystem, SourceUser, SourceExternal:
		return true
	}
	return false
}

// Event is an immutable security event.
type Event struct {
	// ID is a UUIDv4 assigned by the bus.
	ID string `json:"id"`

	// Type is a registered event type.
	Type EventType `json:"event_type"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Source that originated the event.
	Source Source `json:"source"`

	// CorrelationID links events that belong to the same request or incident.
	CorrelationID string `json:"correlation_id"`

	// SessionID of the originating session, if any.
	SessionID string `json:"session_id,omitempty"`

	// UserID of the acting user, if any.
	UserID string `json:"user_id,omitempty"`

	// IPAddress of the originating client, if known.
	IPAddress string `json:"ip_address,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"event_data,omitempty"`

	// Metadata carries producer-supplied context that is not part of the payload.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// Timestamp is when the bus accepted the event, in UTC.
	Timestamp time.Time `json:"timestamp"`
}

// DecodeData unmarshals the payload into v.
func (e *Event) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// DecodeMetadata unmarshals the metadata into v.
func (e *Event) DecodeMetadata(v interface{}) error {
	if len(e.Metadata) == 0 {
		return nil
	}
	return json.Unmarshal(e.Metadata, v)
}
