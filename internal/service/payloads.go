// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package service

import "time"

// AuthAttempt is the payload of login success and failure events.
type AuthAttempt struct {
	UserID    string `json:"user_id,omitempty" validate:"required_without=Username,max=128"`
	Username  string `json:"username,omitempty" validate:"max=128"`
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	Method    string `json:"method,omitempty" validate:"omitempty,oneof=password badge sso api_key"`
	Reason    string `json:"reason,omitempty" validate:"max=256"`
}

// ThreatReport is the payload of threat.detected.
type ThreatReport struct {
	ThreatType  string   `json:"threat_type" validate:"required,max=64"`
	IPAddress   string   `json:"ip_address,omitempty" validate:"omitempty,ip"`
	Description string   `json:"description,omitempty" validate:"max=1024"`
	Score       float64  `json:"score" validate:"gte=0,lte=1"`
	Indicators  []string `json:"indicators,omitempty" validate:"max=32,dive,max=256"`
}

// ManufacturingActivity is the payload of station access events.
type ManufacturingActivity struct {
	StationID  string            `json:"station_id" validate:"required,station_id"`
	Action     string            `json:"action" validate:"required,max=64"`
	OperatorID string            `json:"operator_id,omitempty" validate:"max=128"`
	Details    map[string]string `json:"details,omitempty" validate:"max=32"`
}

// DataOperation is the kind of data access.
type DataOperation string

const (
	DataOperationRead   DataOperation = "read"
	DataOperationWrite  DataOperation = "write"
	DataOperationDelete DataOperation = "delete"
	DataOperationExport DataOperation = "export"
)

// DataAccess is the payload of data.* events.
type DataAccess struct {
	Resource    string        `json:"resource" validate:"required,max=128"`
	ResourceID  string        `json:"resource_id,omitempty" validate:"max=128"`
	Operation   DataOperation `json:"operation" validate:"required,oneof=read write delete export"`
	RecordCount int           `json:"record_count,omitempty" validate:"gte=0"`
}

// ComplianceViolation is the payload of compliance.violation.
type ComplianceViolation struct {
	Regulation  string `json:"regulation" validate:"required,max=64"`
	Requirement string `json:"requirement" validate:"required,max=256"`
	Description string `json:"description,omitempty" validate:"max=1024"`
	StationID   string `json:"station_id,omitempty" validate:"omitempty,station_id"`
}

// EquipmentFault is the payload of equipment.status.error.
type EquipmentFault struct {
	StationID string `json:"station_id" validate:"required,station_id"`
	Code      string `json:"code" validate:"required,max=32"`
	Message   string `json:"message,omitempty" validate:"max=512"`
}

// UnlockRequest is the payload of auth.unlock. At least one of UserID and
// IPAddress must be set.
type UnlockRequest struct {
	UserID    string `json:"user_id,omitempty" validate:"required_without=IPAddress,max=128"`
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	By        string `json:"by" validate:"required,max=128"`
}

// lockoutDetails is the payload of derived auth_lockout events.
type lockoutDetails struct {
	Reason         string    `json:"reason"`
	Keys           []string  `json:"keys"`
	UserID         string    `json:"user_id,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
	TriggerEventID string    `json:"trigger_event_id"`
}

// blockDetails is the payload of derived threat_blocked events.
type blockDetails struct {
	IPAddress      string     `json:"ip_address"`
	Reason         string     `json:"reason"`
	ThreatType     string     `json:"threat_type,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TriggerEventID string     `json:"trigger_event_id"`
}

// anomalyDetails is the payload of derived security.anomaly events.
type anomalyDetails struct {
	TriggerEventID   string   `json:"trigger_event_id"`
	TriggerEventType string   `json:"trigger_event_type"`
	Key              string   `json:"key"`
	Score            float64  `json:"score"`
	Level            string   `json:"level"`
	RuleIDs          []string `json:"rule_ids,omitempty"`
	Statistical      float64  `json:"statistical"`
	Rule             float64  `json:"rule"`
	Reputation       float64  `json:"reputation"`
}

// complianceReport is the payload of derived compliance_report events.
type complianceReport struct {
	ViolationEventID string    `json:"violation_event_id"`
	Regulation       string    `json:"regulation"`
	Requirement      string    `json:"requirement"`
	StationID        string    `json:"station_id,omitempty"`
	ReportedAt       time.Time `json:"reported_at"`
}
