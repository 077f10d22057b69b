// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package validation

import (
	"errors"
	"strings"
	"testing"
)

type stationAccess struct {
	StationID string  `validate:"required,station_id"`
	IPAddress string  `validate:"omitempty,ip"`
	Score     float64 `validate:"gte=0,lte=1"`
	Operation string  `validate:"oneof=read write"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     stationAccess
		wantField string
		wantMsg   string
	}{
		{
			name:  "valid",
			input: stationAccess{StationID: "LAM-3", IPAddress: "10.0.0.1", Score: 0.5, Operation: "read"},
		},
		{
			name:      "missing station",
			input:     stationAccess{Operation: "read"},
			wantField: "stationAccess.StationID",
			wantMsg:   "is required",
		},
		{
			name:      "bad station id",
			input:     stationAccess{StationID: "bad station!", Operation: "read"},
			wantField: "stationAccess.StationID",
			wantMsg:   "valid station identifier",
		},
		{
			name:      "bad ip",
			input:     stationAccess{StationID: "S1", IPAddress: "999.1.1.1", Operation: "write"},
			wantField: "stationAccess.IPAddress",
			wantMsg:   "valid IP address",
		},
		{
			name:      "score out of range",
			input:     stationAccess{StationID: "S1", Score: 1.5, Operation: "write"},
			wantField: "stationAccess.Score",
			wantMsg:   "less than or equal to 1",
		},
		{
			name:      "bad operation",
			input:     stationAccess{StationID: "S1", Operation: "delete"},
			wantField: "stationAccess.Operation",
			wantMsg:   "must be one of: read write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if !verr.HasField(tt.wantField) {
				t.Errorf("expected failure on %s, got %v", tt.wantField, verr.Fields)
			}
			if !strings.Contains(verr.Error(), tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, verr.Error())
			}
		})
	}
}
