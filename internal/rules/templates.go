// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package rules

import (
	"fmt"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/events"
)

// Rule IDs of the built-in templates.
const (
	RuleFailedLoginBurst        = "failed_login_burst"
	RuleEquipmentErrorRate      = "equipment_error_rate"
	RuleDataExfiltrationBurst   = "data_exfiltration_burst"
	RuleStationAccessAfterHours = "station_access_after_hours"
)

// afterHoursLookback is how far back StationAccessAfterHours looks.
const afterHoursLookback = time.Hour

// inWindow reports whether ts lies in [now-window, now].
func inWindow(ts, now time.Time, window time.Duration) bool {
	return !ts.Before(now.Add(-window)) && !ts.After(now)
}

func countInWindow(evts []events.Event, now time.Time, window time.Duration, types ...events.EventType) int {
	n := 0
	for i := range evts {
		if !inWindow(evts[i].Timestamp, now, window) {
			continue
		}
		for _, t := range types {
			if evts[i].Type == t {
				n++
				break
			}
		}
	}
	return n
}

// FailedLoginBurst fires with severity high when at least threshold
// user.login.failed events fall within window of Now.
func FailedLoginBurst(threshold int, window time.Duration) Rule {
	return RuleFunc{
		RuleID: RuleFailedLoginBurst,
		Desc:   fmt.Sprintf("%d or more failed logins within %s", threshold, window),
		Evaluator: func(c *Context) (*Hit, error) {
			n := countInWindow(c.Events, c.now(), window, events.TypeAuthFailure)
			if n < threshold {
				return nil, nil
			}
			return &Hit{
				RuleID:   RuleFailedLoginBurst,
				Severity: events.SeverityHigh,
				Details: map[string]interface{}{
					"count":          n,
					"threshold":      threshold,
					"window_seconds": window.Seconds(),
				},
			}, nil
		},
	}
}

// EquipmentErrorRate fires with severity critical when at least threshold
// equipment.status.error events fall within window of Now.
func EquipmentErrorRate(threshold int, window time.Duration) Rule {
	return RuleFunc{
		RuleID: RuleEquipmentErrorRate,
		Desc:   fmt.Sprintf("%d or more equipment errors within %s", threshold, window),
		Evaluator: func(c *Context) (*Hit, error) {
			n := countInWindow(c.Events, c.now(), window, events.TypeEquipmentError)
			if n < threshold {
				return nil, nil
			}
			return &Hit{
				RuleID:   RuleEquipmentErrorRate,
				Severity: events.SeverityCritical,
				Details: map[string]interface{}{
					"count":          n,
					"threshold":      threshold,
					"window_seconds": window.Seconds(),
				},
			}, nil
		},
	}
}

// DataExfiltrationBurst fires with severity high when a single user reads
// or exports at least threshold times within window. When the context names
// a user only that user is considered.
func DataExfiltrationBurst(threshold int, window time.Duration) Rule {
	return RuleFunc{
		RuleID: RuleDataExfiltrationBurst,
		Desc:   fmt.Sprintf("%d or more reads/exports by one user within %s", threshold, window),
		Evaluator: func(c *Context) (*Hit, error) {
			now := c.now()
			perUser := make(map[string]int)
			for i := range c.Events {
				e := &c.Events[i]
				if e.Type != events.TypeDataRead && e.Type != events.TypeDataExport {
					continue
				}
				if e.UserID == "" || !inWindow(e.Timestamp, now, window) {
					continue
				}
				if c.UserID != "" && e.UserID != c.UserID {
					continue
				}
				perUser[e.UserID]++
			}

			var worstUser string
			worst := 0
			for user, n := range perUser {
				if n > worst || (n == worst && user < worstUser) {
					worstUser, worst = user, n
				}
			}
			if worst < threshold {
				return nil, nil
			}
			return &Hit{
				RuleID:   RuleDataExfiltrationBurst,
				Severity: events.SeverityHigh,
				Details: map[string]interface{}{
					"user_id":        worstUser,
					"count":          worst,
					"threshold":      threshold,
					"window_seconds": window.Seconds(),
				},
			}, nil
		},
	}
}

// StationAccessAfterHours fires with severity medium when a station access
// in the last hour happened outside the shift [startHour, endHour). Hours
// are wall-clock hours in loc; nil means UTC. A shift may wrap midnight
// (startHour > endHour).
func StationAccessAfterHours(startHour, endHour int, loc *time.Location) Rule {
	if loc == nil {
		loc = time.UTC
	}
	return RuleFunc{
		RuleID: RuleStationAccessAfterHours,
		Desc:   fmt.Sprintf("station access outside %02d:00-%02d:00 %s", startHour, endHour, loc),
		Evaluator: func(c *Context) (*Hit, error) {
			if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 24 {
				return nil, fmt.Errorf("invalid shift %d-%d", startHour, endHour)
			}
			now := c.now()
			var offending []string
			for i := range c.Events {
				e := &c.Events[i]
				if e.Type != events.TypeStationAccess || !inWindow(e.Timestamp, now, afterHoursLookback) {
					continue
				}
				if !inShift(e.Timestamp.In(loc).Hour(), startHour, endHour) {
					offending = append(offending, e.ID)
				}
			}
			if len(offending) == 0 {
				return nil, nil
			}
			return &Hit{
				RuleID:   RuleStationAccessAfterHours,
				Severity: events.SeverityMedium,
				Details: map[string]interface{}{
					"event_ids":  offending,
					"shift_from": startHour,
					"shift_to":   endHour,
					"timezone":   loc.String(),
				},
			}, nil
		},
	}
}

func inShift(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
