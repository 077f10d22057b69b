// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
)

// DuckDBStore implements Store and StatsStore on a DuckDB security_events table.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed store.
// Call CreateTable before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the security_events table and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			session_id TEXT,
			user_id TEXT,
			ip_address TEXT,
			event_data JSON,
			metadata JSON,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type);
		CREATE INDEX IF NOT EXISTS idx_security_events_severity ON security_events(severity);
		CREATE INDEX IF NOT EXISTS idx_security_events_user_id ON security_events(user_id);
		CREATE INDEX IF NOT EXISTS idx_security_events_correlation_id ON security_events(correlation_id);
		CREATE INDEX IF NOT EXISTS idx_security_events_ip_address ON security_events(ip_address)
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Security events table created/verified")
	return nil
}

// Ping checks the database connection.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts an event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (
			id, timestamp, event_type, category, severity, source,
			correlation_id, session_id, user_id, ip_address,
			event_data, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Type.Category()),
		string(event.Severity),
		string(event.Source),
		event.CorrelationID,
		nullString(event.SessionID),
		nullString(event.UserID),
		nullString(event.IPAddress),
		rawJSON(event.Data),
		rawJSON(event.Metadata),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save security event: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// Query returns matching events newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conditions, args := buildFilterConditions(filter)

	// JSON columns are cast to VARCHAR for scanning.
	query := `
		SELECT
			id, timestamp, event_type, severity, source, correlation_id,
			session_id, user_id, ip_address,
			CAST(event_data AS VARCHAR) AS event_data,
			CAST(metadata AS VARCHAR) AS metadata
		FROM security_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                            Event
			eventType, severity, source  string
			sessionID, userID, ipAddress sql.NullString
			data, metadata               sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &severity, &source, &e.CorrelationID,
			&sessionID, &userID, &ipAddress, &data, &metadata); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan security event row")
			continue
		}
		e.Type = EventType(eventType)
		e.Severity = Severity(severity)
		e.Source = Source(source)
		e.SessionID = sessionID.String
		e.UserID = userID.String
		e.IPAddress = ipAddress.String
		e.Timestamp = e.Timestamp.UTC()
		if data.Valid && data.String != "" {
			e.Data = json.RawMessage(data.String)
		}
		if metadata.Valid && metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security events: %w", err)
	}
	return out, nil
}

// buildFilterConditions builds WHERE clause conditions from a Filter.
func buildFilterConditions(filter Filter) ([]string, []interface{}) {
	var args []interface{}
	var conditions []string

	if cond := buildSliceCondition("event_type", filter.Types, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("severity", filter.Severities, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("source", filter.Sources, &args); cond != "" {
		conditions = append(conditions, cond)
	}

	for _, c := range []struct{ column, value string }{
		{"user_id", filter.UserID},
		{"correlation_id", filter.CorrelationID},
		{"session_id", filter.SessionID},
		{"ip_address", filter.IPAddress},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}
	return conditions, args
}

// buildSliceCondition creates a SQL IN condition for a slice of string values.
func buildSliceCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// Delete removes events older than olderThan.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM security_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old security events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// Stats aggregates events at or after since with GROUP BY queries.
func (s *DuckDBStore) Stats(ctx context.Context, since time.Time) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newStatistics(since)
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM security_events WHERE timestamp >= ?", since).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	var err error
	if stats.ByType, err = s.countByColumn(ctx, "event_type", since); err != nil {
		return nil, err
	}
	if stats.BySeverity, err = s.countByColumn(ctx, "severity", since); err != nil {
		return nil, err
	}
	if stats.BySource, err = s.countByColumn(ctx, "source", since); err != nil {
		return nil, err
	}
	return stats, nil
}

// countByColumn executes a GROUP BY query and returns counts per value.
func (s *DuckDBStore) countByColumn(ctx context.Context, column string, since time.Time) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM security_events WHERE timestamp >= ? GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			result[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}
