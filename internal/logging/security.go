// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SeverityLevel maps a security severity name to the log level used when the
// event is echoed to the application log.
func SeverityLevel(severity string) zerolog.Level {
	switch strings.ToLower(severity) {
	case "critical":
		return zerolog.ErrorLevel
	case "high":
		return zerolog.WarnLevel
	case "medium":
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// SanitizeSessionID masks a session ID, keeping the first and last 4 characters.
// Example: "abc123def456xyz0" -> "abc1...xyz0"
func SanitizeSessionID(sessionID string) string {
	return maskMiddle(sessionID, 12)
}

// SanitizeUserID masks a user ID.
// Example: "operator-12345678" -> "oper...5678"
func SanitizeUserID(userID string) string {
	return maskMiddle(userID, 8)
}

// SanitizeToken masks a bearer token or API key.
func SanitizeToken(token string) string {
	return maskMiddle(token, 12)
}

// SanitizeValue masks value when key names a credential.
func SanitizeValue(key, value string) string {
	switch strings.ToLower(key) {
	case "token", "access_token", "refresh_token", "password", "secret",
		"api_key", "apikey", "authorization", "cookie", "session_id":
		return SanitizeToken(value)
	}
	return value
}

func maskMiddle(s string, minLen int) string {
	if s == "" {
		return ""
	}
	if len(s) <= minLen {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
