// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of the process logger.
type Config struct {
	Level     string    // trace|debug|info|warn|error|fatal|panic|disabled; default info
	Format    string    // json|console; default json
	Caller    bool      // add file:line
	Timestamp bool      // add the "time" field
	Output    io.Writer // default os.Stderr
}

// DefaultConfig is JSON at info level with timestamps, written to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

// global is swapped whole by Init, so readers never lock.
var global atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // package-level log calls must work before main runs Init
func init() {
	Init(DefaultConfig())
}

// Init replaces the process logger. Later calls win.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	l := cfg.build()
	global.Store(&l)
}

func (cfg Config) build() zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	c := zerolog.New(out).With()
	if cfg.Timestamp {
		c = c.Timestamp()
	}
	if cfg.Caller {
		c = c.Caller()
	}
	return c.Logger()
}

// parseLevel accepts zerolog level names plus "warning". Anything else,
// including "", is info.
func parseLevel(level string) zerolog.Level {
	if l, ok := lookupLevel(level); ok {
		return l
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether level is a name parseLevel understands.
func ValidLevel(level string) bool {
	_, ok := lookupLevel(level)
	return ok
}

func lookupLevel(level string) (zerolog.Level, bool) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return zerolog.NoLevel, false
	case "warning":
		return zerolog.WarnLevel, true
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.NoLevel, false
	}
	return l, true
}

// Logger returns a copy of the process logger.
func Logger() zerolog.Logger {
	return *global.Load()
}

// With starts a child logger of the process logger.
func With() zerolog.Context {
	return global.Load().With()
}

func Debug() *zerolog.Event { return global.Load().Debug() }

// Info starts an info message.
//
//	logging.Info().Str("path", cfg.Database.Path).Msg("DuckDB event store ready")
func Info() *zerolog.Event { return global.Load().Info() }

func Warn() *zerolog.Event { return global.Load().Warn() }
func Error() *zerolog.Event { return global.Load().Error() }

// Fatal exits the process with status 1 once the message is written.
func Fatal() *zerolog.Event { return global.Load().Fatal() }

// NewTestLogger is a timestamped JSON logger writing to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
