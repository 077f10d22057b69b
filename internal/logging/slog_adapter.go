// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler is an slog.Handler writing through zerolog, for libraries that
// only log via *slog.Logger (sutureslog). Groups become dotted key prefixes;
// WithAttrs fields are baked into the child zerolog logger.
type SlogHandler struct {
	zl     zerolog.Logger
	prefix string
}

// NewSlogLogger is an *slog.Logger on the process logger.
//
//	tree := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandlerWithLogger(Logger()))
}

// NewSlogHandlerWithLogger wraps zl.
//
//nolint:gocritic // zerolog.Logger is passed by value throughout zerolog
func NewSlogHandlerWithLogger(zl zerolog.Logger) *SlogHandler {
	return &SlogHandler{zl: zl}
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return zerologLevel(level) >= h.zl.GetLevel()
}

//nolint:gocritic // slog.Handler passes Record by value
func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		flatten(fields, h.prefix, a)
		return true
	})
	h.zl.WithLevel(zerologLevel(r.Level)).Fields(fields).Msg(r.Message)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]interface{}, len(attrs))
	flatten(fields, h.prefix, attrs...)
	return &SlogHandler{zl: h.zl.With().Fields(fields).Logger(), prefix: h.prefix}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{zl: h.zl, prefix: h.prefix + name + "."}
}

// flatten writes attrs into dst under prefix, expanding groups.
func flatten(dst map[string]interface{}, prefix string, attrs ...slog.Attr) {
	for _, a := range attrs {
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			p := prefix
			if a.Key != "" {
				p += a.Key + "."
			}
			flatten(dst, p, v.Group()...)
			continue
		}
		if a.Key == "" {
			continue
		}
		dst[prefix+a.Key] = v.Any()
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	case l >= slog.LevelDebug:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}
