// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/logging"
	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/metrics"
)

// DefaultRetentionDays is the seven year horizon used when CleanupOldEvents
// is called without one.
const DefaultRetentionDays = 2555

// Config holds Bus settings.
type Config struct {
	// PersistBufferSize is the capacity of the persistence queue.
	PersistBufferSize int
	// PersistTimeout bounds one store write.
	PersistTimeout time.Duration
	// ListenerTimeout is the deadline on each listener's context.
	ListenerTimeout time.Duration
	// MaxQueryLimit caps Filter.Limit.
	MaxQueryLimit int
	// MemoryStoreSize sizes the fallback MemoryStore when no store is given.
	MemoryStoreSize int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		PersistBufferSize: 1000,
		PersistTimeout:    5 * time.Second,
		ListenerTimeout:   5 * time.Second,
		MaxQueryLimit:     MaxQueryLimit,
		MemoryStoreSize:   100000,
	}
}

// Listener is called synchronously for each event it subscribed to.
// ctx carries the emitter's values, a deadline, and the derivation depth;
// pass it to Emit when emitting a derived event.
type Listener func(ctx context.Context, event Event) error

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithSinks adds forwarding sinks that receive persisted events.
func WithSinks(sinks ...Sink) Option {
	return func(b *Bus) { b.sinks = append(b.sinks, sinks...) }
}

// WithLogger overrides the component logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// Bus validates, broadcasts and persists security events.
type Bus struct {
	cfg    Config
	store  Store
	sinks  []Sink
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.RWMutex
	generic []Listener
	typed   map[EventType][]Listener

	queue   chan *Event
	pending atomic.Int64
	running atomic.Bool
	closed  atomic.Bool
}

// NewBus creates a Bus. A nil store falls back to a MemoryStore.
// Persistence starts when RunWithContext is running; until then queued
// events are written by Flush or Close.
func NewBus(store Store, cfg Config, opts ...Option) *Bus {
	def := DefaultConfig()
	if cfg.PersistBufferSize <= 0 {
		cfg.PersistBufferSize = def.PersistBufferSize
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.ListenerTimeout <= 0 {
		cfg.ListenerTimeout = def.ListenerTimeout
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = def.MaxQueryLimit
	}
	if cfg.MemoryStoreSize <= 0 {
		cfg.MemoryStoreSize = def.MemoryStoreSize
	}
	if store == nil {
		store = NewMemoryStore(cfg.MemoryStoreSize)
	}

	b := &Bus{
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: logging.WithComponent("bus"),
		typed:  make(map[EventType][]Listener),
		queue:  make(chan *Event, cfg.PersistBufferSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store returns the underlying event store.
func (b *Bus) Store() Store {
	return b.store
}

// Subscribe registers a listener for one event type.
func (b *Bus) Subscribe(t EventType, l Listener) error {
	if !t.Valid() {
		return &ValidationError{Field: "event_type", Value: string(t), Err: ErrUnknownEventType}
	}
	b.mu.Lock()
	b.typed[t] = append(b.typed[t], l)
	b.mu.Unlock()
	return nil
}

// SubscribeAll registers a listener for every event.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	b.generic = append(b.generic, l)
	b.mu.Unlock()
}

// Emit validates and records a security event, notifies listeners and
// queues it for persistence. data and metadata may be nil, a
// json.RawMessage, or any JSON-encodable value.
//
// Only validation failures, ErrDerivationTooDeep and ErrBusClosed are
// returned. Listener and persistence failures are logged and counted.
func (b *Bus) Emit(ctx context.Context, t EventType, sev Severity, data, metadata interface{}) (*Event, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	event, err := b.build(ctx, t, sev, data, metadata)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.RecordEventRejected(ve.Field)
		}
		b.logger.Warn().Err(err).Str("event_type", string(t)).Msg("Rejected security event")
		return nil, err
	}

	depth := derivationDepth(ctx)
	if depth >= MaxDerivationDepth {
		metrics.RecordEventRejected("derivation_depth")
		b.logger.Error().
			Str("event_type", string(t)).
			Str("correlation_id", event.CorrelationID).
			Int("depth", depth).
			Msg("Dropping derived event: listener chain too deep")
		return nil, fmt.Errorf("%w: %s at depth %d", ErrDerivationTooDeep, t, depth)
	}

	metrics.RecordEventEmitted(string(event.Type), string(event.Severity))
	b.logger.WithLevel(logging.SeverityLevel(string(event.Severity))).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("category", string(event.Type.Category())).
		Str("severity", string(event.Severity)).
		Str("correlation_id", event.CorrelationID).
		Str("user_id", logging.SanitizeUserID(event.UserID)).
		Msg("Security event")

	b.enqueue(event)

	lctx := logging.ContextWithCorrelationID(withDerivationDepth(ctx, depth+1), event.CorrelationID)
	b.dispatch(lctx, event)

	return event, nil
}

func (b *Bus) build(ctx context.Context, t EventType, sev Severity, data, metadata interface{}) (*Event, error) {
	if !t.Valid() {
		return nil, &ValidationError{Field: "event_type", Value: string(t), Err: ErrUnknownEventType}
	}
	if !sev.Valid() {
		return nil, &ValidationError{Field: "severity", Value: string(sev), Err: ErrInvalidSeverity}
	}

	ec, _ := EmitContextFrom(ctx)
	if ec.Source == "" {
		ec.Source = SourceSystem
	}
	if !ec.Source.Valid() {
		return nil, &ValidationError{Field: "source", Value: string(ec.Source), Err: ErrInvalidSource}
	}

	dataJSON, err := encodePayload(data)
	if err != nil {
		return nil, &ValidationError{Field: "event_data", Value: fmt.Sprintf("%T", data), Err: err}
	}
	metaJSON, err := encodePayload(metadata)
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Value: fmt.Sprintf("%T", metadata), Err: err}
	}

	correlationID := ec.CorrelationID
	if correlationID == "" {
		correlationID = logging.CorrelationIDFromContext(ctx)
	}
	if correlationID == "" {
		correlationID = logging.GenerateCorrelationID()
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          t,
		Severity:      sev,
		Source:        ec.Source,
		CorrelationID: correlationID,
		SessionID:     ec.SessionID,
		UserID:        ec.UserID,
		IPAddress:     ec.IPAddress,
		Data:          dataJSON,
		Metadata:      metaJSON,
		Timestamp:     b.now().UTC(),
	}, nil
}

func encodePayload(v interface{}) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
		}
		return append(json.RawMessage(nil), p...), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// dispatch runs generic listeners, then type listeners, on a snapshot of
// the listener table so listeners may subscribe or emit re-entrantly.
func (b *Bus) dispatch(ctx context.Context, event *Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.generic)+len(b.typed[event.Type]))
	listeners = append(listeners, b.generic...)
	listeners = append(listeners, b.typed[event.Type]...)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.invoke(ctx, l, event)
	}
}

func (b *Bus) invoke(ctx context.Context, l Listener, event *Event) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ListenerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordListenerError(string(event.Type))
			b.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Msg("Security event listener panicked")
		}
	}()

	if err := l(ctx, *event); err != nil {
		metrics.RecordListenerError(string(event.Type))
		b.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Security event listener failed")
	}
}

func (b *Bus) enqueue(event *Event) {
	b.pending.Add(1)
	select {
	case b.queue <- event:
		metrics.UpdatePersistQueueDepth(len(b.queue))
	default:
		b.pending.Add(-1)
		metrics.RecordPersistDropped()
		b.logger.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Persistence queue full, dropping event")
	}
}

// RunWithContext writes queued events until ctx is canceled, then drains
// what is left. It is run as a supervised service.
func (b *Bus) RunWithContext(ctx context.Context) error {
	b.running.Store(true)
	defer b.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return ctx.Err()
		case event := <-b.queue:
			b.persist(event)
		}
	}
}

// drain writes every queued event without blocking for new ones.
func (b *Bus) drain() {
	for {
		select {
		case event := <-b.queue:
			b.persist(event)
		default:
			return
		}
	}
}

func (b *Bus) persist(event *Event) {
	defer b.pending.Add(-1)
	metrics.UpdatePersistQueueDepth(len(b.queue))

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PersistTimeout)
	defer cancel()

	start := time.Now()
	err := b.store.Save(ctx, event)
	metrics.RecordPersist(time.Since(start), err)
	if err != nil {
		b.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Failed to persist security event")
		return
	}

	for _, sink := range b.sinks {
		ferr := sink.Forward(ctx, event)
		metrics.RecordForward(ferr)
		if ferr != nil {
			b.logger.Warn().Err(ferr).
				Str("sink", sink.Name()).
				Str("event_id", event.ID).
				Msg("Failed to forward security event")
		}
	}
}

// Pending returns the number of events accepted but not yet written.
func (b *Bus) Pending() int {
	return int(b.pending.Load())
}

// Flush blocks until every queued event has been written or ctx is done.
// Without a running writer the queue is drained on the caller's goroutine.
func (b *Bus) Flush(ctx context.Context) error {
	if !b.running.Load() {
		b.drain()
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !b.running.Load() {
				b.drain()
			}
		}
	}
	return nil
}

// Close rejects further emits and writes what is still queued.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*b.cfg.PersistTimeout)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		return fmt.Errorf("flush on close: %w", err)
	}
	return nil
}

// GetEvents returns events matching filter, newest first. The limit
// defaults to 100 and is capped at the configured maximum.
func (b *Bus) GetEvents(ctx context.Context, filter Filter) ([]Event, error) {
	events, err := b.store.Query(ctx, filter.normalize(b.cfg.MaxQueryLimit))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// GetEventStatistics counts events inside the window.
func (b *Bus) GetEventStatistics(ctx context.Context, window Window) (*Statistics, error) {
	d := window.Duration()
	if d == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}
	since := b.now().UTC().Add(-d)

	var (
		stats *Statistics
		err   error
	)
	if ss, ok := b.store.(StatsStore); ok {
		stats, err = ss.Stats(ctx, since)
	} else {
		stats, err = b.statsFromQuery(ctx, since)
	}
	if err != nil {
		return nil, fmt.Errorf("event statistics: %w", err)
	}
	stats.Window = window
	return stats, nil
}

// statsFromQuery pages through Query for stores without StatsStore.
func (b *Bus) statsFromQuery(ctx context.Context, since time.Time) (*Statistics, error) {
	stats := newStatistics(since)
	filter := Filter{StartTime: &since, Limit: b.cfg.MaxQueryLimit}
	for {
		page, err := b.store.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		for i := range page {
			stats.add(&page[i])
		}
		if len(page) < filter.Limit {
			return stats, nil
		}
		filter.Offset += len(page)
	}
}

// CleanupOldEvents deletes events older than retentionDays and returns the
// count. A non-positive retentionDays uses DefaultRetentionDays. A
// system.retention.cleanup event is emitted when anything was deleted.
func (b *Bus) CleanupOldEvents(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := b.now().UTC().AddDate(0, 0, -retentionDays)

	deleted, err := b.store.Delete(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup events older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.RecordRetentionCleanup(deleted)

	if deleted > 0 {
		b.logger.Info().Int64("deleted", deleted).Time("older_than", cutoff).Msg("Deleted old security events")
		payload := map[string]interface{}{
			"deleted":        deleted,
			"retention_days": retentionDays,
			"cutoff":         cutoff,
		}
		if _, err := b.Emit(WithEmitContext(ctx, EmitContext{Source: SourceSystem}),
			TypeRetentionCleanup, SeverityLow, payload, nil); err != nil && !errors.Is(err, ErrBusClosed) {
			b.logger.Warn().Err(err).Msg("Failed to emit retention cleanup event")
		}
	}
	return deleted, nil
}
