// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
)

// Sink receives every successfully persisted event.
type Sink interface {
	Forward(ctx context.Context, event *Event) error
	Name() string
}

// Message metadata keys set by WatermillSink.
const (
	MetadataEventType     = "event_type"
	MetadataSeverity      = "severity"
	MetadataCorrelationID = "correlation_id"
)

// WatermillSink publishes events as JSON messages on "<prefix>.<event type>".
type WatermillSink struct {
	publisher   message.Publisher
	topicPrefix string
}

// NewWatermillSink creates a sink publishing through publisher.
func NewWatermillSink(publisher message.Publisher, topicPrefix string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topicPrefix: topicPrefix}
}

// Name implements Sink.
func (s *WatermillSink) Name() string {
	return "watermill"
}

// Topic returns the topic an event of type t is published on.
func (s *WatermillSink) Topic(t EventType) string {
	if s.topicPrefix == "" {
		return string(t)
	}
	return s.topicPrefix + "." + string(t)
}

// Forward implements Sink. The event ID doubles as the message UUID so
// JetStream deduplicates redeliveries.
func (s *WatermillSink) Forward(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventType, string(event.Type))
	msg.Metadata.Set(MetadataSeverity, string(event.Severity))
	msg.Metadata.Set(MetadataCorrelationID, event.CorrelationID)

	if err := s.publisher.Publish(s.Topic(event.Type), msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
