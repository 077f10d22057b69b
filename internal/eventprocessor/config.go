// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package eventprocessor

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/quality-dot/solar-panel-production-tracking-sub003/internal/config"
)

// PublisherConfig holds NATS connection settings for the publisher.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool
}

// DefaultPublisherConfig returns production defaults for url.
func DefaultPublisherConfig(natsURL string) PublisherConfig {
	return PublisherConfig{
		URL:              natsURL,
		MaxReconnects:    -1, // reconnect forever
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
	ReadyTimeout      time.Duration
}

// DefaultServerConfig returns defaults for an embedded server on localhost.
func DefaultServerConfig(storeDir string) ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          storeDir,
		JetStreamMaxMem:   256 * 1024 * 1024,
		JetStreamMaxStore: 10 * 1024 * 1024 * 1024,
		ReadyTimeout:      30 * time.Second,
	}
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("%w: store dir is required", ErrInvalidConfig)
	}
	// -1 asks the server for a random port.
	if c.Port < -1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	return nil
}

// StreamConfig defines the security event stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the stream for subjects under prefix.
func DefaultStreamConfig(name, prefix string) StreamConfig {
	return StreamConfig{
		Name:            name,
		Subjects:        []string{prefix + ".>"},
		MaxAge:          30 * 24 * time.Hour,
		MaxBytes:        10 * 1024 * 1024 * 1024, // 10GB
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// Validate checks the stream settings.
func (c *StreamConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: stream name is required", ErrInvalidConfig)
	}
	if len(c.Subjects) == 0 {
		return fmt.Errorf("%w: at least one subject is required", ErrInvalidConfig)
	}
	if c.Replicas < 1 {
		return fmt.Errorf("%w: replicas must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // allowed in half-open state
	Interval         time.Duration // reset interval for counts
	Timeout          time.Duration // time to stay open
	FailureThreshold uint32        // consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Settings bundles everything Start needs.
type Settings struct {
	Embedded  bool
	Server    ServerConfig
	Publisher PublisherConfig
	Stream    StreamConfig
	Breaker   CircuitBreakerConfig
}

// SettingsFromConfig derives package settings from the application config.
// With an embedded server, the listen address is taken from cfg.URL.
func SettingsFromConfig(cfg config.NATSConfig) (Settings, error) {
	s := Settings{
		Embedded:  cfg.EmbeddedServer,
		Server:    DefaultServerConfig(cfg.StoreDir),
		Publisher: DefaultPublisherConfig(cfg.URL),
		Stream:    DefaultStreamConfig(cfg.StreamName, cfg.SubjectPrefix),
		Breaker:   DefaultCircuitBreakerConfig("nats-publisher"),
	}
	if cfg.StreamRetentionDays > 0 {
		s.Stream.MaxAge = time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour
	}

	if cfg.EmbeddedServer {
		host, port, err := hostPort(cfg.URL)
		if err != nil {
			return Settings{}, err
		}
		s.Server.Host = host
		s.Server.Port = port
		if err := s.Server.Validate(); err != nil {
			return Settings{}, err
		}
	}
	if err := s.Stream.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func hostPort(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: parse url %q: %v", ErrInvalidConfig, rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := 4222
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("%w: port %q: %v", ErrInvalidConfig, p, err)
		}
	}
	return host, port, nil
}
