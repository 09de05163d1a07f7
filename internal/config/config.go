// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package config loads and validates Switchboard configuration from layered
// sources (defaults, optional YAML file, environment variables) using Koanf v2.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Switchboard server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Database DatabaseConfig `koanf:"database"`
	VATSIM   VATSIMConfig   `koanf:"vatsim"`
	Presence PresenceConfig `koanf:"presence"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// SecurityConfig holds authentication and HTTP hardening settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies bearer credentials (HS256).
	JWTSecret string `koanf:"jwt_secret"`

	// MinRating is the minimum VATSIM controller rating admitted to the
	// realtime gateway. Rating 2 (S1) and up may connect.
	MinRating int `koanf:"min_rating"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// SocketMessageRate caps inbound websocket messages per second per
	// connection; SocketMessageBurst is the token-bucket burst allowance.
	SocketMessageRate  float64 `koanf:"socket_message_rate"`
	SocketMessageBurst int     `koanf:"socket_message_burst"`
}

// DatabaseConfig holds DuckDB settings for the position configuration store.
type DatabaseConfig struct {
	// Path to the database file, or ":memory:" for an ephemeral store.
	Path string `koanf:"path"`

	// RefreshInterval controls how often the resolver snapshot is reloaded.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// VATSIMConfig holds live-network data feed settings.
type VATSIMConfig struct {
	// DataURL is the VATSIM v3 data feed endpoint.
	DataURL string `koanf:"data_url"`

	PollInterval time.Duration `koanf:"poll_interval"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// ObserverFrequency is the sentinel frequency reported by observer
	// connections; controllers on it are not considered active.
	ObserverFrequency string `koanf:"observer_frequency"`
}

// PresenceConfig holds session liveness sweep settings.
type PresenceConfig struct {
	SweepInterval  time.Duration `koanf:"sweep_interval"`
	StaleThreshold time.Duration `koanf:"stale_threshold"`
}

// NATSConfig holds the optional landline lifecycle event mirror.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values that would prevent a correct
// start. It fails closed on security-relevant settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Security.MinRating < 1 {
		return fmt.Errorf("security.min_rating must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.VATSIM.DataURL == "" {
		return fmt.Errorf("vatsim.data_url is required")
	}
	if c.VATSIM.PollInterval <= 0 {
		return fmt.Errorf("vatsim.poll_interval must be positive")
	}
	if c.Presence.SweepInterval <= 0 || c.Presence.StaleThreshold <= 0 {
		return fmt.Errorf("presence intervals must be positive")
	}
	if c.Presence.StaleThreshold <= c.Presence.SweepInterval {
		return fmt.Errorf("presence.stale_threshold must exceed presence.sweep_interval")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required when nats.enabled")
		}
		if c.NATS.Subject == "" {
			return fmt.Errorf("nats.subject is required when nats.enabled")
		}
	}
	return nil
}
