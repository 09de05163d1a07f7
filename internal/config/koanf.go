// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/switchboard/config.yaml",
	"/etc/switchboard/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first and are overridden by the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3290,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			JWTSecret:          "",
			MinRating:          2,
			RateLimitReqs:      100,
			RateLimitWindow:    time.Minute,
			RateLimitDisabled:  false,
			CORSOrigins:        []string{},
			SocketMessageRate:  25,
			SocketMessageBurst: 50,
		},
		Database: DatabaseConfig{
			Path:            "/data/switchboard.duckdb",
			RefreshInterval: 5 * time.Minute,
		},
		VATSIM: VATSIMConfig{
			DataURL:           "https://data.vatsim.net/v3/vatsim-data.json",
			PollInterval:      30 * time.Second,
			FetchTimeout:      10 * time.Second,
			ObserverFrequency: "199.998",
		},
		Presence: PresenceConfig{
			SweepInterval:  time.Minute,
			StaleThreshold: 150 * time.Second,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "switchboard.landline.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths parse as comma-separated slices
// when supplied via environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so that unrelated environment state cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":        "server.host",
		"http_port":        "server.port",
		"http_timeout":     "server.timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"environment":      "server.environment",

		"auth_signing_key":     "security.jwt_secret",
		"jwt_secret":           "security.jwt_secret",
		"min_rating":           "security.min_rating",
		"rate_limit_requests":  "security.rate_limit_reqs",
		"rate_limit_window":    "security.rate_limit_window",
		"disable_rate_limit":   "security.rate_limit_disabled",
		"cors_origins":         "security.cors_origins",
		"socket_message_rate":  "security.socket_message_rate",
		"socket_message_burst": "security.socket_message_burst",

		"duckdb_path":             "database.path",
		"config_refresh_interval": "database.refresh_interval",

		"vatsim_data_url":      "vatsim.data_url",
		"vatsim_poll_interval": "vatsim.poll_interval",
		"vatsim_fetch_timeout": "vatsim.fetch_timeout",
		"observer_frequency":   "vatsim.observer_frequency",

		"presence_sweep_interval":  "presence.sweep_interval",
		"presence_stale_threshold": "presence.stale_threshold",

		"nats_enabled": "nats.enabled",
		"nats_url":     "nats.url",
		"nats_subject": "nats.subject",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
