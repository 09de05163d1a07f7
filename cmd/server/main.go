// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package main is the entry point for the Switchboard server.
//
// Switchboard brokers realtime "landline" intercom calls between connected
// VATSIM controller positions: ring, override, shout, intercom, and converted
// shout. It authenticates controllers with bearer credentials minted by the
// facility SSO, confirms each connection against the live network data feed,
// resolves the controller's position from the configured facility tree, and
// relays WebRTC signaling between call participants.
//
// # Architecture
//
// Components start under a three-layer suture supervision tree:
//
//  1. data layer: VATSIM feed poller, position resolver (DuckDB-backed)
//  2. realtime layer: landline registry, presence sweep, optional NATS
//     lifecycle forwarder
//  3. api layer: chi HTTP server (websocket endpoint, configuration API,
//     health, Prometheus metrics)
//
// A crash in one layer restarts only that layer's services.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority
// wins): environment variables, config.yaml, built-in defaults. The only
// required setting is JWT_SECRET (32+ characters). See config.example.yaml.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, websocket clients receive close frames, and the
// supervision tree stops bottom-up.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chiartcc/switchboard/internal/api"
	"github.com/chiartcc/switchboard/internal/auth"
	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/events"
	"github.com/chiartcc/switchboard/internal/landline"
	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/presence"
	"github.com/chiartcc/switchboard/internal/socket"
	"github.com/chiartcc/switchboard/internal/supervisor"
	"github.com/chiartcc/switchboard/internal/supervisor/services"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := positions.Open(ctx, &cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open configuration store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing configuration store")
		}
	}()

	resolver := positions.NewResolver(store, cfg.Database.RefreshInterval)
	if err := resolver.Refresh(ctx); err != nil {
		// the resolver service retries on its own schedule
		logging.Warn().Err(err).Msg("Initial position load failed")
	}

	poller := vatsim.NewPoller(cfg.VATSIM)

	verifier, err := auth.NewTokenVerifier(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential verifier")
	}

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing lifecycle bus")
		}
	}()

	registry := landline.NewRegistry(poller, resolver, nil, bus, cfg.Presence.StaleThreshold)
	gateway := socket.NewGateway(registry, verifier, poller, resolver, cfg.Security)
	registry.SetSender(gateway)
	sweep := presence.NewSweep(registry, gateway, cfg.Presence.SweepInterval)

	router := api.NewRouter(cfg, resolver, poller, gateway, verifier)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(poller)
	tree.AddDataService(resolver)
	tree.AddRealtimeService(registry)
	tree.AddRealtimeService(sweep)
	if cfg.NATS.Enabled {
		tree.AddRealtimeService(events.NewForwarder(cfg.NATS, bus))
		logging.Info().Str("subject", cfg.NATS.Subject).Msg("NATS lifecycle forwarder enabled")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	logging.Info().Msg("Switchboard stopped gracefully")
}
