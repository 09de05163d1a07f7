// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package supervisor builds the suture supervision tree that keeps the
// long-running services alive: the data layer (feed poller, position
// resolver), the realtime layer (landline registry, presence sweep,
// lifecycle forwarder), and the HTTP API layer.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/chiartcc/switchboard/internal/logging"
)

// TreeConfig holds restart and shutdown tuning for the tree. Zero values take
// suture's defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the hierarchical supervisor for Switchboard. A crash in the
// realtime layer restarts call routing without tearing down the HTTP API,
// and vice versa.
type Tree struct {
	root     *suture.Supervisor
	data     *suture.Supervisor
	realtime *suture.Supervisor
	api      *suture.Supervisor
}

// NewTree builds the three-layer tree. Supervisor events are logged through
// the zerolog-backed slog handler.
func NewTree(cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("switchboard", rootSpec)
	data := suture.New("data-layer", childSpec)
	realtime := suture.New("realtime-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(data)
	root.Add(realtime)
	root.Add(api)

	return &Tree{root: root, data: data, realtime: realtime, api: api}
}

// AddDataService supervises a service in the data layer (poller, resolver).
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddRealtimeService supervises a service in the realtime layer (registry,
// sweep, forwarder).
func (t *Tree) AddRealtimeService(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(svc)
}

// AddAPIService supervises a service in the API layer (HTTP server).
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until the context is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
