// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package api provides the HTTP surface: the websocket endpoint, the
// read-only facility/position configuration API, liveness overrides, health,
// and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chiartcc/switchboard/internal/auth"
	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/socket"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

// Router wires handlers to their collaborators.
type Router struct {
	cfg      *config.Config
	resolver *positions.Resolver
	poller   *vatsim.Poller
	gateway  *socket.Gateway
	verifier *auth.TokenVerifier
	validate *validator.Validate
	started  time.Time
}

// NewRouter builds the HTTP router.
func NewRouter(cfg *config.Config, resolver *positions.Resolver, poller *vatsim.Poller, gateway *socket.Gateway, verifier *auth.TokenVerifier) *Router {
	return &Router{
		cfg:      cfg,
		resolver: resolver,
		poller:   poller,
		gateway:  gateway,
		verifier: verifier,
		validate: validator.New(),
		started:  time.Now(),
	}
}

// Handler assembles the middleware stack and route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(rt.cfg.Security.CORSOrigins))
	r.Use(prometheusMetrics)
	if !rt.cfg.Security.RateLimitDisabled {
		r.Use(httprate.LimitByIP(rt.cfg.Security.RateLimitReqs, rt.cfg.Security.RateLimitWindow))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/live", rt.healthLive)
		r.Get("/health/ready", rt.healthReady)

		// websocket admission carries its own credential check
		r.Get("/ws", rt.gateway.ServeHTTP)

		r.Get("/facilities", rt.listFacilities)
		r.Get("/facilities/{id}/positions", rt.listFacilityPositions)
		r.Get("/positions/resolve", rt.resolvePosition)

		r.Route("/overrides", func(r chi.Router) {
			r.Use(rt.requireAuth)
			r.Get("/", rt.listOverrides)
			r.Post("/", rt.createOverride)
			r.Delete("/{cid}", rt.deleteOverride)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
