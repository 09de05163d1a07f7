// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
)

// requestID attaches an X-Request-ID header, preserving one supplied by a
// proxy.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// prometheusMetrics records request counts and durations per route pattern.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, pattern, ww.Status(), time.Since(start))
	})
}

// corsHandler builds the CORS middleware from the configured origins. An
// empty origin list denies cross-origin browser requests.
func corsHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// requireAuth gates mutating endpoints on a valid bearer credential.
func (rt *Router) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}
		if _, err := rt.verifier.Verify(token); err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected API credential")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
