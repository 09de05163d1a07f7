// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// healthLive reports process liveness.
func (rt *Router) healthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(rt.started).Seconds()),
	})
}

// healthReady reports readiness: the position snapshot must be loaded and the
// data feed must have been fetched at least once.
func (rt *Router) healthReady(w http.ResponseWriter, r *http.Request) {
	positionsLoaded := !rt.resolver.LoadedAt().IsZero()
	feedFetched := !rt.poller.LastFetched().IsZero()

	status := http.StatusOK
	state := "ready"
	if !positionsLoaded || !feedFetched {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"status":           state,
		"positions_loaded": positionsLoaded,
		"feed_fetched":     feedFetched,
		"sessions":         rt.gateway.ClientCount(),
	})
}

// listFacilities returns the configured facility tree.
func (rt *Router) listFacilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.resolver.FacilityTree())
}

// listFacilityPositions returns the positions configured for one facility.
func (rt *Router) listFacilityPositions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var out []any
	for _, p := range rt.resolver.Positions() {
		if p.FacilityID == id {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []any{}
	}
	writeJSON(w, http.StatusOK, out)
}

// resolvePosition maps a callsign and frequency to a configured position,
// the same lookup admission performs. A dial query resolves by dial code
// instead, for panel direct-dial preflight.
func (rt *Router) resolvePosition(w http.ResponseWriter, r *http.Request) {
	if dial := r.URL.Query().Get("dial"); dial != "" {
		pos, ok := rt.resolver.FindByDialCode(dial)
		if !ok {
			writeError(w, http.StatusNotFound, "no position with dial code "+dial)
			return
		}
		writeJSON(w, http.StatusOK, pos)
		return
	}

	callsign := r.URL.Query().Get("callsign")
	freq := r.URL.Query().Get("frequency")
	if callsign == "" || freq == "" {
		writeError(w, http.StatusBadRequest, "callsign and frequency are required")
		return
	}
	freqHz, err := vatsim.ParseFrequencyHz(freq)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable frequency")
		return
	}
	pos, ok := rt.resolver.Resolve(callsign, freqHz)
	if !ok {
		writeError(w, http.StatusNotFound, "no position found for "+callsign)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// listOverrides returns the manual liveness entries.
func (rt *Router) listOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.poller.Overrides())
}

// createOverride adds a manual liveness entry. Duplicate CIDs are rejected.
func (rt *Router) createOverride(w http.ResponseWriter, r *http.Request) {
	var o vatsim.Override
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := rt.validate.Struct(&o); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := rt.poller.AddOverride(o); err != nil {
		if errors.Is(err, vatsim.ErrOverrideExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logging.Info().Int("cid", o.CID).Str("callsign", o.Callsign).Msg("Liveness override added")
	writeJSON(w, http.StatusCreated, o)
}

// deleteOverride removes a manual liveness entry by CID.
func (rt *Router) deleteOverride(w http.ResponseWriter, r *http.Request) {
	cid, err := strconv.Atoi(chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cid must be numeric")
		return
	}
	if err := rt.poller.DeleteOverride(cid); err != nil {
		if errors.Is(err, vatsim.ErrOverrideNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logging.Info().Int("cid", cid).Msg("Liveness override removed")
	w.WriteHeader(http.StatusNoContent)
}
