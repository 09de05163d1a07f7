// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiartcc/switchboard/internal/auth"
	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/landline"
	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/socket"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

const testSecret = "fedcba9876543210fedcba9876543210"

const feedJSON = `{
	"general": {"update": "20260830120000"},
	"controllers": [
		{"cid": 100, "callsign": "ORD_TWR", "frequency": "120.750", "rating": 3}
	]
}`

type apiHarness struct {
	srv    *httptest.Server
	poller *vatsim.Poller
}

// newAPIHarness assembles the full handler graph over an in-memory position
// store. servePoller controls whether the data feed poller runs; readiness
// depends on it.
func newAPIHarness(t *testing.T, servePoller bool) *apiHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := positions.Open(ctx, &config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateFacility(ctx, "ZAU", ""))
	require.NoError(t, store.CreateFacility(ctx, "ORD", "ZAU"))
	_, err = store.CreatePosition(ctx, &positions.Position{
		FacilityID:     "ORD",
		Name:           "Tower",
		Sector:         "TWR",
		CallsignPrefix: "ORD",
		CallsignSuffix: "TWR",
		FrequencyHz:    120_750_000,
		DialCode:       "201",
		PanelType:      positions.PanelVSCS,
	})
	require.NoError(t, err)

	resolver := positions.NewResolver(store, time.Minute)
	require.NoError(t, resolver.Refresh(ctx))

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedJSON))
	}))
	t.Cleanup(feedSrv.Close)

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:          testSecret,
			MinRating:          2,
			RateLimitDisabled:  true,
			CORSOrigins:        []string{"*"},
			SocketMessageRate:  100,
			SocketMessageBurst: 100,
		},
		VATSIM: config.VATSIMConfig{
			DataURL:           feedSrv.URL,
			PollInterval:      time.Hour,
			FetchTimeout:      5 * time.Second,
			ObserverFrequency: "199.998",
		},
	}

	poller := vatsim.NewPoller(cfg.VATSIM)
	if servePoller {
		go func() { _ = poller.Serve(ctx) }()
		require.Eventually(t, func() bool {
			return !poller.LastFetched().IsZero()
		}, 2*time.Second, 10*time.Millisecond, "poller never fetched the feed")
	}

	verifier, err := auth.NewTokenVerifier(&cfg.Security)
	require.NoError(t, err)

	registry := landline.NewRegistry(poller, resolver, nil, nil, 150*time.Second)
	gateway := socket.NewGateway(registry, verifier, poller, resolver, cfg.Security)
	registry.SetSender(gateway)
	go func() { _ = registry.Serve(ctx) }()

	router := NewRouter(cfg, resolver, poller, gateway, verifier)
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	return &apiHarness{srv: srv, poller: poller}
}

func mintToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		CID:    100,
		Rating: 3,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *apiHarness) request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestHealthLive(t *testing.T) {
	h := newAPIHarness(t, false)
	resp, body := h.request(t, http.MethodGet, "/api/v1/health/live", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestHealthReadyBeforeFeed(t *testing.T) {
	h := newAPIHarness(t, false)
	resp, body := h.request(t, http.MethodGet, "/api/v1/health/ready", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "not_ready", payload["status"])
	assert.Equal(t, false, payload["feed_fetched"])
	assert.Equal(t, true, payload["positions_loaded"])
}

func TestHealthReady(t *testing.T) {
	h := newAPIHarness(t, true)
	resp, body := h.request(t, http.MethodGet, "/api/v1/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ready", payload["status"])
}

func TestListFacilities(t *testing.T) {
	h := newAPIHarness(t, false)
	resp, body := h.request(t, http.MethodGet, "/api/v1/facilities", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var forest []positions.Facility
	require.NoError(t, json.Unmarshal(body, &forest))
	require.Len(t, forest, 1)
	assert.Equal(t, "ZAU", forest[0].ID)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "ORD", forest[0].Children[0].ID)
}

func TestListFacilityPositions(t *testing.T) {
	h := newAPIHarness(t, false)

	resp, body := h.request(t, http.MethodGet, "/api/v1/facilities/ORD/positions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []positions.Position
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Tower", out[0].Name)

	// unknown facility returns an empty list, not an error
	resp, body = h.request(t, http.MethodGet, "/api/v1/facilities/MKE/positions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]\n", string(body))
}

func TestResolvePosition(t *testing.T) {
	h := newAPIHarness(t, false)

	resp, body := h.request(t, http.MethodGet, "/api/v1/positions/resolve?callsign=ORD_TWR&frequency=120.750", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pos positions.Position
	require.NoError(t, json.Unmarshal(body, &pos))
	assert.Equal(t, "Tower", pos.Name)
	assert.Equal(t, int64(120_750_000), pos.FrequencyHz)

	resp, _ = h.request(t, http.MethodGet, "/api/v1/positions/resolve?callsign=ORD_TWR", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.request(t, http.MethodGet, "/api/v1/positions/resolve?callsign=MKE_TWR&frequency=119.100", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveByDialCode(t *testing.T) {
	h := newAPIHarness(t, false)

	resp, body := h.request(t, http.MethodGet, "/api/v1/positions/resolve?dial=201", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pos positions.Position
	require.NoError(t, json.Unmarshal(body, &pos))
	assert.Equal(t, "Tower", pos.Name)

	resp, _ = h.request(t, http.MethodGet, "/api/v1/positions/resolve?dial=999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOverridesRequireAuth(t *testing.T) {
	h := newAPIHarness(t, false)

	resp, _ := h.request(t, http.MethodGet, "/api/v1/overrides", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.request(t, http.MethodGet, "/api/v1/overrides", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOverrideLifecycle(t *testing.T) {
	h := newAPIHarness(t, false)
	token := mintToken(t)

	override := vatsim.Override{CID: 555, Callsign: "ORD_GND", Frequency: "121.900"}
	resp, _ := h.request(t, http.MethodPost, "/api/v1/overrides", token, override)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// a CID holds at most one override
	resp, _ = h.request(t, http.MethodPost, "/api/v1/overrides", token, override)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := h.request(t, http.MethodGet, "/api/v1/overrides", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []vatsim.Override
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 555, list[0].CID)

	resp, _ = h.request(t, http.MethodDelete, "/api/v1/overrides/555", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = h.request(t, http.MethodDelete, "/api/v1/overrides/555", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.request(t, http.MethodDelete, "/api/v1/overrides/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverrideValidation(t *testing.T) {
	h := newAPIHarness(t, false)
	token := mintToken(t)

	resp, _ := h.request(t, http.MethodPost, "/api/v1/overrides", token, vatsim.Override{CID: 0, Callsign: "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
