// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package vatsim polls the live network data feed and answers the single
// question the landline core asks of it: is this controller currently active,
// and on what callsign and frequency.
package vatsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
)

var (
	// ErrOverrideExists rejects a second override for the same CID.
	ErrOverrideExists = errors.New("cid already has an override")

	// ErrOverrideNotFound is returned when deleting an unknown override.
	ErrOverrideNotFound = errors.New("no override for cid")
)

// Poller periodically fetches the network data feed and caches the controller
// list. Fetches run behind a circuit breaker; on failure the last-known-good
// snapshot is retained and the fetch retried on the next tick.
type Poller struct {
	cfg    config.VATSIMConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*Feed]

	mu          sync.RWMutex
	controllers []Controller
	overrides   []Override
	lastUpdate  string
	fetchedAt   time.Time
}

// NewPoller creates a poller for the configured data feed.
func NewPoller(cfg config.VATSIMConfig) *Poller {
	cb := gobreaker.NewCircuitBreaker[*Feed](gobreaker.Settings{
		Name:     "vatsim-data-feed",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("data feed circuit breaker state change")
		},
	})

	return &Poller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		cb:     cb,
	}
}

// Serve implements suture.Service: fetch immediately, then on every tick
// until the context is canceled.
func (p *Poller) Serve(ctx context.Context) error {
	p.refresh(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Poller) String() string {
	return "vatsim-poller"
}

// refresh fetches the feed and swaps the cached snapshot. Failures keep the
// previous snapshot.
func (p *Poller) refresh(ctx context.Context) {
	start := time.Now()
	feed, err := p.cb.Execute(func() (*Feed, error) {
		return p.fetch(ctx)
	})
	metrics.PollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollErrors.Inc()
		logging.Err(err).Msg("vatsim data feed fetch failed")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if feed.General.Update == p.lastUpdate {
		p.fetchedAt = time.Now()
		return
	}
	p.controllers = feed.Controllers
	p.lastUpdate = feed.General.Update
	p.fetchedAt = time.Now()
	metrics.ControllersOnline.Set(float64(len(feed.Controllers)))
	logging.Debug().
		Int("controllers", len(feed.Controllers)).
		Str("update", feed.General.Update).
		Msg("vatsim data refreshed")
}

func (p *Poller) fetch(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching data feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading data feed body: %w", err)
	}

	feed := &Feed{}
	if err := json.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("decoding data feed: %w", err)
	}
	return feed, nil
}

// IsControllerActive reports whether the controller is connected as ATC on a
// real frequency. Observer connections (the sentinel frequency) do not count.
// Overrides take precedence over feed entries.
func (p *Poller) IsControllerActive(cid int) (Controller, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, o := range p.overrides {
		if o.CID == cid {
			return Controller{CID: o.CID, Callsign: o.Callsign, Frequency: o.Frequency}, true
		}
	}
	for _, c := range p.controllers {
		if c.CID == cid && c.Frequency != p.cfg.ObserverFrequency {
			return c, true
		}
	}
	return Controller{}, false
}

// Snapshot returns a copy of the cached controller list with overrides merged.
func (p *Poller) Snapshot() []Controller {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Controller, 0, len(p.controllers)+len(p.overrides))
	out = append(out, p.controllers...)
	for _, o := range p.overrides {
		out = append(out, Controller{CID: o.CID, Callsign: o.Callsign, Frequency: o.Frequency})
	}
	return out
}

// LastFetched returns when the snapshot was last confirmed against the feed.
func (p *Poller) LastFetched() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}

// AddOverride registers a manual liveness entry. A CID may hold one override.
func (p *Poller) AddOverride(o Override) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.overrides {
		if existing.CID == o.CID {
			return ErrOverrideExists
		}
	}
	p.overrides = append(p.overrides, o)
	logging.Info().Int("cid", o.CID).Str("callsign", o.Callsign).Msg("liveness override added")
	return nil
}

// Overrides returns a copy of the current override list.
func (p *Poller) Overrides() []Override {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Override(nil), p.overrides...)
}

// DeleteOverride removes the override for a CID.
func (p *Poller) DeleteOverride(cid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, o := range p.overrides {
		if o.CID == cid {
			p.overrides = append(p.overrides[:i], p.overrides[i+1:]...)
			logging.Info().Int("cid", cid).Msg("liveness override removed")
			return nil
		}
	}
	return ErrOverrideNotFound
}
