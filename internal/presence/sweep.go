// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package presence

import (
	"context"
	"time"

	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
)

// StaleChecker cross-checks every tracked session against the liveness feed.
// Sessions still confirmed get their last-seen refreshed; it returns the ids
// of sessions unconfirmed for longer than the stale threshold.
// Implemented by the landline registry, which owns the session store.
type StaleChecker interface {
	SweepStale(ctx context.Context) ([]string, error)
}

// ConnectionCloser force-closes a session's connection. Closing the
// connection triggers the ordinary disconnect cascade (landline teardown,
// group departure) through the gateway.
type ConnectionCloser interface {
	CloseSession(sessionID, reason string)
}

// Sweep periodically evicts sessions the liveness feed no longer confirms.
type Sweep struct {
	checker  StaleChecker
	closer   ConnectionCloser
	interval time.Duration
}

// NewSweep creates the sweep service.
func NewSweep(checker StaleChecker, closer ConnectionCloser, interval time.Duration) *Sweep {
	return &Sweep{checker: checker, closer: closer, interval: interval}
}

// Serve implements suture.Service.
func (s *Sweep) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Sweep) String() string {
	return "presence-sweep"
}

func (s *Sweep) tick(ctx context.Context) {
	stale, err := s.checker.SweepStale(ctx)
	if err != nil {
		logging.Err(err).Msg("presence sweep failed")
		return
	}
	for _, id := range stale {
		metrics.SessionsEvicted.Inc()
		logging.Info().Str("session", id).Msg("evicting stale session")
		s.closer.CloseSession(id, "no active controlling session found")
	}
}
