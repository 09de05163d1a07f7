// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package positions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chiartcc/switchboard/internal/logging"
)

// Resolver answers position lookups against an in-memory snapshot of the
// configuration tree, refreshed from the store on a fixed interval. The
// admission path must never block on the database.
type Resolver struct {
	store    *Store
	interval time.Duration

	mu         sync.RWMutex
	positions  []Position
	facilities []*Facility
	loadedAt   time.Time
}

// NewResolver creates a resolver over the store. Call Refresh (or start the
// resolver under supervision) before serving admissions.
func NewResolver(store *Store, interval time.Duration) *Resolver {
	return &Resolver{store: store, interval: interval}
}

// Refresh reloads the snapshot from the store. On failure the previous
// snapshot is retained.
func (r *Resolver) Refresh(ctx context.Context) error {
	positions, err := r.store.LoadPositions(ctx)
	if err != nil {
		return err
	}
	facilities, err := r.store.LoadFacilityTree(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.positions = positions
	r.facilities = facilities
	r.loadedAt = time.Now()
	r.mu.Unlock()

	logging.Debug().Int("positions", len(positions)).Msg("configuration snapshot refreshed")
	return nil
}

// Serve implements suture.Service: refresh immediately, then on every tick.
func (r *Resolver) Serve(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		logging.Err(err).Msg("configuration refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				logging.Err(err).Msg("configuration refresh failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (r *Resolver) String() string {
	return "position-resolver"
}

// Resolve maps a claimed network identity to a configured position. The
// callsign splits on underscores; a position matches when its configured
// prefix equals the first token, its suffix equals the last token, and its
// frequency equals the claimed frequency exactly.
func (r *Resolver) Resolve(callsign string, frequencyHz int64) (Position, bool) {
	tokens := strings.Split(callsign, "_")
	prefix := tokens[0]
	suffix := tokens[len(tokens)-1]

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.positions {
		p := &r.positions[i]
		if p.CallsignPrefix == prefix && p.CallsignSuffix == suffix && p.FrequencyHz == frequencyHz {
			return *p, true
		}
	}
	return Position{}, false
}

// FindByDialCode returns the position configured with the given dial code.
func (r *Resolver) FindByDialCode(code string) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.positions {
		if r.positions[i].DialCode == code {
			return r.positions[i], true
		}
	}
	return Position{}, false
}

// FacilityKnown reports whether the facility id exists in the snapshot.
func (r *Resolver) FacilityKnown(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return facilityInForest(r.facilities, id)
}

func facilityInForest(nodes []*Facility, id string) bool {
	for _, f := range nodes {
		if f.ID == id || facilityInForest(f.Children, id) {
			return true
		}
	}
	return false
}

// AuthorizedButton reports whether some position inside the target group has
// a button of the given type pointed back at fromSector. This is the permission
// model for OVERRIDE placement: the called party must have configured a button
// for the calling sector.
func (r *Resolver) AuthorizedButton(callType ButtonType, target, fromSector string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.positions {
		p := &r.positions[i]
		if !strings.Contains(target, p.FacilityID) || !strings.Contains(target, p.Sector) {
			continue
		}
		for _, b := range p.Buttons {
			if b.Type == callType && b.Target == fromSector {
				return true
			}
		}
	}
	return false
}

// FacilityTree returns the current facility forest snapshot.
func (r *Resolver) FacilityTree() []*Facility {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.facilities
}

// Positions returns the flat position snapshot.
func (r *Resolver) Positions() []Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions
}

// LoadedAt returns when the snapshot was last refreshed.
func (r *Resolver) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}
