// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package presence tracks admitted controller sessions and prunes the ones
// the live-network feed no longer confirms.
package presence

import "time"

// Session is one live, admitted connection. Created at successful admission,
// refreshed by the sweep while the liveness feed confirms activity, destroyed
// on disconnect or eviction.
type Session struct {
	// ID is the opaque per-connection identifier.
	ID string

	// CID is the stable identity of the human controller. The system expects
	// at most one active session per CID but does not hard-enforce it.
	CID int

	// Callsign and FrequencyHz are the operating identity claimed via the
	// liveness feed at admission.
	Callsign    string
	FrequencyHz int64

	Facility string
	Sector   string

	ConnectedAt time.Time
	LastSeenAt  time.Time
}

// Store holds the connected sessions. It is confined to the landline registry
// goroutine; all access is serialized by the registry's run loop, so the
// store itself carries no locking.
type Store struct {
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (s *Store) Add(sess *Session) {
	s.sessions[sess.ID] = sess
}

// Remove deletes a session by id, returning it if present.
func (s *Store) Remove(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	return sess
}

// Get returns the session by id.
func (s *Store) Get(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// Touch refreshes the session's last-seen timestamp.
func (s *Store) Touch(id string, t time.Time) {
	if sess, ok := s.sessions[id]; ok {
		sess.LastSeenAt = t
	}
}

// All returns the current sessions in unspecified order.
func (s *Store) All() []*Session {
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Len returns the number of connected sessions.
func (s *Store) Len() int {
	return len(s.sessions)
}
