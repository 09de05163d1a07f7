// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package rooms models broadcast groups explicitly as a mapping from a string
// label (sector, facility, or landline call id) to the set of subscribed
// session ids. Keeping the mapping here, rather than leaning on a transport's
// room feature, keeps the call-routing core transport-agnostic.
//
// A Rooms value is confined to the landline registry goroutine and is not
// safe for concurrent use.
package rooms

// Rooms maps group labels to subscribed session ids. Membership per label
// preserves join order.
type Rooms struct {
	members map[string][]string
}

// New creates an empty group mapping.
func New() *Rooms {
	return &Rooms{members: make(map[string][]string)}
}

// Join subscribes a session to a label. Joining twice is a no-op.
func (r *Rooms) Join(label, sessionID string) {
	for _, id := range r.members[label] {
		if id == sessionID {
			return
		}
	}
	r.members[label] = append(r.members[label], sessionID)
}

// Leave unsubscribes a session from a label. Empty groups are dropped.
func (r *Rooms) Leave(label, sessionID string) {
	ids := r.members[label]
	for i, id := range ids {
		if id == sessionID {
			r.members[label] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.members[label]) == 0 {
		delete(r.members, label)
	}
}

// LeaveAll removes a session from every group it is subscribed to.
func (r *Rooms) LeaveAll(sessionID string) {
	for label := range r.members {
		r.Leave(label, sessionID)
	}
}

// Drop removes a label and all its subscriptions.
func (r *Rooms) Drop(label string) {
	delete(r.members, label)
}

// Members returns a copy of the session ids subscribed to a label, in join
// order. A missing label yields nil.
func (r *Rooms) Members(label string) []string {
	ids := r.members[label]
	if ids == nil {
		return nil
	}
	return append([]string(nil), ids...)
}

// Occupied reports whether the label has at least one subscriber.
func (r *Rooms) Occupied(label string) bool {
	return len(r.members[label]) > 0
}

// Contains reports whether the session is subscribed to the label.
func (r *Rooms) Contains(label, sessionID string) bool {
	for _, id := range r.members[label] {
		if id == sessionID {
			return true
		}
	}
	return false
}

// Labels returns every occupied group label.
func (r *Rooms) Labels() []string {
	out := make([]string, 0, len(r.members))
	for label := range r.members {
		out = append(out, label)
	}
	return out
}
