// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package landline

import (
	"context"
	"encoding/json"
)

// Outbound event names pushed to connected sessions.
const (
	EventIncoming   = "incoming-landline"
	EventJoined     = "joined-landline"
	EventJoin       = "join-landline"
	EventActive     = "active-landline"
	EventActivated  = "landline-activated"
	EventLeft       = "left-landline"
	EventTerminated = "terminate-landline"
	EventDenied     = "denied-landline"
	EventMute       = "mute"
	EventUnmute     = "unmute"
	EventUserJoined = "user-joined"
	EventUserSignal = "user-signal"
	EventDisconnect = "disconnected"
	EventRooms      = "rooms"
)

// Event is a named payload pushed to one or more sessions.
type Event struct {
	Name string
	Data any
}

// Sender delivers events to connected sessions. The socket gateway implements
// it; tests substitute a recorder.
type Sender interface {
	// Send delivers an event to a single session. Unknown session ids are
	// dropped silently.
	Send(sessionID string, ev Event)

	// Broadcast delivers an event to every connected session.
	Broadcast(ev Event)
}

// Publisher receives landline lifecycle notifications for fan-out beyond the
// socket layer (event bus, NATS forwarder).
type Publisher interface {
	PublishLifecycle(ctx context.Context, action string, call *Landline)
}

// IncomingCall announces a new call to every session in the target group.
type IncomingCall struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
	Type   CallType        `json:"type"`
	Room   string          `json:"room"`
	Target string          `json:"target"`
}

// JoinedCall is sent to a session entering a call, carrying the members it
// needs to open peer connections with.
type JoinedCall struct {
	ID         string   `json:"id"`
	Type       CallType `json:"type"`
	Users      []string `json:"users"`
	From       string   `json:"from"`
	FromSector string   `json:"fromSector"`
	Target     string   `json:"target"`
}

// ActiveCall carries the call's descriptive state to existing participants.
type ActiveCall struct {
	ID       string    `json:"id"`
	Landline *Landline `json:"landline"`
}

// LeftCall notifies a call group that a session departed.
type LeftCall struct {
	ID  string `json:"id"`
	Who string `json:"who,omitempty"`
}

// DeniedCall notifies the initiator that the target refused a pending call.
type DeniedCall struct {
	ID string `json:"id"`
}

// PeerJoin relays an initiating WebRTC offer to its destination.
type PeerJoin struct {
	Signal    json.RawMessage `json:"signal"`
	Caller    string          `json:"caller"`
	Room      string          `json:"room"`
	WithAudio bool            `json:"withAudio"`
	Type      CallType        `json:"type"`
}

// PeerSignal relays an answering WebRTC payload back to the offerer.
type PeerSignal struct {
	Signal json.RawMessage `json:"signal"`
	ID     string          `json:"id"`
}
