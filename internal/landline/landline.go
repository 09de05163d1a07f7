// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package landline implements the call-routing core: the registry of active
// landline calls between controller positions, their lifecycle state machine,
// and the relay of WebRTC signaling between participants.
//
// All registry state is owned by a single goroutine (the registry's run
// loop); every mutation enters through its command queue and runs to
// completion before the next, so no landline ever sees two concurrent
// transitions.
package landline

import "fmt"

// CallType enumerates the landline call flavors.
type CallType string

const (
	// Ring is a directed call that the target must answer.
	Ring CallType = "RING"

	// Override keys directly into the target position's ear; placement is
	// gated on the target having configured a button for the calling sector.
	Override CallType = "OVERRIDE"

	// Shout is a one-to-many broadcast to an entire facility or sector group.
	Shout CallType = "SHOUT"

	// Intercom is a direct point-to-point call.
	Intercom CallType = "INTERCOM"

	// ConvertedShout is a shout narrowed to a private exchange after a
	// participant claimed it. Reversion to Shout happens only through the
	// explicit convert-shout action.
	ConvertedShout CallType = "CONVERTED_SHOUT"
)

// Landline is one active or pending call. Participants starts as the
// originating sector identity plus the initiator's session id and accumulates
// session ids as positions join.
type Landline struct {
	ID        string   `json:"id"`
	Type      CallType `json:"type"`
	Initiator string   `json:"initiator"`
	Target    string   `json:"target"`
	From      string   `json:"from"`

	Participants []string `json:"participants"`
}

// clone returns a copy safe to hand outside the registry goroutine.
func (l *Landline) clone() *Landline {
	c := *l
	c.Participants = append([]string(nil), l.Participants...)
	return &c
}

// removeParticipant drops a session id from the participant list.
func (l *Landline) removeParticipant(sessionID string) {
	for i, p := range l.Participants {
		if p == sessionID {
			l.Participants = append(l.Participants[:i], l.Participants[i+1:]...)
			return
		}
	}
}

// CommandResult is the ack returned to the issuing session for call-control
// commands.
type CommandResult struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// Success builds a success ack carrying a message (for initiate, the call id).
func Success(message string) CommandResult {
	return CommandResult{Result: "success", Message: message}
}

// Errorf builds an error ack with a user-facing message.
func Errorf(format string, args ...any) CommandResult {
	return CommandResult{Result: "error", Message: fmt.Sprintf(format, args...)}
}

// Err reports whether the result is an error ack.
func (r CommandResult) Err() bool {
	return r.Result == "error"
}
