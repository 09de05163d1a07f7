// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package socket

import (
	"encoding/json"

	"github.com/chiartcc/switchboard/internal/landline"
	"github.com/chiartcc/switchboard/internal/positions"
)

// Inbound command names. Every command is scoped to an authenticated,
// admitted session.
const (
	CmdInitiate     = "initiate-landline"
	CmdAnswer       = "answer-landline"
	CmdTerminate    = "terminate-landline"
	CmdDeny         = "deny-landline"
	CmdJoin         = "join-landline"
	CmdLeave        = "leave-landline"
	CmdConvertShout = "convert-shout"
	CmdAddAudio     = "add-audio"
	CmdRemoveAudio  = "remove-audio"
	CmdInitSignal   = "init-signal"
	CmdReturnSignal = "return-signal"
)

// Outbound event names owned by the gateway itself. Call lifecycle events are
// named in the landline package.
const (
	EventResult = "result"
	EventError  = "error"
	EventConfig = "config"
)

// Envelope is the wire frame in both directions. Seq is client-chosen and
// echoed back on command acks.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result is the ack emitted to the issuing session for every command.
type Result struct {
	Seq     uint64 `json:"seq"`
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// InitiatePayload places a new call toward a facility or sector group.
type InitiatePayload struct {
	To         string            `json:"to"`
	Type       landline.CallType `json:"type" validate:"required,oneof=RING OVERRIDE SHOUT INTERCOM CONVERTED_SHOUT"`
	SignalData json.RawMessage   `json:"signalData"`
}

// IDPayload names an existing call (answer, terminate, audio toggles).
type IDPayload struct {
	ID string `json:"id" validate:"required"`
}

// DenyPayload refuses a pending call. The field carries the call id; the
// client protocol names it caller.
type DenyPayload struct {
	Caller string `json:"caller" validate:"required"`
}

// JoinPayload enters an established call. Initial distinguishes initial
// ringing joins from later claims of a live shout.
type JoinPayload struct {
	Target  string `json:"target" validate:"required"`
	Initial bool   `json:"initial"`
}

// LeavePayload exits a call; Target is the call id.
type LeavePayload struct {
	Target string `json:"target" validate:"required"`
}

// InitSignalPayload relays an initiating WebRTC offer.
type InitSignalPayload struct {
	To     string          `json:"to" validate:"required"`
	Room   string          `json:"room" validate:"required"`
	Signal json.RawMessage `json:"signal" validate:"required"`
	Audio  bool            `json:"audio"`
}

// ReturnSignalPayload relays an answering WebRTC payload to a session.
type ReturnSignalPayload struct {
	To     string          `json:"to" validate:"required"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

// ConfigPayload is pushed to a session immediately after admission.
type ConfigPayload struct {
	SessionID string `json:"sessionId"`
	Callsign  string `json:"callsign"`
	Facility  string `json:"facility"`
	Sector    string `json:"sector"`

	Position positions.Position `json:"position"`
}
