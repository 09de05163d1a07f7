// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package landline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/presence"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

type recorded struct {
	to string // "*" for broadcasts
	ev Event
}

type senderRecorder struct {
	mu     sync.Mutex
	events []recorded
}

func (s *senderRecorder) Send(sessionID string, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{to: sessionID, ev: ev})
}

func (s *senderRecorder) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{to: "*", ev: ev})
}

// sent returns events delivered to a session (including broadcasts) with the
// given name.
func (s *senderRecorder) sent(sessionID, name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, r := range s.events {
		if (r.to == sessionID || r.to == "*") && r.ev.Name == name {
			out = append(out, r.ev)
		}
	}
	return out
}

func (s *senderRecorder) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fakeLiveness struct {
	mu     sync.Mutex
	active map[int]vatsim.Controller
}

func (f *fakeLiveness) IsControllerActive(cid int) (vatsim.Controller, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.active[cid]
	return c, ok
}

type fakeDirectory struct {
	facilities map[string]bool
	authorized bool
}

func (f *fakeDirectory) FacilityKnown(id string) bool {
	return f.facilities[id]
}

func (f *fakeDirectory) AuthorizedButton(positions.ButtonType, string, string) bool {
	return f.authorized
}

func newTestRegistry(t *testing.T) (*Registry, *senderRecorder, *fakeLiveness) {
	t.Helper()
	sender := &senderRecorder{}
	liveness := &fakeLiveness{active: make(map[int]vatsim.Controller)}
	dir := &fakeDirectory{
		facilities: map[string]bool{"ORD": true, "C90": true},
		authorized: true,
	}
	r := NewRegistry(liveness, dir, sender, nil, 150*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Serve(ctx) }()

	return r, sender, liveness
}

// callCount and getCall run on the registry goroutine so tests never race
// with command processing.
func (r *Registry) callCount() int {
	var n int
	r.do(func() { n = len(r.calls) })
	return n
}

func (r *Registry) getCall(id string) (Landline, bool) {
	var (
		call Landline
		ok   bool
	)
	r.do(func() {
		if c, found := r.calls[id]; found {
			call = *c.clone()
			ok = true
		}
	})
	return call, ok
}

func session(id string, cid int, callsign, facility, sector string) *presence.Session {
	now := time.Now()
	return &presence.Session{
		ID:          id,
		CID:         cid,
		Callsign:    callsign,
		FrequencyHz: 121_900_000,
		Facility:    facility,
		Sector:      sector,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
}

func TestInitiateRing(t *testing.T) {
	r, sender, _ := newTestRegistry(t)

	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, []byte(`{"sdp":"offer"}`))
	if res.Err() {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	if _, err := uuid.Parse(res.Message); err != nil {
		t.Fatalf("success message %q is not a call id", res.Message)
	}

	incoming := sender.sent("b", EventIncoming)
	if len(incoming) != 1 {
		t.Fatalf("target received %d incoming events, want 1", len(incoming))
	}
	data := incoming[0].Data.(IncomingCall)
	if data.Type != Ring {
		t.Errorf("incoming type = %s, want RING", data.Type)
	}
	if data.From != "ORD-GND" {
		t.Errorf("incoming from = %s, want ORD-GND", data.From)
	}
	if data.Room != res.Message {
		t.Errorf("incoming room = %s, want %s", data.Room, res.Message)
	}

	call, ok := r.getCall(res.Message)
	if !ok {
		t.Fatal("call not registered")
	}
	if len(call.Participants) != 2 {
		t.Errorf("participants = %v, want 2 entries", call.Participants)
	}
	if call.Participants[0] != "ORD-GND" || call.Participants[1] != "a" {
		t.Errorf("participants = %v, want [ORD-GND a]", call.Participants)
	}
}

func TestInitiateOwnPosition(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))

	for _, target := range []string{"ORD-GND", "ORD"} {
		res := r.Initiate("a", target, Ring, nil)
		if !res.Err() {
			t.Errorf("initiate to %s succeeded, want error", target)
		}
		if res.Message != "You cannot call your own position." {
			t.Errorf("message = %q", res.Message)
		}
	}
	if n := r.callCount(); n != 0 {
		t.Errorf("registry holds %d calls, want 0", n)
	}
}

func TestInitiateEmptyRoom(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "C90", "C90-GND"))

	res := r.Initiate("a", "ORD", Shout, nil)
	if !res.Err() {
		t.Fatal("initiate to empty room succeeded, want error")
	}
	if res.Message != "No one connected for ORD." {
		t.Errorf("message = %q, want %q", res.Message, "No one connected for ORD.")
	}
	if n := r.callCount(); n != 0 {
		t.Errorf("registry holds %d calls, want 0", n)
	}
}

func TestInitiateNoTarget(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))

	if res := r.Initiate("a", "", Ring, nil); !res.Err() {
		t.Error("initiate with empty target succeeded, want error")
	}
}

func TestInitiateUnknownShoutFacility(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "MKE_TWR", "MKE", "MKE-TWR"))

	res := r.Initiate("a", "MKE", Shout, nil)
	if !res.Err() {
		t.Fatal("shout to unconfigured facility succeeded, want error")
	}
	if res.Message != "No matching button for MKE." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestShoutJoinImmediate(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "C90_GND", "C90", "C90-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD", Shout, nil)
	if res.Err() {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	// shout targets are pulled into the call without an answer step
	if got := sender.sent("b", EventJoin); len(got) != 1 {
		t.Errorf("target received %d join-landline events, want 1", len(got))
	}
}

func TestShoutConversion(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "C90_GND", "C90", "C90-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("c", 300, "ORD_GND", "ORD", "ORD-GND2"))

	res := r.Initiate("a", "ORD", Shout, nil)
	if res.Err() {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	id := res.Message
	sender.reset()

	// b claims the live shout
	r.Join("b", id, false)

	call, ok := r.getCall(id)
	if !ok {
		t.Fatal("call gone after conversion")
	}
	if call.Type != ConvertedShout {
		t.Errorf("type = %s, want CONVERTED_SHOUT", call.Type)
	}
	if len(call.Participants) != 1 || call.Participants[0] != "a" {
		t.Errorf("participants = %v, want [a]", call.Participants)
	}
	if got := sender.sent("c", EventLeft); len(got) != 1 {
		t.Errorf("bystander received %d left-landline events, want 1", len(got))
	}

	// a second late join takes the normal path; conversion happens once
	sender.reset()
	r.Join("c", id, false)
	call, _ = r.getCall(id)
	if call.Type != ConvertedShout {
		t.Errorf("type after second join = %s, want CONVERTED_SHOUT", call.Type)
	}
	if !contains(call.Participants, "c") {
		t.Errorf("participants = %v, want c added", call.Participants)
	}
}

func TestConvertShoutRevert(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "C90_GND", "C90", "C90-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("c", 300, "ORD_GND", "ORD", "ORD-GND2"))

	res := r.Initiate("a", "ORD", Shout, nil)
	if res.Err() {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	id := res.Message
	r.Join("b", id, false) // convert
	r.Join("c", id, true)  // c joins the converted exchange
	sender.reset()

	// c backs out; two participants remain so the call reverts to SHOUT
	r.ConvertShout("c", id)

	call, ok := r.getCall(id)
	if !ok {
		t.Fatal("call gone after revert")
	}
	if call.Type != Shout {
		t.Errorf("type = %s, want SHOUT", call.Type)
	}
	// everyone currently in the target group gets a fresh snapshot
	if got := sender.sent("b", EventJoined); len(got) != 1 {
		t.Errorf("b received %d joined-landline snapshots, want 1", len(got))
	}
	if got := sender.sent("c", EventJoined); len(got) != 1 {
		t.Errorf("c received %d joined-landline snapshots, want 1", len(got))
	}
}

func TestLeaveInitiatorTerminates(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("c", 300, "ORD_DEL", "ORD", "ORD-DEL"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	r.Join("b", id, true)
	r.Join("c", id, true)
	if call, _ := r.getCall(id); len(call.Participants) != 4 {
		t.Fatalf("participants = %v, want 4 entries", call.Participants)
	}

	// initiator leaves: terminates regardless of remaining count
	r.Leave("a", id)
	if _, ok := r.getCall(id); ok {
		t.Error("call survived initiator leave")
	}
	if got := sender.sent("b", EventTerminated); len(got) == 0 {
		t.Error("no terminate-landline delivered to remaining participant")
	}
}

func TestLeaveBelowThreeTerminates(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("c", 300, "ORD_DEL", "ORD", "ORD-DEL"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	r.Join("b", id, true)
	r.Join("c", id, true)

	// non-initiator leaves, 3 participants remain
	r.Leave("b", id)
	if _, ok := r.getCall(id); !ok {
		t.Fatal("call terminated with 3 participants remaining")
	}

	// next leave drops below 3
	r.Leave("c", id)
	if _, ok := r.getCall(id); ok {
		t.Error("call survived dropping below 3 participants")
	}
}

func TestLeaveUnknownCallIsNoop(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Leave("a", "nonexistent")
	if n := r.callCount(); n != 0 {
		t.Errorf("registry holds %d calls, want 0", n)
	}
}

func TestAnswer(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	sender.reset()

	r.Answer("b", id)

	joined := sender.sent("b", EventJoined)
	if len(joined) != 1 {
		t.Fatalf("answerer received %d joined-landline events, want 1", len(joined))
	}
	users := joined[0].Data.(JoinedCall).Users
	if !contains(users, "a") {
		t.Errorf("member list %v missing initiator", users)
	}
	// the snapshot is taken after the answerer joins the call group
	if !contains(users, "b") {
		t.Errorf("member list %v missing answerer", users)
	}
	if got := sender.sent("a", EventActive); len(got) != 1 {
		t.Errorf("initiator received %d active-landline events, want 1", len(got))
	}
	// the answerer gets the membership snapshot, not the active event
	if got := sender.sent("b", EventActive); len(got) != 0 {
		t.Errorf("answerer received %d active-landline events, want 0", len(got))
	}
}

func TestDeny(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	sender.reset()

	r.Deny("b", id)

	if _, ok := r.getCall(id); ok {
		t.Error("call survived deny")
	}
	if got := sender.sent("a", EventDenied); len(got) != 1 {
		t.Errorf("initiator received %d denied-landline events, want 1", len(got))
	}
}

func TestTerminateIsPermissive(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("x", 900, "ZAU_CTR", "ZAU", "ZAU-CTR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message

	// x is not a participant and still may hang the call up
	r.Terminate("x", id)
	if _, ok := r.getCall(id); ok {
		t.Error("call survived terminate")
	}
}

func TestDisconnectCascade(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	sender.reset()

	r.Detach("a")

	if _, ok := r.getCall(id); ok {
		t.Error("initiated call survived initiator disconnect")
	}
	terminated := sender.sent("b", EventTerminated)
	if len(terminated) != 1 {
		t.Fatalf("received %d terminate-landline events, want 1", len(terminated))
	}
	if terminated[0].Data.(string) != id {
		t.Errorf("terminated id = %v, want %s", terminated[0].Data, id)
	}
	if got := sender.sent("b", EventDisconnect); len(got) != 1 {
		t.Errorf("received %d disconnected events, want 1", len(got))
	}
}

func TestDisconnectNonInitiatorKeepsCall(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))
	r.Attach(session("c", 300, "ORD_DEL", "ORD", "ORD-DEL"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	r.Join("c", id, true)

	r.Detach("c")
	call, ok := r.getCall(id)
	if !ok {
		t.Fatal("call terminated by non-initiator disconnect")
	}
	if contains(call.Participants, "c") {
		t.Errorf("participants %v still list the disconnected session", call.Participants)
	}
}

func TestSignalRelay(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	sender.reset()

	// relay for a dead call is dropped
	r.InitSignal("a", "b", "no-such-call", []byte(`{}`), true)
	if got := sender.sent("b", EventUserJoined); len(got) != 0 {
		t.Errorf("relay for unknown landline delivered %d events, want 0", len(got))
	}

	r.InitSignal("a", "b", id, []byte(`{"sdp":"offer"}`), true)
	joined := sender.sent("b", EventUserJoined)
	if len(joined) != 1 {
		t.Fatalf("received %d user-joined events, want 1", len(joined))
	}
	pj := joined[0].Data.(PeerJoin)
	if pj.Caller != "a" || pj.Room != id || !pj.WithAudio {
		t.Errorf("unexpected relay payload: %+v", pj)
	}

	// the return path carries no landline reference and is never validated
	r.ReturnSignal("b", "a", []byte(`{"sdp":"answer"}`))
	if got := sender.sent("a", EventUserSignal); len(got) != 1 {
		t.Errorf("received %d user-signal events, want 1", len(got))
	}
}

func TestAudioToggle(t *testing.T) {
	r, sender, _ := newTestRegistry(t)
	r.Attach(session("a", 100, "ORD_GND", "ORD", "ORD-GND"))
	r.Attach(session("b", 200, "ORD_TWR", "ORD", "ORD-TWR"))

	res := r.Initiate("a", "ORD-TWR", Ring, nil)
	id := res.Message
	sender.reset()

	r.SetAudio("a", id, false)
	if got := sender.sent("b", EventMute); len(got) != 1 {
		t.Errorf("received %d mute events, want 1", len(got))
	}
	r.SetAudio("a", id, true)
	if got := sender.sent("b", EventUnmute); len(got) != 1 {
		t.Errorf("received %d unmute events, want 1", len(got))
	}
}

func TestSweepStale(t *testing.T) {
	r, _, liveness := newTestRegistry(t)

	fresh := session("a", 100, "ORD_GND", "ORD", "ORD-GND")
	stale := session("b", 200, "ORD_TWR", "ORD", "ORD-TWR")
	stale.LastSeenAt = time.Now().Add(-5 * time.Minute)
	r.Attach(fresh)
	r.Attach(stale)

	liveness.mu.Lock()
	liveness.active[100] = vatsim.Controller{CID: 100, Callsign: "ORD_GND", Frequency: "121.900"}
	liveness.mu.Unlock()

	ids, err := r.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("stale = %v, want [b]", ids)
	}

	// the confirmed session had lastSeenAt refreshed; backdate the feed
	// record and verify it still survives a long absence of sweeps
	sess, ok := r.Session("a")
	if !ok {
		t.Fatal("session a missing")
	}
	if time.Since(sess.LastSeenAt) > time.Second {
		t.Errorf("lastSeenAt not refreshed: %v", sess.LastSeenAt)
	}
}

func TestSweepCallsignMismatch(t *testing.T) {
	r, _, liveness := newTestRegistry(t)

	sess := session("a", 100, "ORD_GND", "ORD", "ORD-GND")
	sess.LastSeenAt = time.Now().Add(-5 * time.Minute)
	r.Attach(sess)

	// same controller now on a different position; the old session is stale
	liveness.mu.Lock()
	liveness.active[100] = vatsim.Controller{CID: 100, Callsign: "ORD_TWR", Frequency: "120.750"}
	liveness.mu.Unlock()

	ids, err := r.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("stale = %v, want [a]", ids)
	}
}
