// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package landline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/presence"
	"github.com/chiartcc/switchboard/internal/rooms"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

// Liveness reports whether a controller currently holds an active controlling
// session on the network. The data feed poller implements it.
type Liveness interface {
	IsControllerActive(cid int) (vatsim.Controller, bool)
}

// Directory answers facility and button questions during call placement. The
// position resolver implements it.
type Directory interface {
	FacilityKnown(id string) bool
	AuthorizedButton(t positions.ButtonType, target, fromSector string) bool
}

// Registry owns every connected session, every group membership and every
// active landline. A single goroutine (Serve) drains the command queue, so
// handlers mutate state without locks and each command runs to completion
// before the next starts.
type Registry struct {
	sessions *presence.Store
	groups   *rooms.Rooms
	calls    map[string]*Landline

	liveness Liveness
	dir      Directory
	sender   Sender
	pub      Publisher

	stale time.Duration

	ops chan func()
}

// NewRegistry builds a registry. pub may be nil when lifecycle fan-out is
// disabled.
func NewRegistry(liveness Liveness, dir Directory, sender Sender, pub Publisher, stale time.Duration) *Registry {
	return &Registry{
		sessions: presence.NewStore(),
		groups:   rooms.New(),
		calls:    make(map[string]*Landline),
		liveness: liveness,
		dir:      dir,
		sender:   sender,
		pub:      pub,
		stale:    stale,
		ops:      make(chan func(), 64),
	}
}

// SetSender installs the event sink. The gateway is constructed after the
// registry, so the sender arrives late; call before Serve starts.
func (r *Registry) SetSender(s Sender) {
	r.sender = s
}

// Serve drains the command queue until the context is cancelled. Implements
// suture.Service.
func (r *Registry) Serve(ctx context.Context) error {
	logging.Info().Msg("Landline registry started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-r.ops:
			op()
		}
	}
}

func (r *Registry) String() string {
	return "landline-registry"
}

// do runs fn on the registry goroutine and waits for it to finish.
func (r *Registry) do(fn func()) {
	done := make(chan struct{})
	r.ops <- func() {
		fn()
		close(done)
	}
	<-done
}

// Attach registers an admitted session and places it in its facility and
// sector groups. Every connected session learns the updated group list.
func (r *Registry) Attach(sess *presence.Session) {
	r.do(func() { r.attach(sess) })
}

func (r *Registry) attach(sess *presence.Session) {
	r.sessions.Add(sess)
	r.groups.Join(sess.Facility, sess.ID)
	r.groups.Join(sess.Sector, sess.ID)
	metrics.SessionsConnected.Set(float64(r.sessions.Len()))
	r.sender.Broadcast(Event{Name: EventRooms, Data: r.groups.Labels()})
	logging.Info().
		Str("session_id", sess.ID).
		Int("cid", sess.CID).
		Str("callsign", sess.Callsign).
		Str("sector", sess.Sector).
		Msg("Session attached")
}

// Detach removes a session, announces the disconnect, and terminates every
// landline that session initiated.
func (r *Registry) Detach(sessionID string) {
	r.do(func() { r.detach(sessionID) })
}

func (r *Registry) detach(sessionID string) {
	sess := r.sessions.Remove(sessionID)
	if sess == nil {
		return
	}
	r.sender.Broadcast(Event{Name: EventDisconnect, Data: sessionID})
	for id, call := range r.calls {
		if call.Initiator != sessionID {
			call.removeParticipant(sessionID)
			continue
		}
		r.sender.Broadcast(Event{Name: EventTerminated, Data: id})
		r.groups.Drop(id)
		delete(r.calls, id)
		r.publish("terminated", call)
	}
	r.groups.LeaveAll(sessionID)
	metrics.SessionsConnected.Set(float64(r.sessions.Len()))
	metrics.LandlinesActive.Set(float64(len(r.calls)))
	logging.Info().
		Str("session_id", sessionID).
		Str("callsign", sess.Callsign).
		Msg("Session detached")
}

// Session looks up a connected session by id.
func (r *Registry) Session(id string) (*presence.Session, bool) {
	var (
		sess *presence.Session
		ok   bool
	)
	r.do(func() { sess, ok = r.sessions.Get(id) })
	return sess, ok
}

// Initiate places a new call from the session toward a target group. The
// returned ack carries the landline id on success.
func (r *Registry) Initiate(sessionID, target string, typ CallType, signal json.RawMessage) CommandResult {
	var res CommandResult
	r.do(func() { res = r.initiate(sessionID, target, typ, signal) })
	metrics.RecordCommand("initiate", res.Result)
	return res
}

func (r *Registry) initiate(sessionID, target string, typ CallType, signal json.RawMessage) CommandResult {
	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		return Errorf("Not connected.")
	}
	if target == "" {
		return Errorf("No target specified.")
	}
	if target == sess.Sector || target == sess.Facility {
		return Errorf("You cannot call your own position.")
	}
	switch typ {
	case Shout:
		if !r.dir.FacilityKnown(target) {
			return Errorf("No matching button for %s.", target)
		}
	case Override:
		if !r.dir.AuthorizedButton(positions.ButtonOverride, target, sess.Sector) {
			return Errorf("No matching button for %s.", target)
		}
	}
	if !r.groups.Occupied(target) {
		return Errorf("No one connected for %s.", target)
	}

	id := uuid.NewString()
	call := &Landline{
		ID:           id,
		Type:         typ,
		Initiator:    sessionID,
		Target:       target,
		From:         sess.Sector,
		Participants: []string{sess.Sector, sessionID},
	}
	r.calls[id] = call
	r.groups.Join(id, sessionID)

	incoming := Event{Name: EventIncoming, Data: IncomingCall{
		Signal: signal,
		From:   sess.Sector,
		Name:   sess.Callsign,
		Type:   typ,
		Room:   id,
		Target: target,
	}}
	for _, member := range r.groups.Members(target) {
		r.groups.Join(id, member)
		r.sender.Send(member, incoming)
		if typ == Shout || typ == Override {
			// shouts and overrides connect immediately, no answer step
			r.sender.Send(member, Event{Name: EventJoin, Data: id})
		}
	}

	metrics.LandlinesActive.Set(float64(len(r.calls)))
	r.publish("created", call)
	logging.Info().
		Str("landline_id", id).
		Str("type", string(typ)).
		Str("from", sess.Sector).
		Str("target", target).
		Msg("Landline initiated")
	return Success(id)
}

// Answer accepts a pending call. The answering session receives the current
// call group membership; everyone already in the call learns the call went
// active.
func (r *Registry) Answer(sessionID, callID string) {
	r.do(func() { r.answer(sessionID, callID) })
	metrics.RecordCommand("answer", "ok")
}

func (r *Registry) answer(sessionID, callID string) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Warn().Str("landline_id", callID).Str("session_id", sessionID).Msg("Answer for unknown landline dropped")
		return
	}
	r.groups.Join(callID, sessionID)
	members := r.groups.Members(callID)
	r.sender.Send(sessionID, Event{Name: EventJoined, Data: JoinedCall{
		ID:         callID,
		Type:       call.Type,
		Users:      members,
		From:       call.Initiator,
		FromSector: call.From,
		Target:     call.Target,
	}})
	active := Event{Name: EventActive, Data: ActiveCall{ID: callID, Landline: call.clone()}}
	for _, m := range members {
		if m != sessionID {
			r.sender.Send(m, active)
		}
	}
	r.publish("answered", call)
}

// Join adds a session to an established call. Joining a live shout without
// the initial flag claims it: the shout collapses to a private converted
// exchange and the rest of the target group is dismissed.
func (r *Registry) Join(sessionID, callID string, initial bool) {
	r.do(func() { r.join(sessionID, callID, initial) })
	metrics.RecordCommand("join", "ok")
}

func (r *Registry) join(sessionID, callID string, initial bool) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Warn().Str("landline_id", callID).Str("session_id", sessionID).Msg("Join for unknown landline dropped")
		return
	}

	if call.Type == Shout && !initial {
		r.deliver(call.Target, Event{Name: EventLeft, Data: LeftCall{ID: callID}})
		call.Type = ConvertedShout
		call.Participants = []string{call.Initiator}
		r.deliverExcept(callID, sessionID, Event{Name: EventUnmute, Data: sessionID})
		r.publish("converted", call)
		logging.Info().Str("landline_id", callID).Str("claimed_by", sessionID).Msg("Shout converted")
		return
	}

	members := r.groups.Members(callID)
	r.groups.Join(callID, sessionID)
	r.sender.Send(sessionID, Event{Name: EventJoined, Data: JoinedCall{
		ID:         callID,
		Type:       call.Type,
		Users:      members,
		From:       call.Initiator,
		FromSector: call.From,
		Target:     call.Target,
	}})
	call.Participants = append(call.Participants, sessionID)

	activated := Event{Name: EventActivated, Data: ActiveCall{ID: callID, Landline: call.clone()}}
	for _, m := range r.audience(call) {
		if m != sessionID {
			r.sender.Send(m, activated)
		}
	}
	r.publish("activated", call)
}

// Leave removes a session from a call. The call terminates when fewer than
// three participants remain or when the initiator is the one leaving.
func (r *Registry) Leave(sessionID, callID string) {
	r.do(func() { r.leave(sessionID, callID) })
	metrics.RecordCommand("leave", "ok")
}

func (r *Registry) leave(sessionID, callID string) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Warn().Str("landline_id", callID).Str("session_id", sessionID).Msg("Leave for unknown landline dropped")
		return
	}
	r.deliverExcept(callID, sessionID, Event{Name: EventLeft, Data: LeftCall{ID: callID, Who: sessionID}})
	r.groups.Leave(callID, sessionID)
	call.removeParticipant(sessionID)

	if len(call.Participants) < 3 || call.Initiator == sessionID {
		r.deliver(callID, Event{Name: EventTerminated, Data: callID})
		r.dropCall(call)
		r.publish("terminated", call)
	}
}

// ConvertShout handles a participant leaving a converted shout. When the
// private exchange empties out, the call reverts to a shout and the target
// group is re-admitted.
func (r *Registry) ConvertShout(sessionID, callID string) {
	r.do(func() { r.convertShout(sessionID, callID) })
	metrics.RecordCommand("convert_shout", "ok")
}

func (r *Registry) convertShout(sessionID, callID string) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Warn().Str("landline_id", callID).Str("session_id", sessionID).Msg("Convert for unknown landline dropped")
		return
	}
	r.groups.Leave(callID, sessionID)
	call.removeParticipant(sessionID)
	r.deliverExcept(callID, sessionID, Event{Name: EventLeft, Data: LeftCall{ID: callID, Who: sessionID}})

	if len(call.Participants) >= 3 {
		return
	}
	call.Type = Shout
	snapshot := JoinedCall{
		ID:         callID,
		Type:       Shout,
		Users:      r.groups.Members(callID),
		From:       call.Initiator,
		FromSector: call.From,
		Target:     call.Target,
	}
	for _, m := range r.groups.Members(call.Target) {
		r.groups.Join(callID, m)
		r.sender.Send(m, Event{Name: EventJoined, Data: snapshot})
		if !contains(call.Participants, m) {
			call.Participants = append(call.Participants, m)
		}
	}
	r.publish("reverted", call)
	logging.Info().Str("landline_id", callID).Msg("Converted shout reverted")
}

// Terminate tears a call down on request. Any connected session may
// terminate any call it knows the id of; panel hang-up must always work.
func (r *Registry) Terminate(sessionID, callID string) {
	r.do(func() { r.terminate(sessionID, callID) })
	metrics.RecordCommand("terminate", "ok")
}

func (r *Registry) terminate(sessionID, callID string) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Debug().Str("landline_id", callID).Msg("Terminate for unknown landline ignored")
		return
	}
	r.sender.Broadcast(Event{Name: EventTerminated, Data: callID})
	r.dropCall(call)
	r.publish("terminated", call)
}

// Deny refuses a pending call: the rest of the call group is told, the group
// is evicted, and the call is deleted.
func (r *Registry) Deny(sessionID, callID string) {
	r.do(func() { r.deny(sessionID, callID) })
	metrics.RecordCommand("deny", "ok")
}

func (r *Registry) deny(sessionID, callID string) {
	call, ok := r.calls[callID]
	if !ok {
		logging.Debug().Str("landline_id", callID).Msg("Deny for unknown landline ignored")
		return
	}
	r.deliverExcept(callID, sessionID, Event{Name: EventDenied, Data: DeniedCall{ID: callID}})
	r.dropCall(call)
	r.publish("denied", call)
}

// SetAudio toggles the session's transmit state for the rest of the call.
func (r *Registry) SetAudio(sessionID, callID string, on bool) {
	r.do(func() { r.setAudio(sessionID, callID, on) })
}

func (r *Registry) setAudio(sessionID, callID string, on bool) {
	name := EventMute
	if on {
		name = EventUnmute
	}
	r.deliverExcept(callID, sessionID, Event{Name: name, Data: sessionID})
}

// InitSignal relays an initiating WebRTC offer toward its destination. The
// referenced landline must exist; relays for dead calls are dropped.
func (r *Registry) InitSignal(sessionID, to, room string, signal json.RawMessage, withAudio bool) {
	r.do(func() { r.initSignal(sessionID, to, room, signal, withAudio) })
}

func (r *Registry) initSignal(sessionID, to, room string, signal json.RawMessage, withAudio bool) {
	call, ok := r.calls[room]
	if !ok {
		logging.Warn().
			Str("landline_id", room).
			Str("session_id", sessionID).
			Msg("Signal for unknown landline dropped")
		return
	}
	r.deliver(to, Event{Name: EventUserJoined, Data: PeerJoin{
		Signal:    signal,
		Caller:    sessionID,
		Room:      room,
		WithAudio: withAudio,
		Type:      call.Type,
	}})
	metrics.SignalsRelayed.WithLabelValues("init").Inc()
}

// ReturnSignal relays an answering WebRTC payload back to the offerer. The
// return path carries no landline reference so there is nothing to validate.
func (r *Registry) ReturnSignal(sessionID, to string, signal json.RawMessage) {
	r.do(func() { r.returnSignal(sessionID, to, signal) })
}

func (r *Registry) returnSignal(sessionID, to string, signal json.RawMessage) {
	r.deliver(to, Event{Name: EventUserSignal, Data: PeerSignal{Signal: signal, ID: sessionID}})
	metrics.SignalsRelayed.WithLabelValues("return").Inc()
}

// SweepStale refreshes liveness for every session the feed still confirms and
// returns the ids of sessions stale past the threshold. Implements the
// presence sweep's StaleChecker.
func (r *Registry) SweepStale(ctx context.Context) ([]string, error) {
	var stale []string
	r.do(func() { stale = r.sweepStale(time.Now()) })
	return stale, nil
}

func (r *Registry) sweepStale(now time.Time) []string {
	var stale []string
	for _, sess := range r.sessions.All() {
		if ctrl, ok := r.liveness.IsControllerActive(sess.CID); ok && ctrl.Callsign == sess.Callsign {
			r.sessions.Touch(sess.ID, now)
			continue
		}
		if now.Sub(sess.LastSeenAt) > r.stale {
			stale = append(stale, sess.ID)
		}
	}
	return stale
}

// dropCall evicts a call's group and deletes it. Caller emits any farewell
// events first.
func (r *Registry) dropCall(call *Landline) {
	r.groups.Drop(call.ID)
	delete(r.calls, call.ID)
	metrics.LandlinesActive.Set(float64(len(r.calls)))
	logging.Info().Str("landline_id", call.ID).Str("type", string(call.Type)).Msg("Landline dropped")
}

// deliver sends to every member of a group label, or directly to the session
// with that id when the label names no occupied group. Signal destinations
// arrive as either form.
func (r *Registry) deliver(label string, ev Event) {
	r.deliverExcept(label, "", ev)
}

func (r *Registry) deliverExcept(label, except string, ev Event) {
	if r.groups.Occupied(label) {
		for _, id := range r.groups.Members(label) {
			if id != except {
				r.sender.Send(id, ev)
			}
		}
		return
	}
	if label != "" && label != except {
		r.sender.Send(label, ev)
	}
}

// audience collects the sessions on both ends of a call: the target group
// plus the initiator's sector group.
func (r *Registry) audience(call *Landline) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, label := range []string{call.Target, call.From} {
		for _, id := range r.groups.Members(label) {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

func (r *Registry) publish(action string, call *Landline) {
	if r.pub == nil {
		return
	}
	r.pub.PublishLifecycle(context.Background(), action, call.clone())
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
