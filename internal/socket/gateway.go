// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package socket is the realtime gateway: it upgrades HTTP requests to
// websocket connections, runs the admission pipeline (credential, liveness,
// position), and bridges wire frames to the landline registry.
package socket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chiartcc/switchboard/internal/auth"
	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/landline"
	"github.com/chiartcc/switchboard/internal/logging"
	"github.com/chiartcc/switchboard/internal/metrics"
	"github.com/chiartcc/switchboard/internal/positions"
	"github.com/chiartcc/switchboard/internal/presence"
	"github.com/chiartcc/switchboard/internal/vatsim"
)

// CredentialVerifier checks the bearer credential supplied at handshake.
type CredentialVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Liveness reports the controller's current network connection.
type Liveness interface {
	IsControllerActive(cid int) (vatsim.Controller, bool)
}

// PositionResolver maps a live connection to a configured position.
type PositionResolver interface {
	Resolve(callsign string, frequencyHz int64) (positions.Position, bool)
}

// Gateway owns the websocket endpoint and the set of connected clients. It
// implements the registry's Sender and the presence sweep's ConnectionCloser.
type Gateway struct {
	registry *landline.Registry
	verifier CredentialVerifier
	liveness Liveness
	resolver PositionResolver

	cfg      config.SecurityConfig
	validate *validator.Validate
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewGateway wires the gateway to its collaborators. Registry attachment
// happens per-connection after admission.
func NewGateway(registry *landline.Registry, verifier CredentialVerifier, liveness Liveness, resolver PositionResolver, cfg config.SecurityConfig) *Gateway {
	return &Gateway{
		registry: registry,
		verifier: verifier,
		liveness: liveness,
		resolver: resolver,
		cfg:      cfg,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browser clients connect from the panel frontends; origin
			// enforcement happens at the CORS layer on the same origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and runs admission. Admission failures emit
// an error event with the reason and close with policy violation (1008).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	token := bearerToken(r)
	sess, pos, reason, outcome := g.admit(token)
	metrics.RecordAdmission(outcome)
	if sess == nil {
		g.refuse(conn, reason)
		return
	}

	c := newClient(g, conn, sess.ID, g.cfg.SocketMessageRate, g.cfg.SocketMessageBurst)
	g.mu.Lock()
	g.clients[sess.ID] = c
	g.mu.Unlock()

	// attach before the read pump starts so the first command a client fires
	// already finds its session registered
	g.registry.Attach(sess)
	c.start()
	c.enqueue(outMessage{Event: EventConfig, Data: ConfigPayload{
		SessionID: sess.ID,
		Callsign:  sess.Callsign,
		Facility:  sess.Facility,
		Sector:    sess.Sector,
		Position:  pos,
	}})
}

// admit runs the admission pipeline in order: credential, liveness, position.
// The first failing stage wins; later stages never run.
func (g *Gateway) admit(token string) (*presence.Session, positions.Position, string, string) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		outcome := "not_authenticated"
		if errors.Is(err, auth.ErrRatingNotApproved) {
			outcome = "rating"
		}
		return nil, positions.Position{}, err.Error(), outcome
	}

	ctrl, ok := g.liveness.IsControllerActive(claims.CID)
	if !ok {
		return nil, positions.Position{}, "no active controlling session found", "offline"
	}

	freqHz, err := vatsim.ParseFrequencyHz(ctrl.Frequency)
	if err != nil {
		logging.Err(err).Int("cid", claims.CID).Str("callsign", ctrl.Callsign).Msg("Unparseable feed frequency")
		return nil, positions.Position{}, "no position found for " + ctrl.Callsign, "no_position"
	}
	pos, ok := g.resolver.Resolve(ctrl.Callsign, freqHz)
	if !ok {
		return nil, positions.Position{}, "no position found for " + ctrl.Callsign, "no_position"
	}

	now := time.Now()
	sess := &presence.Session{
		ID:          uuid.NewString(),
		CID:         claims.CID,
		Callsign:    ctrl.Callsign,
		FrequencyHz: freqHz,
		Facility:    pos.FacilityID,
		Sector:      pos.SectorKey(),
		ConnectedAt: now,
		LastSeenAt:  now,
	}
	return sess, pos, "", "admitted"
}

// refuse reports an admission failure and drops the connection.
func (g *Gateway) refuse(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(outMessage{Event: EventError, Data: reason})
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
	logging.Info().Str("reason", reason).Msg("Connection refused")
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter (browser websocket clients cannot set headers).
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.URL.Query().Get("token")
}

// dispatch decodes one inbound frame and routes it to the registry. Every
// command is acked to the issuing session as a result frame echoing its seq.
func (g *Gateway) dispatch(c *client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.ack(c, 0, landline.Errorf("Malformed message."))
		return
	}
	if env.Event == "" {
		g.ack(c, env.Seq, landline.Errorf("Malformed message."))
		return
	}

	res := g.handle(c, env)
	g.ack(c, env.Seq, res)
}

func (g *Gateway) handle(c *client, env Envelope) landline.CommandResult {
	switch env.Event {
	case CmdInitiate:
		var p InitiatePayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		return g.registry.Initiate(c.id, p.To, p.Type, p.SignalData)

	case CmdAnswer:
		var p IDPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.Answer(c.id, p.ID)
		return landline.Success(p.ID)

	case CmdJoin:
		var p JoinPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.Join(c.id, p.Target, p.Initial)
		return landline.Success(p.Target)

	case CmdLeave:
		var p LeavePayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.Leave(c.id, p.Target)
		return landline.Success(p.Target)

	case CmdConvertShout:
		var p IDPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.ConvertShout(c.id, p.ID)
		return landline.Success(p.ID)

	case CmdTerminate:
		var p IDPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.Terminate(c.id, p.ID)
		return landline.Success(p.ID)

	case CmdDeny:
		var p DenyPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.Deny(c.id, p.Caller)
		return landline.Success(p.Caller)

	case CmdAddAudio:
		var p IDPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.SetAudio(c.id, p.ID, true)
		return landline.Success(p.ID)

	case CmdRemoveAudio:
		var p IDPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.SetAudio(c.id, p.ID, false)
		return landline.Success(p.ID)

	case CmdInitSignal:
		var p InitSignalPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.InitSignal(c.id, p.To, p.Room, p.Signal, p.Audio)
		return landline.Success(p.Room)

	case CmdReturnSignal:
		var p ReturnSignalPayload
		if err := g.decode(env.Data, &p); err != nil {
			return landline.Errorf("Invalid payload for %s.", env.Event)
		}
		g.registry.ReturnSignal(c.id, p.To, p.Signal)
		return landline.Success(p.To)

	default:
		return landline.Errorf("Unknown event %s.", env.Event)
	}
}

// decode unmarshals and validates a command payload.
func (g *Gateway) decode(raw json.RawMessage, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return err
	}
	return g.validate.Struct(into)
}

// ack emits the command result to the issuing session.
func (g *Gateway) ack(c *client, seq uint64, res landline.CommandResult) {
	c.enqueue(outMessage{Event: EventResult, Data: Result{
		Seq:     seq,
		Result:  res.Result,
		Message: res.Message,
	}})
}

// Send delivers a registry event to one session. Implements landline.Sender.
func (g *Gateway) Send(sessionID string, ev landline.Event) {
	g.mu.RLock()
	c, ok := g.clients[sessionID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(outMessage{Event: ev.Name, Data: ev.Data})
}

// Broadcast delivers a registry event to every connected session.
func (g *Gateway) Broadcast(ev landline.Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.clients {
		c.enqueue(outMessage{Event: ev.Name, Data: ev.Data})
	}
}

// CloseSession force-disconnects a session. Implements the presence sweep's
// ConnectionCloser; the close cascades into registry detach through the read
// pump exit.
func (g *Gateway) CloseSession(sessionID, reason string) {
	g.mu.RLock()
	c, ok := g.clients[sessionID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	logging.Info().Str("session_id", sessionID).Str("reason", reason).Msg("Evicting session")
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// unregister tears a client down after its read pump exits.
func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	if cur, ok := g.clients[c.id]; !ok || cur != c {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c.id)
	g.mu.Unlock()
	close(c.done)
	g.registry.Detach(c.id)
}
