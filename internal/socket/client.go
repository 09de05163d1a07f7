// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package socket

import (
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chiartcc/switchboard/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // signaling payloads stay well under this
)

// outMessage is one outbound wire frame.
type outMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// client is the middleman between one websocket connection and the gateway.
// Its id is the session id assigned at admission.
type client struct {
	id   string
	gw   *Gateway
	conn *websocket.Conn

	// send is never closed; done signals the write pump to stop, so a
	// delivery racing a disconnect can never hit a closed channel.
	send chan outMessage
	done chan struct{}

	// limiter caps inbound message rate per connection.
	limiter *rate.Limiter
}

func newClient(gw *Gateway, conn *websocket.Conn, sessionID string, msgRate float64, burst int) *client {
	return &client{
		id:      sessionID,
		gw:      gw,
		conn:    conn,
		send:    make(chan outMessage, 256),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(msgRate), burst),
	}
}

// start begins the read and write pumps.
func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// enqueue hands an outbound frame to the write pump. Frames are dropped when
// the client cannot keep up or is shutting down; the write pump's deadline
// handles dead peers.
func (c *client) enqueue(msg outMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		logging.Warn().
			Str("session_id", c.id).
			Str("event", msg.Event).
			Msg("Send buffer full, dropping event")
	}
}

// readPump pumps inbound frames from the connection into the gateway
// dispatcher until the connection dies.
func (c *client) readPump() {
	defer func() {
		c.gw.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Err(err).Str("session_id", c.id).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Err(err).Str("session_id", c.id).Msg("Unexpected websocket close")
			}
			return
		}
		if !c.limiter.Allow() {
			logging.Warn().Str("session_id", c.id).Msg("Inbound message rate exceeded, dropping frame")
			continue
		}
		c.gw.dispatch(c, raw)
	}
}

// writePump pumps outbound frames to the connection and keeps the peer alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Err(err).Str("session_id", c.id).Msg("Failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Err(err).Str("session_id", c.id).Msg("Failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
