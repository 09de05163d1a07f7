// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

package events

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chiartcc/switchboard/internal/config"
	"github.com/chiartcc/switchboard/internal/logging"
)

// Forwarder mirrors lifecycle events from the in-process bus onto a NATS
// subject. It runs as a supervised service and reconnects through suture's
// restart backoff when the broker is unreachable.
type Forwarder struct {
	bus     *Bus
	url     string
	subject string
}

// NewForwarder builds a forwarder from the NATS section of the configuration.
func NewForwarder(cfg config.NATSConfig, bus *Bus) *Forwarder {
	return &Forwarder{bus: bus, url: cfg.URL, subject: cfg.Subject}
}

// Serve connects to the broker and pumps lifecycle messages until the context
// is cancelled. Implements suture.Service.
func (f *Forwarder) Serve(ctx context.Context) error {
	conn, err := nats.Connect(f.url,
		nats.Name("switchboard"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Err(err).Msg("NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	msgs, err := f.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	logging.Info().Str("subject", f.subject).Msg("Lifecycle forwarder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("lifecycle bus closed")
			}
			if err := conn.Publish(f.subject, msg.Payload); err != nil {
				logging.Err(err).Msg("Failed to forward lifecycle event")
			}
			msg.Ack()
		}
	}
}

func (f *Forwarder) String() string {
	return "nats-forwarder"
}
