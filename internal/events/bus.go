// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package events carries landline lifecycle notifications from the registry
// to interested consumers over an in-process Watermill bus, with an optional
// forwarder mirroring them onto a NATS subject for external systems.
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/chiartcc/switchboard/internal/landline"
	"github.com/chiartcc/switchboard/internal/logging"
)

// TopicLifecycle is the bus topic for landline lifecycle events.
const TopicLifecycle = "landline.lifecycle"

// Lifecycle is one landline state transition.
type Lifecycle struct {
	Action   string             `json:"action"`
	Landline *landline.Landline `json:"landline"`
	At       time.Time          `json:"at"`
}

// Bus is the in-process publish/subscribe channel for lifecycle events.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus constructs the bus. The output buffer absorbs slow consumers without
// stalling the registry goroutine.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermillAdapter{},
		),
	}
}

// PublishLifecycle marshals and publishes a transition. Implements the
// registry's Publisher. Failures are logged and dropped; lifecycle fan-out is
// advisory and must never stall call routing.
func (b *Bus) PublishLifecycle(ctx context.Context, action string, call *landline.Landline) {
	payload, err := json.Marshal(Lifecycle{Action: action, Landline: call, At: time.Now().UTC()})
	if err != nil {
		logging.Err(err).Str("action", action).Msg("Failed to marshal lifecycle event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicLifecycle, msg); err != nil {
		logging.Err(err).Str("action", action).Msg("Failed to publish lifecycle event")
	}
}

// Subscribe returns a channel of lifecycle messages. Consumers must Ack each
// message.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicLifecycle)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillAdapter routes Watermill's internal logging through zerolog.
type watermillAdapter struct {
	fields watermill.LogFields
}

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	logging.Err(err).Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a watermillAdapter) Info(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	logging.Trace().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillAdapter{fields: a.fields.Add(fields)}
}
