// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package events carries the engine's internal pub/sub: interaction
// ingestion publishes rescore requests, the rescore consumer service
// drains them. The bus is an in-process Watermill GoChannel, so an
// undelivered event is lost on shutdown — acceptable because scores are
// recomputable from durable state at any time.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/metrics"
)

// TopicRescore carries RescoreEvent payloads.
const TopicRescore = "rescore.requested"

// RescoreEvent asks the consumer to refresh one user's scores.
type RescoreEvent struct {
	UserID      int64     `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Config contains bus tuning.
type Config struct {
	// Buffer is the per-subscriber channel buffer. Default: 256.
	Buffer int64 `json:"buffer"`
}

// Bus is the in-process event bus.
type Bus struct {
	channel *gochannel.GoChannel
}

// NewBus creates the bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(cfg Config, logger zerolog.Logger) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &Bus{
		channel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: cfg.Buffer},
			newLoggerAdapter(logger.With().Str("component", "events").Logger()),
		),
	}
}

// PublishRescore publishes a rescore request for one user.
func (b *Bus) PublishRescore(userID int64) error {
	payload, err := json.Marshal(RescoreEvent{
		UserID:      userID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal rescore event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.channel.Publish(TopicRescore, msg); err != nil {
		return fmt.Errorf("publish rescore event: %w", err)
	}

	metrics.RescoreEventsPublished.Inc()
	return nil
}

// SubscribeRescore subscribes to rescore requests. The channel closes
// when ctx is cancelled or the bus closes.
func (b *Bus) SubscribeRescore(ctx context.Context) (<-chan *message.Message, error) {
	return b.channel.Subscribe(ctx, TopicRescore)
}

// Close shuts the bus down; in-flight messages are dropped.
func (b *Bus) Close() error {
	return b.channel.Close()
}

// UnmarshalRescore decodes a rescore message payload.
func UnmarshalRescore(msg *message.Message) (RescoreEvent, error) {
	var event RescoreEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return RescoreEvent{}, fmt.Errorf("unmarshal rescore event: %w", err)
	}
	return event, nil
}

// loggerAdapter bridges Watermill's logging interface onto zerolog.
type loggerAdapter struct {
	logger zerolog.Logger
}

//nolint:gocritic // hugeParam: zerolog.Logger passed by value
func newLoggerAdapter(logger zerolog.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{logger: logger}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), msg, fields)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), msg, fields)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), msg, fields)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), msg, fields)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &loggerAdapter{logger: ctx.Logger()}
}

func (a *loggerAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
