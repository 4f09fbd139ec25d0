// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/shelfwise/shelfwise/internal/events"
)

// Rescorer refreshes a user's persisted scores. Implemented by
// recommend.Engine.
type Rescorer interface {
	RescoreUser(ctx context.Context, userID int64) error
}

// RescoreSubscriber yields rescore request messages. Implemented by
// events.Bus.
type RescoreSubscriber interface {
	SubscribeRescore(ctx context.Context) (<-chan *message.Message, error)
}

// RescoreConsumerService drains rescore events and refreshes the
// named user's scores. Messages are always acked: a failed rescore is
// logged and retried on the user's next interaction rather than
// redelivered in a loop.
type RescoreConsumerService struct {
	bus      RescoreSubscriber
	rescorer Rescorer
	logger   zerolog.Logger
}

// NewRescoreConsumerService creates the consumer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRescoreConsumerService(bus RescoreSubscriber, rescorer Rescorer, logger zerolog.Logger) *RescoreConsumerService {
	return &RescoreConsumerService{
		bus:      bus,
		rescorer: rescorer,
		logger:   logger.With().Str("component", "rescore_consumer").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RescoreConsumerService) Serve(ctx context.Context) error {
	msgs, err := s.bus.SubscribeRescore(ctx)
	if err != nil {
		return fmt.Errorf("subscribe rescore: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *RescoreConsumerService) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	event, err := events.UnmarshalRescore(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed rescore event")
		return
	}
	if err := s.rescorer.RescoreUser(ctx, event.UserID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", event.UserID).Msg("rescore failed")
		return
	}
	s.logger.Debug().Int64("user_id", event.UserID).Msg("rescored user")
}

// String implements fmt.Stringer for suture log messages.
func (s *RescoreConsumerService) String() string {
	return "rescore-consumer"
}
