// Package relay forwards published alerts to external message systems.
package relay

import (
	"context"
	"encoding/json"
	"github.com/rs/zerolog"
	"video-sentinel/entities"
	"video-sentinel/pkg/broker"
)

// Sink delivers one serialized alert. Key is the event's video id.
type Sink interface {
	Name() string
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Run subscribes to b and forwards every alert to sink until ctx is done.
// A failing send is logged and the alert is skipped.
func Run(ctx context.Context, b *broker.Broker, sink Sink) {
	mailbox := b.Subscribe()
	defer b.Unsubscribe(mailbox)

	logger := zerolog.Ctx(ctx).With().Str("relay", sink.Name()).Logger()
	logger.Info().Msg("alert relay started")

	for {
		select {
		case event, ok := <-mailbox.Events():
			if !ok {
				return
			}
			if err := forward(ctx, sink, event); err != nil {
				logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("failed to relay alert")
			}
		case <-ctx.Done():
			logger.Info().Uint64("dropped", mailbox.Dropped()).Msg("alert relay stopped")
			return
		}
	}
}

func forward(ctx context.Context, sink Sink, event entities.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return sink.Send(ctx, event.VideoID.String(), payload)
}
