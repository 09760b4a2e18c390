package events

import (
	"context"

	"cacaowallet/internal/logger"
	"cacaowallet/internal/metrics"

	"go.uber.org/zap"
)

const forwardBuffer = 256

// Forward relays bus events to publisher until ctx is done. Publish failures
// are logged and the event is skipped.
func Forward(ctx context.Context, bus *Bus, publisher Publisher) {
	events, cancel := bus.Subscribe(forwardBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			err := publisher.Publish(ctx, event)
			metrics.EventPublished(err == nil)
			if err != nil {
				logger.Error(err,
					zap.String("message", "Failed to forward settlement event"),
					zap.String("event_id", event.ID),
					zap.String("kind", string(event.Kind)),
				)
			}
		}
	}
}
