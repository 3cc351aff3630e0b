package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

// EventSubscriber streams events published by other instances.
type EventSubscriber interface {
	Run(ctx context.Context, deliver func(context.Context, events.Event)) error
}

// StartEventRelay consumes remote events in the background until ctx ends.
// The returned channel closes once the subscriber has stopped.
func StartEventRelay(ctx context.Context, subscriber EventSubscriber, deliver func(context.Context, events.Event), logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if subscriber == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		if err := subscriber.Run(ctx, deliver); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event relay stopped", zap.Error(err))
		}
	}()
	return done
}
