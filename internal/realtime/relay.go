package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

const relayChannel = "helpdesk:realtime:events"

// relayEnvelope is events.Event with the payload kept as raw JSON.
type relayEnvelope struct {
	ID          string           `json:"id"`
	Name        events.EventName `json:"name"`
	CompanyID   int64            `json:"companyId"`
	Room        int64            `json:"room,omitempty"`
	ExcludeConn string           `json:"excludeConn,omitempty"`
	Payload     json.RawMessage  `json:"payload"`
	Timestamp   time.Time        `json:"timestamp"`
	InstanceID  string           `json:"instanceId"`
}

// RedisRelay mirrors every locally published event on a Redis channel and
// delivers events published by other instances to the local hub.
type RedisRelay struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
}

// NewRedisRelay creates a relay with a fresh instance id.
func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:     client,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies this process on the channel.
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Publish implements Relay.
func (r *RedisRelay) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}
	data, err := json.Marshal(relayEnvelope{
		ID:          event.ID,
		Name:        event.Name,
		CompanyID:   event.CompanyID,
		Room:        event.Room,
		ExcludeConn: event.ExcludeConn,
		Payload:     payload,
		Timestamp:   event.Timestamp,
		InstanceID:  r.instanceID,
	})
	if err != nil {
		return fmt.Errorf("marshal relay event: %w", err)
	}
	if err := r.client.Publish(ctx, relayChannel, data).Err(); err != nil {
		return fmt.Errorf("publish relay event: %w", err)
	}
	return nil
}

// Run subscribes until ctx is cancelled, reconnecting with exponential
// backoff. Events from this instance are skipped.
func (r *RedisRelay) Run(ctx context.Context, deliver func(context.Context, events.Event)) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		err := r.subscribe(ctx, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Warn("relay subscription disconnected, reconnecting",
			zap.String("channel", relayChannel),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (r *RedisRelay) subscribe(ctx context.Context, deliver func(context.Context, events.Event)) error {
	pubsub := r.client.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", relayChannel, err)
	}
	r.logger.Info("subscribed to relay channel", zap.String("channel", relayChannel), zap.String("instance_id", r.instanceID))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var envelope relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				r.logger.Warn("malformed relay event", zap.Error(err))
				continue
			}
			if envelope.InstanceID == r.instanceID {
				continue
			}
			deliver(ctx, events.Event{
				ID:          envelope.ID,
				Name:        envelope.Name,
				CompanyID:   envelope.CompanyID,
				Room:        envelope.Room,
				ExcludeConn: envelope.ExcludeConn,
				Payload:     envelope.Payload,
				Timestamp:   envelope.Timestamp,
				InstanceID:  envelope.InstanceID,
			})
		}
	}
}
