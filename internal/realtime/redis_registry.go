package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

const (
	roomKeyPrefix = "helpdesk:room:"
	roomSeqKey    = "helpdesk:room:seq"
)

type redisMember struct {
	events.RoomMember
	Seq int64 `json:"seq"`
}

// RedisRegistry keeps room membership in one Redis hash per room so every
// instance sees the same presence. Entries of a crashed instance linger until
// the room key expires.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry creates a registry. A zero ttl keeps room keys forever.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func roomKey(ticketID int64) string {
	return fmt.Sprintf("%s%d", roomKeyPrefix, ticketID)
}

func (r *RedisRegistry) Join(ctx context.Context, ticketID int64, member events.RoomMember) ([]events.RoomMember, error) {
	seq, err := r.client.Incr(ctx, roomSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("join room %d: %w", ticketID, err)
	}
	encoded, err := json.Marshal(redisMember{RoomMember: member, Seq: seq})
	if err != nil {
		return nil, err
	}

	key := roomKey(ticketID)
	// HSETNX keeps the original entry, and its join order, on a repeated join.
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, member.ConnectionID, encoded)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("join room %d: %w", ticketID, err)
	}
	return r.Members(ctx, ticketID)
}

func (r *RedisRegistry) Leave(ctx context.Context, ticketID int64, connectionID string) ([]events.RoomMember, bool, error) {
	removed, err := r.client.HDel(ctx, roomKey(ticketID), connectionID).Result()
	if err != nil {
		return nil, false, fmt.Errorf("leave room %d: %w", ticketID, err)
	}
	members, err := r.Members(ctx, ticketID)
	if err != nil {
		return nil, removed > 0, err
	}
	return members, removed > 0, nil
}

func (r *RedisRegistry) Members(ctx context.Context, ticketID int64) ([]events.RoomMember, error) {
	entries, err := r.entries(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	members := make([]events.RoomMember, 0, len(entries))
	for _, entry := range entries {
		members = append(members, entry.RoomMember)
	}
	return dedupeByUser(members), nil
}

func (r *RedisRegistry) IsViewing(ctx context.Context, ticketID, userID int64) (bool, error) {
	entries, err := r.entries(ctx, ticketID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Touch resets the room key's TTL. Live sessions call it on every ping so
// long-lived viewers do not expire.
func (r *RedisRegistry) Touch(ctx context.Context, ticketID int64) error {
	if r.ttl <= 0 {
		return nil
	}
	if err := r.client.Expire(ctx, roomKey(ticketID), r.ttl).Err(); err != nil {
		return fmt.Errorf("touch room %d: %w", ticketID, err)
	}
	return nil
}

func (r *RedisRegistry) entries(ctx context.Context, ticketID int64) ([]redisMember, error) {
	raw, err := r.client.HGetAll(ctx, roomKey(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read room %d: %w", ticketID, err)
	}
	entries := make([]redisMember, 0, len(raw))
	for _, value := range raw {
		var entry redisMember
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Seq != entries[j].Seq {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].ConnectionID < entries[j].ConnectionID
	})
	return entries, nil
}
