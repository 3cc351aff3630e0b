package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"redis":  NewRedisRegistry(client, time.Hour),
	}
}

func TestRegistry_DedupesByUserAndSurvivesPartialLeave(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice1 := events.RoomMember{UserID: 1, UserName: "Alice", ConnectionID: "a1"}
			alice2 := events.RoomMember{UserID: 1, UserName: "Alice", ConnectionID: "a2"}
			bob := events.RoomMember{UserID: 2, UserName: "Bob", ConnectionID: "b1"}

			_, err := registry.Join(ctx, 10, alice1)
			require.NoError(t, err)
			_, err = registry.Join(ctx, 10, alice2)
			require.NoError(t, err)
			members, err := registry.Join(ctx, 10, bob)
			require.NoError(t, err)
			assert.Equal(t, []events.RoomMember{alice1, bob}, members)

			members, err = registry.Join(ctx, 10, alice1)
			require.NoError(t, err)
			assert.Equal(t, []events.RoomMember{alice1, bob}, members)

			members, removed, err := registry.Leave(ctx, 10, "a1")
			require.NoError(t, err)
			assert.True(t, removed)
			assert.Equal(t, []events.RoomMember{alice2, bob}, members)

			viewing, err := registry.IsViewing(ctx, 10, 1)
			require.NoError(t, err)
			assert.True(t, viewing)

			_, removed, err = registry.Leave(ctx, 10, "a1")
			require.NoError(t, err)
			assert.False(t, removed)

			_, _, err = registry.Leave(ctx, 10, "a2")
			require.NoError(t, err)
			viewing, err = registry.IsViewing(ctx, 10, 1)
			require.NoError(t, err)
			assert.False(t, viewing)

			other, err := registry.Members(ctx, 11)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestRedisRegistry_SetsRoomTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	registry := NewRedisRegistry(client, 30*time.Minute)
	_, err := registry.Join(context.Background(), 5, events.RoomMember{UserID: 1, ConnectionID: "c"})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, mr.TTL(roomKey(5)))
}

func TestRedisRegistry_TouchKeepsLongViewers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	registry := NewRedisRegistry(client, time.Minute)
	_, err := registry.Join(ctx, 5, events.RoomMember{UserID: 1, ConnectionID: "c"})
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	require.NoError(t, registry.Touch(ctx, 5))
	mr.FastForward(50 * time.Second)

	viewing, err := registry.IsViewing(ctx, 5, 1)
	require.NoError(t, err)
	assert.True(t, viewing)

	mr.FastForward(2 * time.Minute)
	viewing, err = registry.IsViewing(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, viewing)

	assert.NoError(t, NewMemoryRegistry().Touch(ctx, 5))
}
