package realtime

import (
	"context"
	"sync"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

// Registry tracks which connections have joined which ticket room.
// Membership is keyed by connection; the member list a room shows is
// de-duplicated by user, keeping the entry of the user's earliest joined
// connection.
type Registry interface {
	// Join adds the connection to the room. Joining twice is a no-op.
	Join(ctx context.Context, ticketID int64, member events.RoomMember) ([]events.RoomMember, error)
	// Leave removes the connection from the room and reports whether it was there.
	Leave(ctx context.Context, ticketID int64, connectionID string) ([]events.RoomMember, bool, error)
	Members(ctx context.Context, ticketID int64) ([]events.RoomMember, error)
	// IsViewing reports whether any connection of the user is in the room.
	IsViewing(ctx context.Context, ticketID, userID int64) (bool, error)
	// Touch extends the room's expiry while connections are still in it.
	Touch(ctx context.Context, ticketID int64) error
}

// dedupeByUser keeps the first entry per user, preserving order.
func dedupeByUser(entries []events.RoomMember) []events.RoomMember {
	seen := make(map[int64]struct{}, len(entries))
	out := make([]events.RoomMember, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.UserID]; ok {
			continue
		}
		seen[entry.UserID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// MemoryRegistry is the single-process Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	rooms map[int64][]events.RoomMember
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rooms: make(map[int64][]events.RoomMember)}
}

func (r *MemoryRegistry) Join(_ context.Context, ticketID int64, member events.RoomMember) ([]events.RoomMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.rooms[ticketID]
	for _, entry := range entries {
		if entry.ConnectionID == member.ConnectionID {
			return dedupeByUser(entries), nil
		}
	}
	entries = append(entries, member)
	r.rooms[ticketID] = entries
	return dedupeByUser(entries), nil
}

func (r *MemoryRegistry) Leave(_ context.Context, ticketID int64, connectionID string) ([]events.RoomMember, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.rooms[ticketID]
	kept := entries[:0:0]
	removed := false
	for _, entry := range entries {
		if entry.ConnectionID == connectionID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == 0 {
		delete(r.rooms, ticketID)
	} else {
		r.rooms[ticketID] = kept
	}
	return dedupeByUser(kept), removed, nil
}

func (r *MemoryRegistry) Members(_ context.Context, ticketID int64) ([]events.RoomMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return dedupeByUser(r.rooms[ticketID]), nil
}

func (r *MemoryRegistry) IsViewing(_ context.Context, ticketID, userID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.rooms[ticketID] {
		if entry.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Touch is a no-op; in-memory rooms live as long as their connections.
func (r *MemoryRegistry) Touch(context.Context, int64) error {
	return nil
}
