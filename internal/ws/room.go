package ws

import (
	"sync"

	"realtime-scene/internal/scene"
)

// Room is the isolation boundary: one object store, one id counter, one
// lock table, one member set. The single mutex serializes every event
// touching the room, so no handler observes a half-applied mutation.
// Rooms are created lazily on first join and live for the process
// lifetime; the allowed set is small and fixed.
type Room struct {
	id string

	mu      sync.Mutex
	store   *scene.Store
	locks   *scene.LockTable
	members map[*Client]struct{}
}

// NewRoom creates an empty room
func NewRoom(id string) *Room {
	return &Room{
		id:      id,
		store:   scene.NewStore(),
		locks:   scene.NewLockTable(),
		members: map[*Client]struct{}{},
	}
}

// Count returns the number of member connections.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast sends a frame to every member. Used for bus-forwarded frames
// arriving outside a handler; handlers already holding the lock use
// sendAllLocked instead.
func (r *Room) Broadcast(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendAllLocked(b)
}

// sendAllLocked fans a frame out to every member. Caller holds r.mu.
func (r *Room) sendAllLocked(b []byte) {
	for c := range r.members {
		c.send(b)
	}
}

// sendOthersLocked fans a frame out to every member except the sender,
// which already holds the authoritative local value. Caller holds r.mu.
func (r *Room) sendOthersLocked(sender *Client, b []byte) {
	for c := range r.members {
		if c == sender {
			continue
		}
		c.send(b)
	}
}
