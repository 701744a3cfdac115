package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"realtime-scene/internal/app"
	"realtime-scene/internal/scene"
	"realtime-scene/pkg/metrics"
)

// Hub is the synchronization engine: it owns the room registry and the
// session directory, dispatches inbound events against room state, and
// computes the broadcast set for each. Events for the same room are
// serialized by the room mutex; different rooms proceed in parallel.
type Hub struct {
	log     *slog.Logger
	allowed map[string]bool // fixed room allowlist from config
	bus     *RedisBus       // nil when cross-instance fanout is disabled

	mu      sync.RWMutex
	rooms   map[string]*Room   // lazily created, never destroyed
	clients map[string]*Client // session directory: conn id → client
}

// NewHub sets up the hub from config; bus may be nil.
func NewHub(logger *slog.Logger, cfg app.Config, bus *RedisBus) *Hub {
	allowed := make(map[string]bool, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		allowed[r] = true
	}
	return &Hub{
		log:     logger,
		allowed: allowed,
		bus:     bus,
		rooms:   map[string]*Room{},
		clients: map[string]*Client{},
	}
}

// Run listens to the redis bus and forwards frames published by other
// instances to local room members.
func (h *Hub) Run(ctx context.Context) {
	if h.bus != nil {
		go h.bus.Subscribe(ctx, func(msg BusMessage) {
			h.mu.RLock()
			rm := h.rooms[msg.Room]
			h.mu.RUnlock()
			if rm != nil {
				rm.Broadcast(msg.Payload)
			}
		})
	}
	<-ctx.Done()
}

// ServeWS handles a new /ws connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewClient(conn)
	h.addClient(c)
	metrics.ConnectionsActive.Inc()
	h.log.Info("ws.connect", "conn", c.id)

	go c.WriteLoop(ctx)

	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}
		h.handle(ctx, c, payload)
	}

	h.disconnect(ctx, c)
	metrics.ConnectionsActive.Dec()
	h.log.Info("ws.disconnect", "conn", c.id)
	_ = c.Close()
}

// addClient registers a connection with no room yet.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// roomOf resolves the client's current room; nil while not joined.
func (h *Hub) roomOf(c *Client) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}

// handle decodes one inbound frame and dispatches it. Protocol errors are
// local: malformed frames earn the sender an error event, events from a
// connection with no room are ignored, and nothing here can fail the
// connection or touch another room.
func (h *Hub) handle(ctx context.Context, c *Client, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		c.send(frame(EvError, errorPayload{Message: "malformed frame"}))
		return
	}
	metrics.EventsTotal.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EvJoinRoom:
		h.handleJoin(ctx, c, env.Data)
	case EvAddObject:
		h.handleAdd(ctx, c, env.Data)
	case EvMoveObject:
		h.handleMove(ctx, c, env.Data)
	case EvRotateObject:
		h.handleRotate(ctx, c, env.Data)
	case EvScaleObject:
		h.handleScale(ctx, c, env.Data)
	case EvDeleteObject:
		h.handleDelete(ctx, c, env.Data)
	case EvSelectObject:
		h.handleSelect(ctx, c, env.Data)
	case EvDeselect:
		h.handleDeselect(ctx, c, env.Data)
	case EvEditFace:
		h.handleRelay(ctx, c, EvEditFace, env.Data)
	case EvEditVertex:
		h.handleRelay(ctx, c, EvEditVertex, env.Data)
	case EvGetRoomUsers:
		c.send(frame(EvRoomUsers, roomUsersPayload{Counts: h.counts()}))
	default:
		c.send(frame(EvError, errorPayload{Message: "unknown event: " + env.Event}))
	}
}

// handleJoin binds the session to a room, leaving (and releasing locks
// in) any previous room first. The sender gets the room's full object
// snapshot; everyone gets fresh presence counts.
func (h *Hub) handleJoin(ctx context.Context, c *Client, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || !h.allowed[p.Room] {
		c.send(frame(EvError, errorPayload{Message: "invalid room"}))
		return
	}

	h.mu.Lock()
	old := c.room
	rm := h.rooms[p.Room]
	if rm == nil {
		rm = NewRoom(p.Room)
		h.rooms[p.Room] = rm
	}
	c.room = rm
	h.mu.Unlock()

	if old != nil && old != rm {
		h.leaveRoom(ctx, c, old)
	}

	rm.mu.Lock()
	rm.members[c] = struct{}{}
	snap := rm.store.Snapshot()
	rm.mu.Unlock()

	c.send(frame(EvInitObjects, snap))
	h.log.Info("room.join", "conn", c.id, "room", rm.id)
	h.broadcastPresence()
}

// leaveRoom removes the client from rm and releases its selection locks
// there, broadcasting one deselection per released object.
func (h *Hub) leaveRoom(ctx context.Context, c *Client, rm *Room) {
	rm.mu.Lock()
	delete(rm.members, c)
	released := rm.locks.ReleaseAll(c.id)
	for _, id := range released {
		rm.sendAllLocked(frame(EvDeselected, idPayload{ID: id}))
	}
	rm.mu.Unlock()

	for _, id := range released {
		h.publish(ctx, rm.id, frame(EvDeselected, idPayload{ID: id}))
	}
}

func (h *Hub) handleAdd(ctx context.Context, c *Client, data json.RawMessage) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}
	var p addPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Type == "" || p.Position == nil {
		c.send(frame(EvError, errorPayload{Message: "invalid add_object payload"}))
		return
	}

	rm.mu.Lock()
	obj := rm.store.Create(scene.NewObject{
		Type:      p.Type,
		Position:  p.Position,
		Rotation:  p.Rotation,
		Scale:     p.Scale,
		Color:     p.Color,
		ModelName: p.ModelName,
	})
	b := objectFrame(EvAddObject, obj)
	rm.sendAllLocked(b)
	rm.mu.Unlock()

	h.publish(ctx, rm.id, b)
	h.log.Debug("object.add", "room", rm.id, "id", obj.ID, "type", obj.Type)
}

func (h *Hub) handleMove(ctx context.Context, c *Client, data json.RawMessage) {
	var p movePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Position == nil {
		return
	}
	h.applyPatch(ctx, c, EvMoveObject, p.ID, scene.Patch{Position: p.Position})
}

func (h *Hub) handleRotate(ctx context.Context, c *Client, data json.RawMessage) {
	var p rotatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Rotation == nil {
		return
	}
	h.applyPatch(ctx, c, EvRotateObject, p.ID, scene.Patch{Rotation: p.Rotation})
}

func (h *Hub) handleScale(ctx context.Context, c *Client, data json.RawMessage) {
	var p scalePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Scale == nil {
		return
	}
	h.applyPatch(ctx, c, EvScaleObject, p.ID, scene.Patch{Scale: p.Scale})
}

// applyPatch merges a single-attribute mutation and re-broadcasts the
// full merged record to everyone but the sender, which already applied
// the edit locally. Unknown ids are ignored without broadcast.
func (h *Hub) applyPatch(ctx context.Context, c *Client, event string, id int64, p scene.Patch) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	merged, ok := rm.store.Update(id, p)
	if !ok {
		rm.mu.Unlock()
		return
	}
	b := objectFrame(event, merged)
	rm.sendOthersLocked(c, b)
	rm.mu.Unlock()

	h.publish(ctx, rm.id, b)
}

func (h *Hub) handleDelete(ctx context.Context, c *Client, data json.RawMessage) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}
	var p idPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	rm.mu.Lock()
	if !rm.store.Delete(p.ID) {
		rm.mu.Unlock()
		return
	}
	rm.locks.ReleaseFor(p.ID)
	b := frame(EvObjectDeleted, idPayload{ID: p.ID})
	rm.sendAllLocked(b)
	rm.mu.Unlock()

	h.publish(ctx, rm.id, b)
	h.log.Debug("object.delete", "room", rm.id, "id", p.ID)
}

// handleSelect arbitrates the advisory selection lock. The sender always
// learns the outcome via select_result; the room hears object_selected
// only on a grant. A refusal leaves the current holder in place.
func (h *Hub) handleSelect(ctx context.Context, c *Client, data json.RawMessage) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}
	var p idPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	rm.mu.Lock()
	if _, ok := rm.store.Get(p.ID); !ok {
		rm.mu.Unlock()
		return
	}
	granted := rm.locks.TryAcquire(p.ID, c.id)
	var b []byte
	if granted {
		b = frame(EvSelected, selectedPayload{ID: p.ID, Holder: c.id})
		rm.sendAllLocked(b)
	}
	c.send(frame(EvSelectResult, selectResultPayload{ID: p.ID, Granted: granted}))
	rm.mu.Unlock()

	if b != nil {
		h.publish(ctx, rm.id, b)
	}
}

func (h *Hub) handleDeselect(ctx context.Context, c *Client, data json.RawMessage) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}
	var p idPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	rm.mu.Lock()
	if !rm.locks.Release(p.ID, c.id) {
		rm.mu.Unlock()
		return
	}
	b := frame(EvDeselected, idPayload{ID: p.ID})
	rm.sendAllLocked(b)
	rm.mu.Unlock()

	h.publish(ctx, rm.id, b)
}

// handleRelay forwards face/vertex edits to the rest of the room without
// touching the store: mesh deformation is not tracked server-side, so the
// payload passes through verbatim after an id sanity check.
func (h *Hub) handleRelay(ctx context.Context, c *Client, event string, data json.RawMessage) {
	rm := h.roomOf(c)
	if rm == nil {
		return
	}
	var p idPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	b := rawFrame(event, data)
	rm.mu.Lock()
	rm.sendOthersLocked(c, b)
	rm.mu.Unlock()

	h.publish(ctx, rm.id, b)
}

// disconnect tears the session down: membership is removed, every lock
// the connection held is released with a deselection broadcast, and
// presence counts are pushed to the remaining clients.
func (h *Hub) disconnect(ctx context.Context, c *Client) {
	h.mu.Lock()
	rm := c.room
	c.room = nil
	delete(h.clients, c.id)
	h.mu.Unlock()

	if rm != nil {
		h.leaveRoom(ctx, c, rm)
		h.broadcastPresence()
	}
}

// counts derives per-room connection counts from live membership. Every
// allowlisted room is reported, zeros included, so clients can render the
// full room list without special cases.
func (h *Hub) counts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.allowed))
	for id := range h.allowed {
		out[id] = 0
	}
	for id, rm := range h.rooms {
		out[id] = rm.Count()
	}
	return out
}

// broadcastPresence pushes room_users to every connected client,
// including those not yet in a room.
func (h *Hub) broadcastPresence() {
	b := frame(EvRoomUsers, roomUsersPayload{Counts: h.counts()})
	h.mu.RLock()
	for _, c := range h.clients {
		c.send(b)
	}
	h.mu.RUnlock()
}

// publish forwards a room-scoped frame to other instances via the bus.
func (h *Hub) publish(ctx context.Context, roomID string, b []byte) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, BusMessage{Room: roomID, Payload: b}); err != nil {
		h.log.Warn("bus.publish", "room", roomID, "err", err)
	}
}
