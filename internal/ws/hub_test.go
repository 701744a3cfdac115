package ws

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"log/slog"

	"realtime-scene/internal/app"
	"realtime-scene/internal/scene"
)

func testHub() *Hub {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := app.Config{Rooms: []string{"1", "2", "3"}}
	return NewHub(logger, cfg, nil)
}

// testClient builds a registered client with no websocket behind it; the
// hub only touches the out channel.
func testClient(h *Hub, id string) *Client {
	c := &Client{id: id, out: make(chan []byte, 64)}
	h.addClient(c)
	return c
}

func send(t *testing.T, h *Hub, c *Client, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	h.handle(context.Background(), c, b)
}

// recv pops the next queued frame and asserts its event name.
func recv(t *testing.T, c *Client, want string) json.RawMessage {
	t.Helper()
	select {
	case b := <-c.out:
		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("bad frame %q: %v", b, err)
		}
		if env.Event != want {
			t.Fatalf("got event %q, want %q", env.Event, want)
		}
		return env.Data
	default:
		t.Fatalf("no frame queued, want %q", want)
		return nil
	}
}

func assertQuiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.out:
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

func join(t *testing.T, h *Hub, c *Client, room string) {
	t.Helper()
	send(t, h, c, EvJoinRoom, joinPayload{Room: room})
	recv(t, c, EvInitObjects)
	recv(t, c, EvRoomUsers)
}

func TestJoin_InvalidRoom(t *testing.T) {
	h := testHub()
	c := testClient(h, "A")

	send(t, h, c, EvJoinRoom, joinPayload{Room: "99"})
	recv(t, c, EvError)
	assertQuiet(t, c)

	// Rejected join must not create state or bind the session.
	if len(h.rooms) != 0 {
		t.Errorf("invalid join created %d rooms", len(h.rooms))
	}
	if h.roomOf(c) != nil {
		t.Error("invalid join bound the session to a room")
	}
}

func TestJoin_SnapshotAndPresence(t *testing.T) {
	h := testHub()
	c := testClient(h, "A")

	send(t, h, c, EvJoinRoom, joinPayload{Room: "1"})

	var snap []scene.Object
	if err := json.Unmarshal(recv(t, c, EvInitObjects), &snap); err != nil {
		t.Fatalf("init_objects payload: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("empty room snapshot had %d objects", len(snap))
	}

	var users roomUsersPayload
	if err := json.Unmarshal(recv(t, c, EvRoomUsers), &users); err != nil {
		t.Fatalf("room_users payload: %v", err)
	}
	if users.Counts["1"] != 1 || users.Counts["2"] != 0 || users.Counts["3"] != 0 {
		t.Errorf("unexpected counts: %v", users.Counts)
	}
}

func TestNotInRoom_EventsIgnored(t *testing.T) {
	h := testHub()
	c := testClient(h, "A")

	send(t, h, c, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	send(t, h, c, EvMoveObject, movePayload{ID: 1, Position: []float64{1, 1, 1}})
	send(t, h, c, EvSelectObject, idPayload{ID: 1})
	assertQuiet(t, c)
}

func TestRoomIsolation(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "2")
	drain(a) // presence from b's join

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	recv(t, a, EvAddObject)
	assertQuiet(t, b)

	// Room 2's snapshot must not contain room 1's object.
	c := testClient(h, "C")
	send(t, h, c, EvJoinRoom, joinPayload{Room: "2"})
	var snap []scene.Object
	_ = json.Unmarshal(recv(t, c, EvInitObjects), &snap)
	if len(snap) != 0 {
		t.Errorf("room 2 snapshot leaked %d objects from room 1", len(snap))
	}
}

func TestIDsIndependentPerRoom(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "2")
	drain(a)

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	send(t, h, b, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})

	var oa, ob scene.Object
	_ = json.Unmarshal(recv(t, a, EvAddObject), &oa)
	_ = json.Unmarshal(recv(t, b, EvAddObject), &ob)
	if oa.ID != 1 || ob.ID != 1 {
		t.Errorf("per-room counters not independent: got %d and %d", oa.ID, ob.ID)
	}
}

func TestMotion_MergesAndExcludesSender(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "1")
	drain(a)

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	recv(t, a, EvAddObject)
	recv(t, b, EvAddObject)

	send(t, h, a, EvRotateObject, rotatePayload{ID: 1, Rotation: []float64{0, 45, 0}})
	recv(t, b, EvRotateObject)
	assertQuiet(t, a) // motion excludes the sender

	send(t, h, a, EvMoveObject, movePayload{ID: 1, Position: []float64{1, 2, 3}})
	var merged scene.Object
	if err := json.Unmarshal(recv(t, b, EvMoveObject), &merged); err != nil {
		t.Fatalf("move_object payload: %v", err)
	}
	if merged.Position[0] != 1 || merged.Position[2] != 3 {
		t.Errorf("new position not in broadcast: %v", merged.Position)
	}
	if merged.Rotation == nil || merged.Rotation[1] != 45 {
		t.Errorf("partial update dropped rotation: %v", merged.Rotation)
	}
}

func TestMotion_UnknownObjectNoBroadcast(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "1")
	drain(a)

	send(t, h, a, EvMoveObject, movePayload{ID: 42, Position: []float64{1, 1, 1}})
	assertQuiet(t, a)
	assertQuiet(t, b)
}

func TestDelete_IncludesSenderAndReleasesLock(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "1")
	drain(a)

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	drain(a)
	drain(b)

	send(t, h, b, EvSelectObject, idPayload{ID: 1})
	drain(a)
	drain(b)

	send(t, h, a, EvDeleteObject, idPayload{ID: 1})
	recv(t, a, EvObjectDeleted) // delete includes the sender
	recv(t, b, EvObjectDeleted)

	if _, held := h.rooms["1"].locks.Holder(1); held {
		t.Error("delete left the selection lock in place")
	}
}

func TestEditRelay_ExcludesSenderAndPassesPayloadThrough(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "1")
	drain(a)

	payload := map[string]any{
		"id":             7,
		"face_indices":   []int{0, 1, 2},
		"delta":          []float64{0, 0.5, 0},
		"childMeshIndex": 2,
	}
	send(t, h, a, EvEditFace, payload)

	data := recv(t, b, EvEditFace)
	var got map[string]any
	_ = json.Unmarshal(data, &got)
	if got["childMeshIndex"] != float64(2) {
		t.Errorf("relay altered payload: %v", got)
	}
	assertQuiet(t, a)

	send(t, h, b, EvEditVertex, map[string]any{
		"id": 7, "vertex_index": 3, "position": []float64{1, 0, 0},
	})
	recv(t, a, EvEditVertex)
	assertQuiet(t, b)
}

func TestSelect_UnknownObjectIgnored(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	join(t, h, a, "1")

	send(t, h, a, EvSelectObject, idPayload{ID: 99})
	assertQuiet(t, a)
}

func TestRoomSwitch_ReleasesLocksInOldRoom(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	b := testClient(h, "B")
	join(t, h, a, "1")
	join(t, h, b, "1")
	drain(a)

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	send(t, h, a, EvSelectObject, idPayload{ID: 1})
	drain(a)
	drain(b)

	// A switches to room 2: room 1 must see the deselection.
	send(t, h, a, EvJoinRoom, joinPayload{Room: "2"})
	recv(t, b, EvDeselected)
	recv(t, b, EvRoomUsers)

	if h.roomOf(a).id != "2" {
		t.Errorf("session bound to %q, want room 2", h.roomOf(a).id)
	}
	if h.rooms["1"].Count() != 1 {
		t.Errorf("old room still counts the switched connection")
	}
}

func TestGetRoomUsers(t *testing.T) {
	h := testHub()
	a := testClient(h, "A")
	join(t, h, a, "1")

	send(t, h, a, EvGetRoomUsers, struct{}{})
	var users roomUsersPayload
	_ = json.Unmarshal(recv(t, a, EvRoomUsers), &users)
	if users.Counts["1"] != 1 {
		t.Errorf("unexpected counts: %v", users.Counts)
	}
}

// TestEndToEnd walks the whole protocol: join, add, second join with
// snapshot, lock arbitration, and lock release on disconnect.
func TestEndToEnd(t *testing.T) {
	h := testHub()
	ctx := context.Background()

	a := testClient(h, "A")
	send(t, h, a, EvJoinRoom, joinPayload{Room: "1"})
	var snap []scene.Object
	_ = json.Unmarshal(recv(t, a, EvInitObjects), &snap)
	if len(snap) != 0 {
		t.Fatalf("fresh room snapshot not empty: %v", snap)
	}
	recv(t, a, EvRoomUsers)

	send(t, h, a, EvAddObject, addPayload{Type: "cube", Position: []float64{0, 0, 0}})
	var created scene.Object
	_ = json.Unmarshal(recv(t, a, EvAddObject), &created)
	if created.ID != 1 || created.Type != "cube" {
		t.Fatalf("unexpected created object: %+v", created)
	}

	b := testClient(h, "B")
	send(t, h, b, EvJoinRoom, joinPayload{Room: "1"})
	_ = json.Unmarshal(recv(t, b, EvInitObjects), &snap)
	if len(snap) != 1 || snap[0].ID != 1 {
		t.Fatalf("late joiner snapshot wrong: %v", snap)
	}
	recv(t, b, EvRoomUsers)
	recv(t, a, EvRoomUsers)

	// B takes the selection lock.
	send(t, h, b, EvSelectObject, idPayload{ID: 1})
	var sel selectedPayload
	_ = json.Unmarshal(recv(t, a, EvSelected), &sel)
	if sel.Holder != "B" {
		t.Fatalf("holder = %q, want B", sel.Holder)
	}
	recv(t, b, EvSelected)
	var res selectResultPayload
	_ = json.Unmarshal(recv(t, b, EvSelectResult), &res)
	if !res.Granted {
		t.Fatal("first select not granted")
	}

	// A's competing select is refused; B stays holder.
	send(t, h, a, EvSelectObject, idPayload{ID: 1})
	_ = json.Unmarshal(recv(t, a, EvSelectResult), &res)
	if res.Granted {
		t.Fatal("competing select granted")
	}
	if holder, _ := h.rooms["1"].locks.Holder(1); holder != "B" {
		t.Fatalf("holder changed to %q after refused select", holder)
	}

	// B disconnects: the lock is released and the room is told.
	h.disconnect(ctx, b)
	var desel idPayload
	_ = json.Unmarshal(recv(t, a, EvDeselected), &desel)
	if desel.ID != 1 {
		t.Fatalf("deselected id = %d, want 1", desel.ID)
	}
	var users roomUsersPayload
	_ = json.Unmarshal(recv(t, a, EvRoomUsers), &users)
	if users.Counts["1"] != 1 {
		t.Fatalf("counts after disconnect: %v", users.Counts)
	}

	// The object is selectable again.
	send(t, h, a, EvSelectObject, idPayload{ID: 1})
	recv(t, a, EvSelected)
	_ = json.Unmarshal(recv(t, a, EvSelectResult), &res)
	if !res.Granted {
		t.Fatal("object not selectable after holder disconnect")
	}
}

func TestMalformedFrame(t *testing.T) {
	h := testHub()
	c := testClient(h, "A")

	h.handle(context.Background(), c, []byte("not json"))
	recv(t, c, EvError)

	h.handle(context.Background(), c, []byte(`{"event":"no_such_event"}`))
	recv(t, c, EvError)
}
