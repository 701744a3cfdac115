package ws

import (
	"encoding/json"

	"realtime-scene/internal/scene"
)

// Every websocket frame is one JSON envelope: {"event": name, "data": payload}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EvJoinRoom     = "join_room"
	EvAddObject    = "add_object"
	EvMoveObject   = "move_object"
	EvRotateObject = "rotate_object"
	EvScaleObject  = "scale_object"
	EvDeleteObject = "delete_object"
	EvSelectObject = "select_object"
	EvDeselect     = "deselect_object"
	EvEditFace     = "edit_face"
	EvEditVertex   = "edit_vertex"
	EvGetRoomUsers = "get_room_users"
)

// Outbound event names. add_object, move_object, rotate_object, scale_object,
// edit_face and edit_vertex are reused in both directions.
const (
	EvInitObjects   = "init_objects"
	EvObjectDeleted = "object_deleted"
	EvSelected      = "object_selected"
	EvDeselected    = "object_deselected"
	EvSelectResult  = "select_result"
	EvRoomUsers     = "room_users"
	EvError         = "error"
)

type joinPayload struct {
	Room string `json:"room"`
}

type addPayload struct {
	Type      string    `json:"type"`
	Position  []float64 `json:"position"`
	Rotation  []float64 `json:"rotation,omitempty"`
	Scale     []float64 `json:"scale,omitempty"`
	Color     string    `json:"color,omitempty"`
	ModelName string    `json:"modelName,omitempty"`
}

type movePayload struct {
	ID       int64     `json:"id"`
	Position []float64 `json:"position"`
}

type rotatePayload struct {
	ID       int64     `json:"id"`
	Rotation []float64 `json:"rotation"`
}

type scalePayload struct {
	ID    int64     `json:"id"`
	Scale []float64 `json:"scale"`
}

type idPayload struct {
	ID int64 `json:"id"`
}

type selectedPayload struct {
	ID     int64  `json:"id"`
	Holder string `json:"holder"`
}

type selectResultPayload struct {
	ID      int64 `json:"id"`
	Granted bool  `json:"granted"`
}

type roomUsersPayload struct {
	Counts map[string]int `json:"counts"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// frame encodes one outbound envelope. Payload types here marshal without
// error, so the result is always a complete frame.
func frame(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}

// rawFrame re-wraps an inbound payload verbatim, for relay events whose
// shape the server does not interpret.
func rawFrame(event string, data json.RawMessage) []byte {
	b, _ := json.Marshal(Envelope{Event: event, Data: data})
	return b
}

func objectFrame(event string, o scene.Object) []byte {
	return frame(event, o)
}
