package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

type Client struct {
	id  string
	ws  *websocket.Conn
	out chan []byte

	// room is the client's current room, nil while not joined.
	// Guarded by the hub mutex (session directory).
	room *Room
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewClient wraps an accepted connection with a fresh connection id.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:  uuid.NewString(),
		ws:  conn,
		out: make(chan []byte, 256),
	}
}

// ID is the connection id: opaque, unique for the connection's lifetime.
func (c *Client) ID() string { return c.id }

// send queues an outbound frame without blocking; a slow or gone peer
// drops frames rather than stalling the room.
func (c *Client) send(b []byte) {
	select {
	case c.out <- b:
	default:
	}
}

// Read blocks until it receives a text/binary message.
// Returns false if the connection is closed.
func (c *Client) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop sends outbound frames + periodic pings.
// Exits when ctx is cancelled.
func (c *Client) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the WS connection normally
func (c *Client) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
