package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"log/slog"

	"realtime-scene/internal/app"
)

// BusMessage is one room-scoped frame relayed between instances. Origin
// identifies the publishing instance; the subscriber drops its own
// publications since redis pub/sub echoes to every subscriber and local
// members already received the frame directly.
type BusMessage struct {
	Origin  string `json:"origin"`
	Room    string `json:"room"`
	Payload []byte `json:"payload"`
}

type RedisBus struct {
	rdb      *redis.Client
	log      *slog.Logger
	instance string
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log, instance: uuid.NewString()}, nil
}

// Publish sends a frame to the redis channel for a room
func (b *RedisBus) Publish(ctx context.Context, m BusMessage) error {
	m.Origin = b.instance
	raw, _ := json.Marshal(m)
	return b.rdb.Publish(ctx, channel(m.Room), raw).Err()
}

// Subscribe listens to all room channels and invokes fn for each frame
// published by another instance.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(BusMessage)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg := <-ch:
			var bm BusMessage
			_ = json.Unmarshal([]byte(msg.Payload), &bm)
			if bm.Room != "" && bm.Origin != b.instance {
				fn(bm)
			}
		}
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub
func channel(roomID string) string { return "room:" + roomID }
