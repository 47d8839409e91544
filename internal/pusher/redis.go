package pusher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/store"
)

// DefaultRedisStream is the stream events are added to.
const DefaultRedisStream = "scoreclock.events"

// RedisStreamDestination adds each event to a Redis stream.
//
// Entries carry the global event_id so consumers can deduplicate the
// at-least-once redeliveries.
type RedisStreamDestination struct {
	name     string
	client   redis.UniversalClient
	stream   string
	deviceID string
	maxLen   int64
}

// NewRedisStreamDestination creates a destination. maxLen > 0 caps the
// stream approximately.
func NewRedisStreamDestination(name string, client redis.UniversalClient, stream, deviceID string, maxLen int64) *RedisStreamDestination {
	if stream == "" {
		stream = DefaultRedisStream
	}
	if name == "" {
		name = "redis:" + stream
	}
	return &RedisStreamDestination{name: name, client: client, stream: stream, deviceID: deviceID, maxLen: maxLen}
}

// Name implements Destination.
func (d *RedisStreamDestination) Name() string { return d.name }

// Deliver XADDs one entry.
func (d *RedisStreamDestination) Deliver(ctx context.Context, ev store.Event) error {
	data, err := json.Marshal(protocol.FromStore(d.deviceID, ev))
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"event_id":  protocol.EventID(d.deviceID, ev.ID),
			"device_id": d.deviceID,
			"game_id":   ev.GameID,
			"type":      ev.Type,
			"data":      string(data),
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	if _, err := d.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", d.stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (d *RedisStreamDestination) Close() error {
	return d.client.Close()
}
