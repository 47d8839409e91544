package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMirrorPrefix prefixes mirrored heartbeat keys.
const DefaultMirrorPrefix = "scoreclock:heartbeat:"

// RedisMirror copies each device's latest heartbeat to a Redis key that
// expires after the staleness threshold. A present key means the device
// is alive.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror. ttl is normally the missing-device
// threshold.
func NewRedisMirror(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) key(deviceID string) string {
	return m.prefix + deviceID
}

// Mirror writes rec under the device's key.
func (m *RedisMirror) Mirror(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	if err := m.client.Set(ctx, m.key(rec.DeviceID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror heartbeat %s: %w", rec.DeviceID, err)
	}
	return nil
}

// Get returns the mirrored heartbeat, if it has not expired.
func (m *RedisMirror) Get(ctx context.Context, deviceID string) (Record, bool, error) {
	data, err := m.client.Get(ctx, m.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get heartbeat %s: %w", deviceID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode heartbeat %s: %w", deviceID, err)
	}
	return rec, true, nil
}

// Close closes the Redis client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
