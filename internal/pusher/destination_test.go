package pusher

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/store"
)

func sampleEvent(id int64, gameID string) store.Event {
	return store.Event{
		ID:        id,
		Type:      "GOAL_HOME",
		GameID:    gameID,
		Payload:   payload.New(payload.P("goal_id", payload.String("ab12cd34")), payload.P("value", payload.Int(1))),
		CreatedAt: 1_700_000_000,
	}
}

func TestFileDestination_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	d := NewFileDestination("", path)
	assert.Equal(t, path, d.Name())

	ctx := context.Background()
	require.NoError(t, d.Deliver(ctx, sampleEvent(1, "g")))
	require.NoError(t, d.Deliver(ctx, store.Event{ID: 2, Type: "SHOT_AWAY", CreatedAt: 5}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"event_id":1,"event_type":"GOAL_HOME","game_id":"g","event_payload":{"goal_id":"ab12cd34","value":1},"event_timestamp":1700000000}`, lines[0])
	assert.JSONEq(t, `{"event_id":2,"event_type":"SHOT_AWAY","event_payload":{},"event_timestamp":5}`, lines[1])
}

func TestFileDestination_UnwritablePath(t *testing.T) {
	d := NewFileDestination("file", filepath.Join(t.TempDir(), "missing", "events.log"))
	assert.Error(t, d.Deliver(context.Background(), sampleEvent(1, "g")))
}

func TestCloudDestination(t *testing.T) {
	var (
		gotPath string
		gotReq  protocol.SubmitRequest
		acked   int64
		status  = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(protocol.SubmitResponse{AckedThrough: acked})
	}))
	defer srv.Close()

	d := NewCloudDestination("", protocol.NewClient(srv.URL, time.Second), "rink-a", "sess-1")
	assert.Equal(t, "cloud:"+srv.URL, d.Name())
	ctx := context.Background()

	acked = 7
	require.NoError(t, d.Deliver(ctx, sampleEvent(7, "game-9")))
	assert.Equal(t, "/v1/games/game-9/events", gotPath)
	assert.Equal(t, "rink-a", gotReq.DeviceID)
	assert.Equal(t, "sess-1", gotReq.SessionID)
	require.Len(t, gotReq.Events, 1)
	assert.Equal(t, "rink-a-7", gotReq.Events[0].EventID)

	acked = 6
	err := d.Deliver(ctx, sampleEvent(7, "game-9"))
	assert.ErrorContains(t, err, "not acknowledged")

	status = http.StatusInternalServerError
	acked = 7
	assert.Error(t, d.Deliver(ctx, sampleEvent(7, "game-9")))
}

func TestCloudDestination_SkipsClockModeEvents(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := NewCloudDestination("cloud", protocol.NewClient(srv.URL, time.Second), "rink-a", "s")
	require.NoError(t, d.Deliver(context.Background(), sampleEvent(1, "")))
	assert.False(t, called)
}

func TestRedisStreamDestination(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := NewRedisStreamDestination("", client, "", "rink-a", 1000)
	t.Cleanup(func() { d.Close() })
	assert.Equal(t, "redis:"+DefaultRedisStream, d.Name())

	ctx := context.Background()
	require.NoError(t, d.Deliver(ctx, sampleEvent(3, "game-1")))

	verify := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer verify.Close()
	entries, err := verify.XRange(ctx, DefaultRedisStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "rink-a-3", values["event_id"])
	assert.Equal(t, "game-1", values["game_id"])
	assert.Equal(t, "GOAL_HOME", values["type"])

	var ev protocol.Event
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &ev))
	assert.Equal(t, int64(3), ev.Seq)
}

func TestRedisStreamDestination_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	d := NewRedisStreamDestination("redis", client, "s", "rink-a", 0)
	mr.Close()

	assert.Error(t, d.Deliver(context.Background(), sampleEvent(1, "g")))
}

type fakeNATS struct {
	msgs     []*nats.Msg
	flushErr error
	closed   bool
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNATS) FlushTimeout(time.Duration) error { return f.flushErr }

func (f *fakeNATS) Close() { f.closed = true }

func TestNATSDestination(t *testing.T) {
	conn := &fakeNATS{}
	d := newNATSDestination("", conn, "", "rink-a")
	assert.Equal(t, "nats:"+DefaultNATSSubject, d.Name())
	ctx := context.Background()

	require.NoError(t, d.Deliver(ctx, sampleEvent(4, "game-1")))
	require.NoError(t, d.Deliver(ctx, sampleEvent(5, "")))

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "scoreclock.events.game-1", conn.msgs[0].Subject)
	assert.Equal(t, "scoreclock.events.clock", conn.msgs[1].Subject)
	assert.Equal(t, "rink-a-4", conn.msgs[0].Header.Get(nats.MsgIdHdr))

	var ev protocol.Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].Data, &ev))
	assert.Equal(t, "GOAL_HOME", ev.Type)

	conn.flushErr = errors.New("nats: timeout")
	assert.ErrorContains(t, d.Deliver(ctx, sampleEvent(6, "game-1")), "flush")

	require.NoError(t, d.Close())
	assert.True(t, conn.closed)
}

func TestNATSDestination_CancelledContext(t *testing.T) {
	conn := &fakeNATS{}
	d := newNATSDestination("nats", conn, "p", "rink-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Deliver(ctx, sampleEvent(1, "g")), context.Canceled)
	assert.Empty(t, conn.msgs)
}
