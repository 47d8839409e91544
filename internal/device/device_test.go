package device

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/health"
	"github.com/roach88/scoreclock/internal/protocol"
)

func withHardware(t *testing.T, addrs ...net.HardwareAddr) {
	t.Helper()
	orig := hardwareAddrs
	hardwareAddrs = func() []net.HardwareAddr { return addrs }
	t.Cleanup(func() { hardwareAddrs = orig })
}

func TestGenerateID_FromMAC(t *testing.T) {
	mac, err := net.ParseMAC("00:1a:2b:aa:bb:cc")
	require.NoError(t, err)
	withHardware(t, mac)

	assert.Equal(t, "dev-aabbcc", GenerateID())
}

func TestGenerateID_RandomFallback(t *testing.T) {
	withHardware(t)

	id := GenerateID()
	assert.True(t, strings.HasPrefix(id, IDPrefix))
	assert.Len(t, id, len(IDPrefix)+8)
	assert.NotEqual(t, id, GenerateID())
}

func TestLoadOrCreateID_PersistsAndReloads(t *testing.T) {
	withHardware(t)
	path := filepath.Join(t.TempDir(), "state", "device_id")

	first, err := LoadOrCreateID(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, strings.TrimSpace(string(data)))

	second, err := LoadOrCreateID(path)
	require.NoError(t, err)
	assert.Equal(t, first, second, "id is stable across restarts")
}

func TestLoadOrCreateID_EmptyFileRegenerates(t *testing.T) {
	mac, err := net.ParseMAC("de:ad:be:ef:00:01")
	require.NoError(t, err)
	withHardware(t, mac)

	path := filepath.Join(t.TempDir(), "device_id")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	id, err := LoadOrCreateID(path)
	require.NoError(t, err)
	assert.Equal(t, "dev-ef0001", id)
}

type fixedSource struct{ snap engine.Snapshot }

func (s fixedSource) Current() engine.Snapshot { return s.snap }

func TestHeartbeater_Build(t *testing.T) {
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }

	tests := []struct {
		name string
		snap engine.Snapshot
		want string
	}{
		{"running game", engine.Snapshot{Mode: "g1", GameID: "g1", Running: true}, protocol.GameStateRunning},
		{"paused game", engine.Snapshot{Mode: "g1", GameID: "g1"}, protocol.GameStatePaused},
		{"clock mode", engine.Snapshot{Mode: engine.ModeClock}, protocol.GameStateIdle},
		{"clock mode running", engine.Snapshot{Mode: engine.ModeClock, Running: true}, protocol.GameStateRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeartbeater(nil, fixedSource{tt.snap}, "dev-1", WithClock(now))
			assert.Equal(t, tt.want, h.Build().GameState)
		})
	}

	snap := engine.Snapshot{
		Mode:         "g9",
		GameID:       "g9",
		Seconds:      754,
		Running:      true,
		PusherStatus: health.Pending,
		LastEventID:  42,
	}
	h := NewHeartbeater(nil, fixedSource{snap}, "dev-1", WithClock(now), WithAppVersion("1.2.0"))
	assert.Equal(t, protocol.Heartbeat{
		DeviceID:      "dev-1",
		CurrentGameID: "g9",
		GameState:     protocol.GameStateRunning,
		ClockRunning:  true,
		ClockValueMS:  754_000,
		LastEventSeq:  42,
		AppVersion:    "1.2.0",
		PusherStatus:  "pending",
		TSLocal:       "2023-11-14T22:13:20Z",
	}, h.Build())
}

func TestHeartbeater_RunPostsUntilCancelled(t *testing.T) {
	var mu sync.Mutex
	var got []protocol.Heartbeat
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/heartbeat", r.URL.Path)
		var hb protocol.Heartbeat
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&hb))
		mu.Lock()
		got = append(got, hb)
		mu.Unlock()
		json.NewEncoder(w).Encode(protocol.HeartbeatResponse{Status: "ok"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHeartbeater(protocol.NewClient(srv.URL, time.Second), fixedSource{engine.Snapshot{Mode: engine.ModeClock}}, "dev-1",
		WithInterval(10*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "dev-1", got[0].DeviceID)
}

func TestHeartbeater_SendFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewHeartbeater(protocol.NewClient(srv.URL, time.Second), fixedSource{}, "dev-1")
	err := h.Send(context.Background())
	var serr *protocol.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
}
