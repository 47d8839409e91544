package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

func decodeData(t *testing.T, raw []byte, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp), string(raw))
	assert.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestReplayCommand_JSON(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"replay", "--db", path, "--game", "g1", "--at", "2000", "--verify", "--format", "json"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())

	var res ReplayResult
	decodeData(t, stdout.Bytes(), &res)
	assert.Equal(t, "g1", res.GameID)
	assert.Equal(t, 4, res.Events)
	assert.Equal(t, int64(560), res.State.SecondsRemaining)
	assert.Equal(t, "9:20", res.Clock)
	assert.False(t, res.State.Running)
	assert.Equal(t, int64(1), res.State.HomeScore)
	require.Len(t, res.State.Goals, 1)
	assert.Equal(t, "aa11bb22", res.State.Goals[0].ID)
	assert.True(t, res.Verified)
	assert.True(t, res.Deterministic)
}

func TestReplayCommand_AtEarlierInstant(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"replay", "--db", path, "--game", "g1", "--at", "1020", "--format", "json"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())

	var res ReplayResult
	decodeData(t, stdout.Bytes(), &res)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, int64(580), res.State.SecondsRemaining)
	assert.True(t, res.State.Running)
	assert.Zero(t, res.State.HomeScore)
}

func TestReplayCommand_ClockModeText(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"replay", "--db", path, "--at", "2000"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "(clock mode)")
	assert.Contains(t, stdout.String(), "1:00")
}

func TestReplayCommand_RequiresDB(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute([]string{"replay"}, &stdout, &stderr)
	assert.NotEqual(t, ExitSuccess, code)
}

func TestVerifyFold_AgreesOnUnorderedInput(t *testing.T) {
	events := []store.Event{
		{ID: 3, Type: engine.TypeGamePaused, GameID: "g", CreatedAt: 1050},
		{ID: 1, Type: engine.TypeClockSet, GameID: "g", CreatedAt: 1000, Payload: secondsPayload(300)},
		{ID: 2, Type: engine.TypeGameStarted, GameID: "g", CreatedAt: 1000},
	}
	assert.True(t, verifyFold(events, 1100))

	res := replayEvents(events, 1100)
	assert.Equal(t, int64(250), res.State.SecondsRemaining)
	assert.Equal(t, "4:10", res.Clock)
}

func secondsPayload(n int64) payload.Object {
	return payload.New(payload.P("seconds", payload.Int(n)))
}
