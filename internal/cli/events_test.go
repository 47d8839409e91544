package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scoreclock/internal/store"
)

func TestEventsCommand_AllEvents(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"events", "--db", path, "--format", "json"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())

	var events []store.Event
	decodeData(t, stdout.Bytes(), &events)
	require.Len(t, events, 5)
	assert.Equal(t, "CLOCK_SET", events[0].Type)
}

func TestEventsCommand_Filters(t *testing.T) {
	path := seedStore(t)

	tests := []struct {
		name  string
		args  []string
		types []string
	}{
		{"game", []string{"--game", "g1"}, []string{"CLOCK_SET", "GAME_STARTED", "GOAL_HOME", "GAME_PAUSED"}},
		{"clock mode", []string{"--clock-mode"}, []string{"CLOCK_SET"}},
		{"since", []string{"--game", "g1", "--since", "2"}, []string{"GOAL_HOME", "GAME_PAUSED"}},
		{"limit", []string{"--limit", "1"}, []string{"CLOCK_SET"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"events", "--db", path, "--format", "json"}, tt.args...)
			require.Equal(t, ExitSuccess, Execute(args, &stdout, &stderr), stderr.String())

			var events []store.Event
			decodeData(t, stdout.Bytes(), &events)
			got := make([]string, len(events))
			for i, ev := range events {
				got[i] = ev.Type
			}
			assert.Equal(t, tt.types, got)
		})
	}
}

func TestEventsCommand_Text(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	require.Equal(t, ExitSuccess, Execute([]string{"events", "--db", path, "--game", "g1"}, &stdout, &stderr))
	out := stdout.String()
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, `{"goal_id":"aa11bb22","time":"9:30","value":1}`)
	assert.Contains(t, out, "1970-01-01T00:16:40Z")
}

func TestDeliveriesCommand_Backlog(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"deliveries", "--db", path, "--format", "json"}, &stdout, &stderr)
	assert.Equal(t, ExitFailure, code, "undelivered events remain")

	var stats []store.DeliveryStats
	decodeData(t, stdout.Bytes(), &stats)
	require.Len(t, stats, 1, "configured default destination and recorded destination are both cloud")
	assert.Equal(t, "cloud", stats[0].Destination)
	assert.Equal(t, int64(5), stats[0].Total)
	assert.Equal(t, int64(1), stats[0].Delivered)
	assert.Equal(t, int64(4), stats[0].Untried)
}

func TestDeliveriesCommand_NamedDestination(t *testing.T) {
	path := seedStore(t)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"deliveries", "--db", path, "--dest", "backup"}, &stdout, &stderr)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout.String(), "backup")
	assert.Contains(t, stdout.String(), "DESTINATION")
}
