package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventGenerator_Reproducible(t *testing.T) {
	a := NewEventGenerator(42).Events(50, "game-1", 1000)
	b := NewEventGenerator(42).Events(50, "game-1", 1000)
	assert.Equal(t, a, b)
}

func TestEventGenerator_IDsAndTimestamps(t *testing.T) {
	events := NewEventGenerator(7).Events(100, "g", 500)
	require.Len(t, events, 100)

	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.ID)
		assert.Equal(t, "g", ev.GameID)
		assert.NotNil(t, ev.Payload)
		if i > 0 {
			assert.GreaterOrEqual(t, ev.CreatedAt, events[i-1].CreatedAt)
		}
	}
}
