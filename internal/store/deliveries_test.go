package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDest = "file:/tmp/out.jsonl"

func appendN(t *testing.T, s *Store, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev, err := s.Append(context.Background(), "SHOT_HOME", "g", nil)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestPending_IncludesUntriedPendingAndFailed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := appendN(t, s, 4)

	require.NoError(t, s.Mark(ctx, events[0].ID, testDest, OutcomeSuccess))
	require.NoError(t, s.Mark(ctx, events[1].ID, testDest, OutcomePending))
	require.NoError(t, s.MarkFailed(ctx, events[2].ID, testDest, errors.New("timeout")))

	pending, err := s.Pending(ctx, testDest, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, events[1].ID, pending[0].ID)
	assert.Equal(t, events[2].ID, pending[1].ID)
	assert.Equal(t, events[3].ID, pending[2].ID)

	limited, err := s.Pending(ctx, testDest, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPending_DestinationsAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := appendN(t, s, 2)

	require.NoError(t, s.Mark(ctx, events[0].ID, "a", OutcomeSuccess))
	require.NoError(t, s.Mark(ctx, events[1].ID, "a", OutcomeSuccess))

	pa, err := s.Pending(ctx, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, pa)

	pb, err := s.Pending(ctx, "b", 0)
	require.NoError(t, err)
	assert.Len(t, pb, 2)
}

func TestMark_UpsertsSingleRecord(t *testing.T) {
	clock := newStepClock(500)
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()
	ev := appendN(t, s, 1)[0]

	require.NoError(t, s.MarkFailed(ctx, ev.ID, testDest, errors.New("connection refused")))
	d, err := s.GetDelivery(ctx, ev.ID, testDest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, d.Outcome)
	assert.Equal(t, "connection refused", d.LastError)
	assert.Zero(t, d.DeliveredAt)

	clock.Set(510)
	require.NoError(t, s.Mark(ctx, ev.ID, testDest, OutcomeSuccess))
	d, err = s.GetDelivery(ctx, ev.ID, testDest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, d.Outcome)
	assert.Equal(t, int64(510), d.DeliveredAt)
	assert.Equal(t, int64(2), d.Attempts)
	assert.Empty(t, d.LastError)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestMark_SuccessIsTerminal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ev := appendN(t, s, 1)[0]

	require.NoError(t, s.Mark(ctx, ev.ID, testDest, OutcomeSuccess))
	require.NoError(t, s.MarkFailed(ctx, ev.ID, testDest, errors.New("late failure")))

	d, err := s.GetDelivery(ctx, ev.ID, testDest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, d.Outcome)
}

func TestMark_UnknownEventViolatesForeignKey(t *testing.T) {
	s := createTestStore(t)
	err := s.Mark(context.Background(), 99, testDest, OutcomeSuccess)
	require.Error(t, err)
}

func TestHasUndelivered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	has, err := s.HasUndelivered(ctx, testDest)
	require.NoError(t, err)
	assert.False(t, has, "empty log has nothing to deliver")

	events := appendN(t, s, 2)
	has, err = s.HasUndelivered(ctx, testDest)
	require.NoError(t, err)
	assert.True(t, has)

	for _, ev := range events {
		require.NoError(t, s.Mark(ctx, ev.ID, testDest, OutcomeSuccess))
	}
	has, err = s.HasUndelivered(ctx, testDest)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetDelivery_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetDelivery(context.Background(), 1, testDest)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := appendN(t, s, 5)

	require.NoError(t, s.Mark(ctx, events[0].ID, testDest, OutcomeSuccess))
	require.NoError(t, s.Mark(ctx, events[1].ID, testDest, OutcomeSuccess))
	require.NoError(t, s.MarkFailed(ctx, events[2].ID, testDest, nil))

	stats, err := s.DeliveryStats(ctx, testDest)
	require.NoError(t, err)
	assert.Equal(t, DeliveryStats{Destination: testDest, Total: 5, Delivered: 2, Failed: 1, Untried: 2}, stats)
	assert.Equal(t, int64(3), stats.Undelivered())

	dests, err := s.Destinations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testDest}, dests)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
