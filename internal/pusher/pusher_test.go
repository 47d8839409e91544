package pusher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func appendEvents(t *testing.T, s *store.Store, gameID string, types ...string) []store.Event {
	t.Helper()
	out := make([]store.Event, 0, len(types))
	for _, typ := range types {
		ev, err := s.Append(context.Background(), typ, gameID, payload.Empty())
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

// recordingDestination records delivered event ids and fails the ids in
// failing until they are removed.
type recordingDestination struct {
	mu        sync.Mutex
	name      string
	delivered []int64
	failing   map[int64]int // remaining failures per event id
	block     chan struct{} // if set, Deliver waits on it
	entered   chan struct{} // if set, signalled when Deliver starts
}

func newRecordingDestination(name string) *recordingDestination {
	return &recordingDestination{name: name, failing: map[int64]int{}}
}

func (d *recordingDestination) Name() string { return d.name }

func (d *recordingDestination) Deliver(ctx context.Context, ev store.Event) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing[ev.ID] > 0 {
		d.failing[ev.ID]--
		return errors.New("connection refused")
	}
	d.delivered = append(d.delivered, ev.ID)
	return nil
}

func (d *recordingDestination) ids() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.delivered...)
}

func TestPusher_RunOnceDeliversInStoreOrder(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "CLOCK_SET", "GAME_STARTED", "SHOT_HOME")
	dest := newRecordingDestination("file")
	p := New(s, dest)
	ctx := context.Background()

	res, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 3, Delivered: 3}, res)
	assert.Equal(t, []int64{1, 2, 3}, dest.ids())

	res, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched, "delivered events are not fetched again")

	has, err := s.HasUndelivered(ctx, "file")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPusher_FailureIsRetriedAndDoesNotBlockLaterEvents(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "SHOT_HOME", "SHOT_AWAY", "SHOT_HOME")
	dest := newRecordingDestination("cloud")
	dest.failing[2] = 1
	p := New(s, dest)
	ctx := context.Background()

	res, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 3, Delivered: 2, Failed: 1}, res)
	assert.Equal(t, []int64{1, 3}, dest.ids())

	d, err := s.GetDelivery(ctx, 2, "cloud")
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeFailed, d.Outcome)

	res, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 1, Delivered: 1}, res)
	assert.Equal(t, []int64{1, 3, 2}, dest.ids())
}

func TestPusher_DestinationsAreIndependent(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "SHOT_HOME", "SHOT_AWAY")
	ctx := context.Background()

	a := newRecordingDestination("a")
	b := newRecordingDestination("b")
	b.failing[1] = 1

	_, err := New(s, a).RunOnce(ctx)
	require.NoError(t, err)
	_, err = New(s, b).RunOnce(ctx)
	require.NoError(t, err)

	hasA, err := s.HasUndelivered(ctx, "a")
	require.NoError(t, err)
	hasB, err := s.HasUndelivered(ctx, "b")
	require.NoError(t, err)
	assert.False(t, hasA)
	assert.True(t, hasB)
}

func TestPusher_BatchSize(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "SHOT_HOME", "SHOT_HOME", "SHOT_HOME")
	dest := newRecordingDestination("file")

	res, err := New(s, dest, WithBatchSize(2)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
}

func TestPusher_RunRetriesUntilDelivered(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "GOAL_HOME")
	dest := newRecordingDestination("cloud")
	dest.failing[1] = 3

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(s, dest, WithPollInterval(5*time.Millisecond)).Run(ctx) }()

	require.Eventually(t, func() bool {
		has, err := s.HasUndelivered(context.Background(), "cloud")
		return err == nil && !has
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{1}, dest.ids())

	d, err := s.GetDelivery(context.Background(), 1, "cloud")
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.Attempts)
}

func TestPusher_StopCompletesInFlightAttempt(t *testing.T) {
	s := setupTestStore(t)
	appendEvents(t, s, "g", "SHOT_HOME", "SHOT_AWAY")
	dest := newRecordingDestination("cloud")
	dest.block = make(chan struct{})
	dest.entered = make(chan struct{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(s, dest).Run(ctx) }()

	<-dest.entered
	cancel()
	close(dest.block)
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1}, dest.ids(), "second event is not attempted after stop")

	d, err := s.GetDelivery(context.Background(), 1, "cloud")
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeSuccess, d.Outcome, "in-flight attempt was recorded")

	has, err := s.HasUndelivered(context.Background(), "cloud")
	require.NoError(t, err)
	assert.True(t, has, "nothing dropped, only delayed")
}
