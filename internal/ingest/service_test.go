package ingest

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
	"github.com/roach88/scoreclock/internal/protocol"
	"github.com/roach88/scoreclock/internal/schema"
)

const testNow = 1_700_000_000

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "cloud.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestService(t *testing.T, repo Repository, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithValidator(schema.MustNew()),
		WithClock(func() time.Time { return time.Unix(testNow, 0) }),
	}, opts...)
	return NewService(repo, opts...)
}

func event(seq int64, eventType string, at int64, p payload.Object) protocol.Event {
	if p == nil {
		p = payload.Empty()
	}
	return protocol.Event{
		EventID: protocol.EventID("dev1", seq),
		Seq:     seq,
		Type:    eventType,
		TSLocal: protocol.FormatTime(at),
		Payload: p,
	}
}

func request(events ...protocol.Event) protocol.SubmitRequest {
	return protocol.SubmitRequest{DeviceID: "dev1", SessionID: "sess1", Events: events}
}

func seconds(n int64) payload.Object {
	return payload.New(payload.P("seconds", payload.Int(n)))
}

func TestSubmit_StoresAndAcks(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "g1", request(
		event(1, "CLOCK_SET", 1000, seconds(1200)),
		event(2, "GAME_STARTED", 1000, nil),
	))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.AckedThrough)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, time.Unix(testNow, 0), res.ServerTime)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "dev1-1", records[0].EventID)
	assert.Equal(t, "sess1", records[0].SessionID)
	assert.Equal(t, int64(testNow), records[0].ReceivedAt)
	assert.NotEmpty(t, records[0].PayloadHash)
}

func TestSubmit_Idempotent(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	ctx := context.Background()
	req := request(event(7, "SHOT_HOME", 1000, nil))

	first, err := svc.Submit(ctx, "g1", req)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "g1", req)
	require.NoError(t, err)

	assert.Equal(t, int64(7), first.AckedThrough)
	assert.Equal(t, int64(7), second.AckedThrough)
	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Duplicates)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSubmit_RepeatedEventInOneRequest(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	e2 := event(2, "SHOT_HOME", 1001, nil)
	res, err := svc.Submit(ctx, "g1", request(event(1, "SHOT_HOME", 1000, nil), e2, e2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.AckedThrough)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSubmit_ConflictingContentKeepsFirst(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "g1", request(event(1, "CLOCK_SET", 1000, seconds(600))))
	require.NoError(t, err)

	res, err := svc.Submit(ctx, "g1", request(event(1, "CLOCK_SET", 1000, seconds(900))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AckedThrough)
	assert.Equal(t, 1, res.Conflicts)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	got, _ := records[0].Payload.Int("seconds")
	assert.Equal(t, int64(600), got)
}

func TestSubmit_SortsBySeq(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "g1", request(
		event(3, "SHOT_AWAY", 1002, nil),
		event(1, "CLOCK_SET", 1000, seconds(60)),
		event(2, "SHOT_HOME", 1001, nil),
	))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.AckedThrough)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].Seq, records[1].Seq, records[2].Seq})
}

func TestSubmit_EmptyBatch(t *testing.T) {
	svc := newTestService(t, openTestRepo(t))
	res, err := svc.Submit(context.Background(), "g1", request())
	require.NoError(t, err)
	assert.Zero(t, res.AckedThrough)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		game  string
		req   protocol.SubmitRequest
		field string
		code  string
	}{
		{
			name:  "missing game",
			game:  "",
			req:   request(event(1, "SHOT_HOME", 1000, nil)),
			field: "game_id",
			code:  CodeInvalidRequest,
		},
		{
			name:  "missing device",
			game:  "g1",
			req:   protocol.SubmitRequest{SessionID: "s", Events: []protocol.Event{event(1, "SHOT_HOME", 1000, nil)}},
			field: "device_id",
			code:  CodeInvalidRequest,
		},
		{
			name: "bad timestamp",
			game: "g1",
			req: request(protocol.Event{
				EventID: "dev1-1", Seq: 1, Type: "SHOT_HOME", TSLocal: "yesterday", Payload: payload.Empty(),
			}),
			field: "events[0].ts_local",
			code:  CodeInvalidEvent,
		},
		{
			name:  "non-positive seq",
			game:  "g1",
			req:   request(protocol.Event{EventID: "dev1-0", Seq: 0, Type: "SHOT_HOME", TSLocal: protocol.FormatTime(1000)}),
			field: "events[0].seq",
			code:  CodeInvalidEvent,
		},
		{
			name:  "unknown type",
			game:  "g1",
			req:   request(event(1, "PENALTY_STARTED", 1000, nil)),
			field: "events[0].type",
			code:  CodeInvalidEvent,
		},
		{
			name:  "bad payload",
			game:  "g1",
			req:   request(event(1, "SHOT_HOME", 1000, nil), event(2, "CLOCK_SET", 1000, seconds(-5))),
			field: "events[1].payload",
			code:  CodeInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := openTestRepo(t)
			svc := newTestService(t, repo)

			_, err := svc.Submit(context.Background(), tt.game, tt.req)
			require.Error(t, err)
			require.True(t, IsValidationError(err))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Field, tt.field)
			assert.Equal(t, tt.code, verr.Code)

			games, err := repo.GameIDs(context.Background())
			require.NoError(t, err)
			assert.Empty(t, games, "nothing stored on validation failure")
		})
	}
}

// failingRepo stores records until it reaches failAt.
type failingRepo struct {
	*SQLiteRepository
	failAt int64
}

func (r failingRepo) Save(ctx context.Context, records []Record) ([]Outcome, error) {
	for i, rec := range records {
		if rec.Seq == r.failAt {
			outcomes, err := r.SQLiteRepository.Save(ctx, records[:i])
			if err != nil {
				return outcomes, err
			}
			return outcomes, errors.New("disk full")
		}
	}
	return r.SQLiteRepository.Save(ctx, records)
}

func TestSubmit_PartialFailureAcksPrefix(t *testing.T) {
	repo := failingRepo{SQLiteRepository: openTestRepo(t), failAt: 3}
	svc := newTestService(t, repo)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "g1", request(
		event(1, "SHOT_HOME", 1000, nil),
		event(2, "SHOT_HOME", 1001, nil),
		event(3, "SHOT_HOME", 1002, nil),
		event(4, "SHOT_HOME", 1003, nil),
	))
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.Equal(t, int64(2), res.AckedThrough)
	assert.Equal(t, 2, res.Inserted)

	records, err := svc.Events(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSubmit_NotifiesObservers(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	obs := ObserverFunc(func(gameID string, inserted int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, gameID)
		assert.Equal(t, 1, inserted)
	})

	svc := newTestService(t, openTestRepo(t), WithObserver(obs))
	req := request(event(1, "SHOT_HOME", 1000, nil))

	_, err := svc.Submit(context.Background(), "g1", req)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), "g1", req)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1"}, calls, "duplicates do not notify")
}

func TestSubmit_ConcurrentDuplicatesConverge(t *testing.T) {
	repo := openTestRepo(t)
	svc := newTestService(t, repo)
	req := request(event(1, "CLOCK_SET", 1000, seconds(300)), event(2, "GAME_STARTED", 1000, nil))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Submit(context.Background(), "g1", req)
			assert.NoError(t, err)
			assert.Equal(t, int64(2), res.AckedThrough)
		}()
	}
	wg.Wait()

	records, err := svc.Events(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestGameState_ReplaysReceivedLog(t *testing.T) {
	svc := newTestService(t, openTestRepo(t))
	ctx := context.Background()

	goal := payload.New(
		payload.P("value", payload.Int(1)),
		payload.P("goal_id", payload.String("ab12cd34")),
		payload.P("time", payload.String("19:30")),
	)

	// Submitted out of order across two requests.
	_, err := svc.Submit(ctx, "g1", request(
		event(3, "GOAL_HOME", 1030, goal),
		event(4, "GAME_PAUSED", 1060, nil),
	))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "g1", request(
		event(1, "CLOCK_SET", 1000, seconds(1200)),
		event(2, "GAME_STARTED", 1000, nil),
	))
	require.NoError(t, err)

	state, err := svc.GameState(ctx, "g1", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1140), state.SecondsRemaining)
	assert.False(t, state.Running)
	assert.Equal(t, int64(1), state.HomeScore)
	require.Len(t, state.Goals, 1)
	assert.Equal(t, "ab12cd34", state.Goals[0].ID)

	games, err := svc.Games(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, games)
}

func TestGameState_RunningProjectsToNow(t *testing.T) {
	svc := newTestService(t, openTestRepo(t))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "g1", request(
		event(1, "CLOCK_SET", 1000, seconds(600)),
		event(2, "GAME_STARTED", 1000, nil),
	))
	require.NoError(t, err)

	state, err := svc.GameState(ctx, "g1", 1100)
	require.NoError(t, err)
	assert.True(t, state.Running)
	assert.Equal(t, int64(500), state.SecondsRemaining)
}

func TestSubmitResult_Response(t *testing.T) {
	res := SubmitResult{AckedThrough: 9, ServerTime: time.Unix(0, 0)}
	assert.Equal(t, protocol.SubmitResponse{AckedThrough: 9, ServerTime: "1970-01-01T00:00:00Z"}, res.Response())
}
