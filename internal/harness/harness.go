package harness

import (
	"context"
	"fmt"

	"github.com/roach88/scoreclock/internal/engine"
	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
	"github.com/roach88/scoreclock/internal/testutil"
)

// Result is the outcome of running one scenario.
type Result struct {
	Name     string           `json:"name"`
	Pass     bool             `json:"pass"`
	QueryAt  int64            `json:"query_at"`
	State    engine.GameState `json:"state"`
	Warnings []engine.Warning `json:"warnings"`
	Errors   []string         `json:"errors,omitempty"`
}

// AddError records a failed check.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario in a fresh in-memory database.
//
// Events are appended through the store with a fake clock, so created_at
// and id are assigned exactly as on a device. The returned error is for
// setup failures; check failures are reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewFakeClock(scenario.Start)
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i, step := range scenario.Events {
		p, err := toPayload(step.Payload)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		clock.Set(scenario.Start + step.At)
		if _, err := st.Append(ctx, step.Type, step.gameID(scenario.GameID), p); err != nil {
			return nil, fmt.Errorf("events[%d]: append: %w", i, err)
		}
	}

	events, err := st.List(ctx, store.ForGame(scenario.GameID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	queryAt := scenario.queryAt()
	state, warnings := engine.ReplayWithWarnings(events)
	result := &Result{
		Name:     scenario.Name,
		Pass:     true,
		QueryAt:  queryAt,
		State:    engine.Project(state, queryAt),
		Warnings: warnings,
	}
	for _, msg := range scenario.Expect.Check(result.State, warnings) {
		result.AddError(msg)
	}
	return result, nil
}

func toPayload(m map[string]any) (payload.Object, error) {
	if len(m) == 0 {
		return payload.Empty(), nil
	}
	v, err := payload.FromAny(m)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	obj, ok := v.(payload.Object)
	if !ok {
		return nil, fmt.Errorf("payload: expected object, got %T", v)
	}
	return obj, nil
}
