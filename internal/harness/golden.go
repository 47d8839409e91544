package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/scoreclock/internal/payload"
)

// Snapshot is the golden-file form of a run.
type Snapshot struct {
	Scenario string `json:"scenario"`
	QueryAt  int64  `json:"query_at"`
	State    any    `json:"state"`
	Warnings any    `json:"warnings"`
}

// CanonicalSnapshot renders a result as canonical JSON.
func CanonicalSnapshot(r *Result) ([]byte, error) {
	raw, err := json.Marshal(Snapshot{
		Scenario: r.Name,
		QueryAt:  r.QueryAt,
		State:    r.State,
		Warnings: r.Warnings,
	})
	if err != nil {
		return nil, err
	}
	v, err := payload.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize snapshot: %w", err)
	}
	return payload.MarshalCanonical(v)
}

// RunWithGolden runs the scenario, fails t on check errors and compares
// the canonical snapshot with testdata/golden/{name}.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := CanonicalSnapshot(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
