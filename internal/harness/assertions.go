package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/scoreclock/internal/engine"
)

// Expect lists the state fields a scenario checks. Nil fields are not
// checked; an empty roster list checks for an empty roster.
type Expect struct {
	Seconds    *int64       `yaml:"seconds,omitempty"`
	Clock      *string      `yaml:"clock,omitempty"`
	Running    *bool        `yaml:"running,omitempty"`
	HomeScore  *int64       `yaml:"home_score,omitempty"`
	AwayScore  *int64       `yaml:"away_score,omitempty"`
	HomeShots  *int64       `yaml:"home_shots,omitempty"`
	AwayShots  *int64       `yaml:"away_shots,omitempty"`
	HomeRoster []string     `yaml:"home_roster,omitempty"`
	AwayRoster []string     `yaml:"away_roster,omitempty"`
	GoalCount  *int         `yaml:"goal_count,omitempty"`
	Goals      []GoalExpect `yaml:"goals,omitempty"`
	Warnings   *int         `yaml:"warnings,omitempty"`
}

// GoalExpect matches one goal by id. Empty fields are not checked.
type GoalExpect struct {
	ID        string `yaml:"id"`
	Team      string `yaml:"team,omitempty"`
	Time      string `yaml:"time,omitempty"`
	ScorerID  string `yaml:"scorer_id,omitempty"`
	Cancelled *bool  `yaml:"cancelled,omitempty"`
}

// Check compares the state and warnings with e and returns one message
// per mismatch.
func (e Expect) Check(s engine.GameState, warnings []engine.Warning) []string {
	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}
	checkInt := func(field string, want *int64, got int64) {
		if want != nil && *want != got {
			mismatch(field, *want, got)
		}
	}

	checkInt("seconds", e.Seconds, s.SecondsRemaining)
	if e.Clock != nil && *e.Clock != engine.FormatClock(s.SecondsRemaining) {
		mismatch("clock", *e.Clock, engine.FormatClock(s.SecondsRemaining))
	}
	if e.Running != nil && *e.Running != s.Running {
		mismatch("running", *e.Running, s.Running)
	}
	checkInt("home_score", e.HomeScore, s.HomeScore)
	checkInt("away_score", e.AwayScore, s.AwayScore)
	checkInt("home_shots", e.HomeShots, s.HomeShots)
	checkInt("away_shots", e.AwayShots, s.AwayShots)

	if e.HomeRoster != nil && !slices.Equal(e.HomeRoster, s.HomeRoster) {
		mismatch("home_roster", e.HomeRoster, s.HomeRoster)
	}
	if e.AwayRoster != nil && !slices.Equal(e.AwayRoster, s.AwayRoster) {
		mismatch("away_roster", e.AwayRoster, s.AwayRoster)
	}
	if e.GoalCount != nil && *e.GoalCount != len(s.Goals) {
		mismatch("goal_count", *e.GoalCount, len(s.Goals))
	}
	for _, want := range e.Goals {
		errs = append(errs, checkGoal(want, s)...)
	}
	if e.Warnings != nil && *e.Warnings != len(warnings) {
		mismatch("warnings", *e.Warnings, len(warnings))
	}
	return errs
}

func checkGoal(want GoalExpect, s engine.GameState) []string {
	got, ok := s.FindGoal(want.ID)
	if !ok {
		return []string{fmt.Sprintf("goal %s: not found", want.ID)}
	}
	var errs []string
	id := want.ID
	field := func(name string, want, got any) {
		errs = append(errs, fmt.Sprintf("goal %s: %s: expected %v, got %v", id, name, want, got))
	}
	if want.Team != "" && want.Team != string(got.Team) {
		field("team", want.Team, got.Team)
	}
	if want.Time != "" && want.Time != got.Time {
		field("time", want.Time, got.Time)
	}
	if want.ScorerID != "" && want.ScorerID != got.ScorerID {
		field("scorer_id", want.ScorerID, got.ScorerID)
	}
	if want.Cancelled != nil && *want.Cancelled != got.Cancelled {
		field("cancelled", *want.Cancelled, got.Cancelled)
	}
	return errs
}
