package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// Warning describes an event the fold ignored, fully or in part. Warnings
// never abort a replay.
type Warning struct {
	EventID int64  `json:"event_id"`
	Type    string `json:"type"`
	Reason  string `json:"reason"`
}

// Error implements the error interface so Apply can return a Warning.
func (w *Warning) Error() string {
	return fmt.Sprintf("event %d (%s): %s", w.EventID, w.Type, w.Reason)
}

// Replay folds events into a GameState. Warnings are logged.
//
// The fold is total and pure: the same events always yield the same
// state, and no wall clock is read. Use Project for the live clock.
func Replay(events []store.Event) GameState {
	s, warnings := ReplayWithWarnings(events)
	for _, w := range warnings {
		slog.Warn("replay: event ignored",
			"event_id", w.EventID,
			"type", w.Type,
			"reason", w.Reason,
		)
	}
	return s
}

// ReplayWithWarnings is Replay that returns warnings instead of logging them.
// Events are folded in (created_at, id) order regardless of input order.
func ReplayWithWarnings(events []store.Event) (GameState, []Warning) {
	ordered := slices.Clone(events)
	SortEvents(ordered)

	s := NewGameState()
	warnings := []Warning{}
	for _, ev := range ordered {
		if w := s.apply(ev); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return s, warnings
}

// SortEvents sorts in replay order: created_at, then id.
func SortEvents(events []store.Event) {
	slices.SortStableFunc(events, func(a, b store.Event) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Apply applies one event to a copy of s. The returned error, if any, is a
// *Warning and the returned state is still valid.
func Apply(s GameState, ev store.Event) (GameState, error) {
	next := s.Clone()
	if w := next.apply(ev); w != nil {
		return next, w
	}
	return next, nil
}

// Project advances a running clock to now. It is the only place wall time
// enters the state; a paused state is returned unchanged.
func Project(s GameState, now int64) GameState {
	if !s.Running {
		return s
	}
	s.SecondsRemaining = max(0, s.SecondsRemaining-max(0, now-s.LastUpdate))
	s.LastUpdate = max(s.LastUpdate, now)
	return s
}

// StateAt returns the state as of unix time t: the fold over events with
// created_at <= t, projected to t.
func StateAt(events []store.Event, t int64) GameState {
	visible := make([]store.Event, 0, len(events))
	for _, ev := range events {
		if ev.CreatedAt <= t {
			visible = append(visible, ev)
		}
	}
	return Project(Replay(visible), t)
}

func (s *GameState) apply(ev store.Event) *Warning {
	p := ev.Payload
	if p == nil {
		p = payload.Empty()
	}
	warn := func(format string, args ...any) *Warning {
		return &Warning{EventID: ev.ID, Type: ev.Type, Reason: fmt.Sprintf(format, args...)}
	}

	switch ev.Type {
	case TypeClockSet:
		seconds, ok := p.Int("seconds")
		if !ok || seconds < 0 {
			return warn("missing or negative seconds")
		}
		s.SecondsRemaining = seconds
		if s.Running {
			s.LastUpdate = ev.CreatedAt
		}

	case TypeGameStarted:
		if s.Running {
			s.elapse(ev.CreatedAt)
		}
		s.Running = true
		s.LastUpdate = ev.CreatedAt

	case TypeGamePaused:
		if s.Running {
			s.elapse(ev.CreatedAt)
		}
		s.Running = false
		s.LastUpdate = ev.CreatedAt

	case TypeGoalHome:
		return s.applyGoal(Home, p, warn)
	case TypeGoalAway:
		return s.applyGoal(Away, p, warn)

	case TypeShotHome:
		s.HomeShots++
	case TypeShotAway:
		s.AwayShots++

	case TypeScoreHomeInc:
		s.addScore(Home, 1)
	case TypeScoreHomeDec:
		s.addScore(Home, -1)
	case TypeScoreAwayInc:
		s.addScore(Away, 1)
	case TypeScoreAwayDec:
		s.addScore(Away, -1)
	case TypeScoreChange:
		team := Team(str(p, "team"))
		score, ok := p.Int("score")
		if !team.Valid() || !ok {
			return warn("score change needs team and score")
		}
		if team == Home {
			s.HomeScore = max(0, score)
		} else {
			s.AwayScore = max(0, score)
		}

	case TypeRosterInitialized:
		return s.applyRosterInit(p, warn)

	case TypeRosterPlayerScratched, TypeRosterPlayerActivated:
		team := Team(str(p, "team"))
		playerID := playerIDOf(p)
		if !team.Valid() || playerID == "" {
			return warn("roster change needs team and player_id")
		}
		roster := s.Roster(team)
		has := slices.Contains(roster, playerID)
		switch {
		case ev.Type == TypeRosterPlayerScratched && has:
			s.setRoster(team, slices.DeleteFunc(slices.Clone(roster), func(id string) bool { return id == playerID }))
		case ev.Type == TypeRosterPlayerActivated && !has:
			s.setRoster(team, append(slices.Clone(roster), playerID))
		}

	default:
		return warn("unknown event type")
	}
	return nil
}

// elapse charges the time since LastUpdate against the clock.
func (s *GameState) elapse(at int64) {
	s.SecondsRemaining = max(0, s.SecondsRemaining-max(0, at-s.LastUpdate))
}

// applyGoal handles a scored goal (value > 0) or a cancellation (value < 0).
// Cancellations locate the original by goal_id. An unknown or already
// cancelled id changes nothing.
func (s *GameState) applyGoal(team Team, p payload.Object, warn func(string, ...any) *Warning) *Warning {
	value, ok := p.Int("value")
	if !ok {
		value = 1
	}
	goalID := str(p, "goal_id")

	if value > 0 {
		if goalID != "" && s.goalIndex(goalID) >= 0 {
			return warn("duplicate goal id %q", goalID)
		}
		s.addScore(team, 1)
		if goalID == "" {
			// Anonymous legacy goal: score only.
			return nil
		}
		s.Goals = append(s.Goals, Goal{
			ID:        goalID,
			Team:      team,
			Time:      str(p, "time"),
			ScorerID:  str(p, "scorer_id"),
			Assist1ID: str(p, "assist1_id"),
			Assist2ID: str(p, "assist2_id"),
		})
		return nil
	}

	if value == 0 {
		return warn("goal value must be non-zero")
	}

	if goalID == "" {
		// Anonymous legacy cancellation: score only.
		s.addScore(team, -1)
		return nil
	}

	i := s.goalIndex(goalID)
	if i < 0 {
		return warn("cancellation of unknown goal %q", goalID)
	}
	g := &s.Goals[i]
	if g.Cancelled {
		return warn("goal %q already cancelled", goalID)
	}
	g.Cancelled = true
	s.addScore(g.Team, -1)
	return nil
}

// applyRosterInit replaces a team's roster with the players marked active
// and records display details for every listed player.
func (s *GameState) applyRosterInit(p payload.Object, warn func(string, ...any) *Warning) *Warning {
	team := Team(str(p, "team"))
	if !team.Valid() {
		return warn("roster needs a valid team")
	}
	players, _ := p.Array("players")

	active := []string{}
	skipped := 0
	for _, v := range players {
		player, ok := v.(payload.Object)
		if !ok {
			skipped++
			continue
		}
		id := playerIDOf(player)
		if id == "" {
			skipped++
			continue
		}
		s.RosterDetails[id] = player.Clone()
		if str(player, "status") == PlayerStatusActive && !slices.Contains(active, id) {
			active = append(active, id)
		}
	}
	s.setRoster(team, active)

	if skipped > 0 {
		return warn("%d roster entries without player_id", skipped)
	}
	return nil
}

func str(p payload.Object, key string) string {
	v, _ := p.Str(key)
	return v
}

// playerIDOf accepts both string and integer player ids.
func playerIDOf(p payload.Object) string {
	switch v := p["player_id"].(type) {
	case payload.String:
		return string(v)
	case payload.Int:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
