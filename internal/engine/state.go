package engine

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/scoreclock/internal/payload"
)

// GameState is derived from the event log and never stored.
//
// LastUpdate anchors elapsed-time math while Running: the remaining time
// at instant t is SecondsRemaining - (t - LastUpdate), floored at zero.
type GameState struct {
	SecondsRemaining int64                     `json:"seconds"`
	Running          bool                      `json:"running"`
	LastUpdate       int64                     `json:"last_update"`
	HomeScore        int64                     `json:"home_score"`
	AwayScore        int64                     `json:"away_score"`
	HomeShots        int64                     `json:"home_shots"`
	AwayShots        int64                     `json:"away_shots"`
	Goals            []Goal                    `json:"goals"`
	HomeRoster       []string                  `json:"home_roster"`
	AwayRoster       []string                  `json:"away_roster"`
	RosterDetails    map[string]payload.Object `json:"roster_details"`
}

// Goal is one scored goal. A cancelled goal stays in the list with
// Cancelled set.
type Goal struct {
	ID        string `json:"id"`
	Team      Team   `json:"team"`
	Time      string `json:"time"`
	Cancelled bool   `json:"cancelled"`
	ScorerID  string `json:"scorer_id,omitempty"`
	Assist1ID string `json:"assist1_id,omitempty"`
	Assist2ID string `json:"assist2_id,omitempty"`
}

// NewGameState returns the zero state with non-nil collections.
func NewGameState() GameState {
	return GameState{
		Goals:         []Goal{},
		HomeRoster:    []string{},
		AwayRoster:    []string{},
		RosterDetails: map[string]payload.Object{},
	}
}

// Clone returns a deep copy.
func (s GameState) Clone() GameState {
	out := s
	out.Goals = slices.Clone(s.Goals)
	out.HomeRoster = slices.Clone(s.HomeRoster)
	out.AwayRoster = slices.Clone(s.AwayRoster)
	out.RosterDetails = make(map[string]payload.Object, len(s.RosterDetails))
	for k, v := range s.RosterDetails {
		out.RosterDetails[k] = v.Clone()
	}
	if out.Goals == nil {
		out.Goals = []Goal{}
	}
	if out.HomeRoster == nil {
		out.HomeRoster = []string{}
	}
	if out.AwayRoster == nil {
		out.AwayRoster = []string{}
	}
	return out
}

// FindGoal returns the goal with id, if any.
func (s GameState) FindGoal(id string) (Goal, bool) {
	if i := s.goalIndex(id); i >= 0 {
		return s.Goals[i], true
	}
	return Goal{}, false
}

func (s GameState) goalIndex(id string) int {
	return slices.IndexFunc(s.Goals, func(g Goal) bool { return g.ID == id })
}

// Roster returns the active player ids for a team.
func (s GameState) Roster(t Team) []string {
	if t == Away {
		return s.AwayRoster
	}
	return s.HomeRoster
}

// RosterLoaded reports whether either team has a roster.
func (s GameState) RosterLoaded() bool {
	return len(s.HomeRoster) > 0 || len(s.AwayRoster) > 0
}

// RosterPlayerIDs returns every player id with details, sorted.
func (s GameState) RosterPlayerIDs() []string {
	return slices.Sorted(maps.Keys(s.RosterDetails))
}

func (s *GameState) setRoster(t Team, ids []string) {
	if t == Away {
		s.AwayRoster = ids
	} else {
		s.HomeRoster = ids
	}
}

func (s *GameState) addScore(t Team, delta int64) {
	if t == Away {
		s.AwayScore = max(0, s.AwayScore+delta)
	} else {
		s.HomeScore = max(0, s.HomeScore+delta)
	}
}

// FormatClock renders seconds as m:ss, the format stamped on goals.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ParseClock parses "m:ss" (or a bare number of seconds) into seconds.
func ParseClock(text string) (int64, error) {
	text = strings.TrimSpace(text)
	mins, secs, found := strings.Cut(text, ":")
	if !found {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock %q", text)
		}
		return n, nil
	}
	m, err := strconv.ParseInt(mins, 10, 64)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("invalid clock %q: minutes", text)
	}
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil || sec < 0 || sec > 59 || len(secs) != 2 {
		return 0, fmt.Errorf("invalid clock %q: seconds", text)
	}
	return m*60 + sec, nil
}
