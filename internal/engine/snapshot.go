package engine

import (
	"github.com/roach88/scoreclock/internal/health"
	"github.com/roach88/scoreclock/internal/payload"
)

// Snapshot is the live view pushed to observers once per tick.
// Seconds is already projected to the publish time.
type Snapshot struct {
	Mode           string                    `json:"mode"`
	GameID         string                    `json:"game_id,omitempty"`
	Seconds        int64                     `json:"seconds"`
	Clock          string                    `json:"clock"`
	Running        bool                      `json:"running"`
	PusherStatus   health.Status             `json:"pusher_status"`
	PusherStatuses map[string]health.Status  `json:"pusher_statuses,omitempty"`
	HomeScore      int64                     `json:"home_score"`
	AwayScore      int64                     `json:"away_score"`
	HomeShots      int64                     `json:"home_shots"`
	AwayShots      int64                     `json:"away_shots"`
	Goals          []Goal                    `json:"goals"`
	HomeRoster     []string                  `json:"home_roster"`
	AwayRoster     []string                  `json:"away_roster"`
	RosterDetails  map[string]payload.Object `json:"roster_details"`
	RosterLoaded   bool                      `json:"roster_loaded"`
	LastEventID    int64                     `json:"last_event_id"`
	At             int64                     `json:"at"`
}

// ClockMode reports whether no game is selected.
func (s Snapshot) ClockMode() bool {
	return s.Mode == ModeClock || s.Mode == ""
}

// newSnapshot copies s. State slices are never mutated in place (Apply
// works on a clone), so sharing them with readers is safe.
func newSnapshot(mode string, s GameState, report health.Report, lastEventID, at int64) Snapshot {
	snap := Snapshot{
		Mode:           mode,
		Seconds:        s.SecondsRemaining,
		Clock:          FormatClock(s.SecondsRemaining),
		Running:        s.Running,
		PusherStatus:   report.Overall,
		PusherStatuses: report.Destinations,
		HomeScore:      s.HomeScore,
		AwayScore:      s.AwayScore,
		HomeShots:      s.HomeShots,
		AwayShots:      s.AwayShots,
		Goals:          s.Goals,
		HomeRoster:     s.HomeRoster,
		AwayRoster:     s.AwayRoster,
		RosterDetails:  s.RosterDetails,
		RosterLoaded:   s.RosterLoaded(),
		LastEventID:    lastEventID,
		At:             at,
	}
	if mode != ModeClock {
		snap.GameID = mode
	}
	if snap.PusherStatus == "" {
		snap.PusherStatus = health.Unknown
	}
	return snap
}
