package engine

// Event type tags as stored in the log.
const (
	TypeClockSet    = "CLOCK_SET"
	TypeGameStarted = "GAME_STARTED"
	TypeGamePaused  = "GAME_PAUSED"
	TypeGoalHome    = "GOAL_HOME"
	TypeGoalAway    = "GOAL_AWAY"
	TypeShotHome    = "SHOT_HOME"
	TypeShotAway    = "SHOT_AWAY"

	TypeRosterInitialized     = "ROSTER_INITIALIZED"
	TypeRosterPlayerScratched = "ROSTER_PLAYER_SCRATCHED"
	TypeRosterPlayerActivated = "ROSTER_PLAYER_ACTIVATED"

	// Legacy score events. Replayed for old logs, never produced.
	TypeScoreHomeInc = "SCORE_HOME_INC"
	TypeScoreHomeDec = "SCORE_HOME_DEC"
	TypeScoreAwayInc = "SCORE_AWAY_INC"
	TypeScoreAwayDec = "SCORE_AWAY_DEC"
	TypeScoreChange  = "SCORE_CHANGE"
)

// Team is "home" or "away".
type Team string

const (
	Home Team = "home"
	Away Team = "away"
)

// Valid reports whether t names a team.
func (t Team) Valid() bool {
	return t == Home || t == Away
}

// GoalType returns the goal event tag for the team.
func (t Team) GoalType() string {
	if t == Away {
		return TypeGoalAway
	}
	return TypeGoalHome
}

// ShotType returns the shot event tag for the team.
func (t Team) ShotType() string {
	if t == Away {
		return TypeShotAway
	}
	return TypeShotHome
}

// PlayerStatusActive marks a rostered player as dressed for the game.
const PlayerStatusActive = "active"

// ModeClock is the controller mode in which events carry no game id.
const ModeClock = "clock"

// DefaultPeriodSeconds seeds a game that has no events yet.
const DefaultPeriodSeconds = 20 * 60
