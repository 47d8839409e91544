package testutil

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// eventTypes are the tags RandomEvents draws from, weighted by repetition.
// Unknown tags and legacy score events are included on purpose: the fold
// must stay total over arbitrary logs.
var eventTypes = []string{
	"CLOCK_SET",
	"GAME_STARTED", "GAME_STARTED",
	"GAME_PAUSED", "GAME_PAUSED",
	"GOAL_HOME", "GOAL_HOME", "GOAL_AWAY", "GOAL_AWAY",
	"SHOT_HOME", "SHOT_HOME", "SHOT_AWAY", "SHOT_AWAY",
	"ROSTER_INITIALIZED",
	"ROSTER_PLAYER_SCRATCHED",
	"ROSTER_PLAYER_ACTIVATED",
	"SCORE_HOME_INC", "SCORE_AWAY_DEC", "SCORE_CHANGE",
	"PENALTY_STARTED",
}

// EventGenerator builds random but reproducible event logs for property
// tests. The same seed always yields the same events.
type EventGenerator struct {
	faker   *gofakeit.Faker
	goalIDs []string
	players []string
}

// NewEventGenerator creates a generator seeded with seed.
func NewEventGenerator(seed int64) *EventGenerator {
	return &EventGenerator{faker: gofakeit.New(seed)}
}

// Events returns n events for gameID with ids 1..n and non-decreasing
// created_at starting at start.
func (g *EventGenerator) Events(n int, gameID string, start int64) []store.Event {
	events := make([]store.Event, 0, n)
	at := start
	for i := 1; i <= n; i++ {
		at += int64(g.faker.IntRange(0, 30))
		eventType := g.faker.RandomString(eventTypes)
		events = append(events, store.Event{
			ID:        int64(i),
			Type:      eventType,
			GameID:    gameID,
			Payload:   g.payloadFor(eventType),
			CreatedAt: at,
		})
	}
	return events
}

// Payload returns a plausible payload for eventType. Exported so tests can
// append generated events through a real store.
func (g *EventGenerator) Payload(eventType string) payload.Object {
	return g.payloadFor(eventType)
}

func (g *EventGenerator) payloadFor(eventType string) payload.Object {
	switch eventType {
	case "CLOCK_SET":
		return payload.New(payload.P("seconds", payload.Int(g.faker.IntRange(0, 1200))))

	case "GOAL_HOME", "GOAL_AWAY":
		// One in four goal events cancels an earlier (or unknown) goal.
		if len(g.goalIDs) > 0 && g.faker.IntRange(0, 3) == 0 {
			id := g.faker.RandomString(g.goalIDs)
			if g.faker.IntRange(0, 4) == 0 {
				id = "missing-" + g.faker.LetterN(4)
			}
			return payload.New(
				payload.P("value", payload.Int(-1)),
				payload.P("goal_id", payload.String(id)),
			)
		}
		id := fmt.Sprintf("%08x", g.faker.Uint32())
		g.goalIDs = append(g.goalIDs, id)
		return payload.New(
			payload.P("value", payload.Int(1)),
			payload.P("goal_id", payload.String(id)),
			payload.P("time", payload.String(fmt.Sprintf("%d:%02d", g.faker.IntRange(0, 19), g.faker.IntRange(0, 59)))),
			payload.P("scorer_id", payload.OptString(g.player())),
			payload.P("assist1_id", payload.Null{}),
			payload.P("assist2_id", payload.Null{}),
		)

	case "ROSTER_INITIALIZED":
		players := payload.Array{}
		for range g.faker.IntRange(1, 6) {
			id := g.newPlayer()
			status := "active"
			if g.faker.IntRange(0, 3) == 0 {
				status = "scratched"
			}
			players = append(players, payload.New(
				payload.P("player_id", payload.String(id)),
				payload.P("status", payload.String(status)),
				payload.P("name", payload.String(g.faker.LastName())),
				payload.P("number", payload.Int(g.faker.IntRange(1, 99))),
			))
		}
		return payload.New(
			payload.P("team", payload.String(g.team())),
			payload.P("players", players),
		)

	case "ROSTER_PLAYER_SCRATCHED", "ROSTER_PLAYER_ACTIVATED":
		return payload.New(
			payload.P("team", payload.String(g.team())),
			payload.P("player_id", payload.String(g.player())),
		)

	case "SCORE_CHANGE":
		return payload.New(
			payload.P("team", payload.String(g.team())),
			payload.P("score", payload.Int(g.faker.IntRange(0, 9))),
		)

	default:
		return payload.Empty()
	}
}

func (g *EventGenerator) team() string {
	if g.faker.Bool() {
		return "home"
	}
	return "away"
}

func (g *EventGenerator) newPlayer() string {
	id := fmt.Sprintf("p%d", g.faker.IntRange(1, 999))
	g.players = append(g.players, id)
	return id
}

// player returns a known player id, or "" when none exist yet.
func (g *EventGenerator) player() string {
	if len(g.players) == 0 {
		return ""
	}
	return g.faker.RandomString(g.players)
}
