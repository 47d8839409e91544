package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted event log and its expected outcome.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Start is the unix time event offsets are relative to.
	Start int64 `yaml:"start"`

	// GameID is the default game for events and the game that is
	// replayed. Empty means clock mode.
	GameID string `yaml:"game_id,omitempty"`

	Events []EventStep `yaml:"events"`

	// QueryAt is the offset the state is projected to. Defaults to the
	// offset of the last event.
	QueryAt *int64 `yaml:"query_at,omitempty"`

	Expect Expect `yaml:"expect"`
}

// EventStep appends one event.
type EventStep struct {
	// At is seconds after Start. Offsets may decrease to simulate a wall
	// clock stepping backwards.
	At int64 `yaml:"at"`

	Type string `yaml:"type"`

	// GameID overrides Scenario.GameID for this event. Use "-" for a
	// clock-mode event inside a game scenario.
	GameID string `yaml:"game_id,omitempty"`

	Payload map[string]any `yaml:"payload,omitempty"`
}

// ClockModeGame marks an EventStep as clock mode.
const ClockModeGame = "-"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// queryAt returns the absolute projection time.
func (s *Scenario) queryAt() int64 {
	if s.QueryAt != nil {
		return s.Start + *s.QueryAt
	}
	var last int64
	for _, ev := range s.Events {
		last = max(last, ev.At)
	}
	return s.Start + last
}

func (e EventStep) gameID(def string) string {
	switch e.GameID {
	case "":
		return def
	case ClockModeGame:
		return ""
	}
	return e.GameID
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Start < 0 {
		return fmt.Errorf("start must be non-negative")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	for i, ev := range s.Events {
		if ev.Type == "" {
			return fmt.Errorf("events[%d]: type is required", i)
		}
		if s.Start+ev.At < 0 {
			return fmt.Errorf("events[%d]: at %d is before the epoch", i, ev.At)
		}
	}
	if s.QueryAt != nil && s.Start+*s.QueryAt < 0 {
		return fmt.Errorf("query_at is before the epoch")
	}
	for i, g := range s.Expect.Goals {
		if g.ID == "" {
			return fmt.Errorf("expect.goals[%d]: id is required", i)
		}
	}
	return nil
}
