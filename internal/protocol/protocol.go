// Package protocol defines the JSON messages exchanged between a device
// and the cloud aggregator.
package protocol

import (
	"fmt"
	"time"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// Event is one log entry as sent to the aggregator.
type Event struct {
	EventID string         `json:"event_id"`
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	TSLocal string         `json:"ts_local"`
	Payload payload.Object `json:"payload"`
}

// SubmitRequest is the body of POST /v1/games/{game_id}/events.
type SubmitRequest struct {
	DeviceID  string  `json:"device_id"`
	SessionID string  `json:"session_id"`
	Events    []Event `json:"events"`
}

// SubmitResponse acknowledges the contiguous prefix of a submission.
type SubmitResponse struct {
	AckedThrough int64  `json:"acked_through"`
	ServerTime   string `json:"server_time"`
}

// Heartbeat is the body of POST /v1/heartbeat.
type Heartbeat struct {
	DeviceID      string `json:"device_id"`
	CurrentGameID string `json:"current_game_id,omitempty"`
	GameState     string `json:"game_state,omitempty"`
	ClockRunning  bool   `json:"clock_running"`
	ClockValueMS  int64  `json:"clock_value_ms"`
	LastEventSeq  int64  `json:"last_event_seq"`
	AppVersion    string `json:"app_version,omitempty"`
	PusherStatus  string `json:"pusher_status,omitempty"`
	TSLocal       string `json:"ts_local"`
}

// HeartbeatResponse is the reply to a heartbeat.
type HeartbeatResponse struct {
	Status     string `json:"status"`
	ServerTime string `json:"server_time"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// Game states reported in heartbeats.
const (
	GameStateRunning = "running"
	GameStatePaused  = "paused"
	GameStateIdle    = "idle"
)

// EventID is the globally unique id of a device event: "{device}-{id}".
func EventID(deviceID string, id int64) string {
	return fmt.Sprintf("%s-%d", deviceID, id)
}

// FormatTime renders a unix second as RFC 3339 in UTC.
func FormatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// ParseTime parses an RFC 3339 timestamp (fractional seconds allowed)
// into a unix second.
func ParseTime(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.Unix(), nil
}

// FromStore converts a stored event. Seq is the device-local event id.
func FromStore(deviceID string, ev store.Event) Event {
	p := ev.Payload
	if p == nil {
		p = payload.Empty()
	}
	return Event{
		EventID: EventID(deviceID, ev.ID),
		Seq:     ev.ID,
		Type:    ev.Type,
		TSLocal: FormatTime(ev.CreatedAt),
		Payload: p,
	}
}
