package liveness

import (
	"context"
	"database/sql"

	"github.com/roach88/scoreclock/internal/protocol"
)

// Record is one received heartbeat.
type Record struct {
	ID            int64  `json:"id"`
	DeviceID      string `json:"device_id"`
	CurrentGameID string `json:"current_game_id,omitempty"`
	GameState     string `json:"game_state,omitempty"`
	ClockRunning  bool   `json:"clock_running"`
	ClockValueMS  int64  `json:"clock_value_ms"`
	LastEventSeq  int64  `json:"last_event_seq"`
	AppVersion    string `json:"app_version,omitempty"`
	PusherStatus  string `json:"pusher_status,omitempty"`
	TSLocal       string `json:"ts_local"`
	ReceivedAt    int64  `json:"received_at"`
}

func fromHeartbeat(hb protocol.Heartbeat, receivedAt int64) Record {
	return Record{
		DeviceID:      hb.DeviceID,
		CurrentGameID: hb.CurrentGameID,
		GameState:     hb.GameState,
		ClockRunning:  hb.ClockRunning,
		ClockValueMS:  hb.ClockValueMS,
		LastEventSeq:  hb.LastEventSeq,
		AppVersion:    hb.AppVersion,
		PusherStatus:  hb.PusherStatus,
		TSLocal:       hb.TSLocal,
		ReceivedAt:    receivedAt,
	}
}

// Store persists heartbeats.
//
// Insert appends rec to the history and makes it the device's latest
// heartbeat unless a newer one is already recorded. It returns rec with
// its history ID set.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Latest(ctx context.Context) ([]Record, error)
	History(ctx context.Context, deviceID string, limit int) ([]Record, error)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
