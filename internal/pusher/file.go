package pusher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/roach88/scoreclock/internal/payload"
	"github.com/roach88/scoreclock/internal/store"
)

// fileRecord is one JSONL line.
type fileRecord struct {
	EventID   int64          `json:"event_id"`
	Type      string         `json:"event_type"`
	GameID    string         `json:"game_id,omitempty"`
	Payload   payload.Object `json:"event_payload"`
	Timestamp int64          `json:"event_timestamp"`
}

// FileDestination appends events as JSON lines to a local file.
type FileDestination struct {
	name string
	path string
}

// NewFileDestination creates a destination for path. An empty name
// defaults to the path.
func NewFileDestination(name, path string) *FileDestination {
	if name == "" {
		name = path
	}
	return &FileDestination{name: name, path: path}
}

// Name implements Destination.
func (d *FileDestination) Name() string { return d.name }

// Deliver appends one line and fsyncs before returning.
func (d *FileDestination) Deliver(_ context.Context, ev store.Event) error {
	p := ev.Payload
	if p == nil {
		p = payload.Empty()
	}
	line, err := json.Marshal(fileRecord{
		EventID:   ev.ID,
		Type:      ev.Type,
		GameID:    ev.GameID,
		Payload:   p,
		Timestamp: ev.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", d.path, err)
	}
	return f.Close()
}
