package pusher

import (
	"context"

	"github.com/roach88/scoreclock/internal/store"
)

// Destination accepts events. Deliver returns nil only once the event is
// durably accepted; any error marks the attempt failed.
//
// Name is the key delivery outcomes are recorded under. Two destinations
// with the same name share one delivery record.
type Destination interface {
	Name() string
	Deliver(ctx context.Context, ev store.Event) error
}

// Closer is implemented by destinations holding connections.
type Closer interface {
	Close() error
}
