// Package health derives the delivery-worker status shown on the
// scoreboard.
//
// The status is recomputed from scratch on every control-loop tick from
// two inputs: whether the worker is alive and whether its destination has
// undelivered events. Nothing is remembered between checks, and a dead
// worker is never restarted here.
package health

import (
	"context"
	"log/slog"
)

// Status is the derived worker label.
type Status string

const (
	// Unknown means no worker is attached.
	Unknown Status = "unknown"
	// Healthy means the worker is alive and the destination is drained.
	Healthy Status = "healthy"
	// Pending means the worker is alive and events are still undelivered.
	Pending Status = "pending"
	// Dead means the worker has exited. Backlog is irrelevant.
	Dead Status = "dead"
)

// severity orders statuses for aggregation; higher is worse.
func (s Status) severity() int {
	switch s {
	case Dead:
		return 3
	case Pending:
		return 2
	case Unknown:
		return 1
	default:
		return 0
	}
}

// Probe reports whether a delivery worker is still running.
// Implemented by pusher.Worker and pusher.ProcessWorker.
type Probe interface {
	Alive() bool
}

// Backlog answers whether a destination has undelivered events.
// Implemented by *store.Store.
type Backlog interface {
	HasUndelivered(ctx context.Context, destination string) (bool, error)
}

// Monitor derives the status of one worker/destination pair.
type Monitor struct {
	destination string
	probe       Probe
	backlog     Backlog
}

// NewMonitor creates a monitor. A nil probe yields Unknown.
func NewMonitor(destination string, probe Probe, backlog Backlog) *Monitor {
	return &Monitor{destination: destination, probe: probe, backlog: backlog}
}

// Destination returns the monitored destination name.
func (m *Monitor) Destination() string {
	return m.destination
}

// Check evaluates the state machine:
//
//	no probe                 -> unknown
//	probe not alive          -> dead
//	alive, backlog           -> pending
//	alive, no backlog        -> healthy
//
// A backlog read error while alive is reported as pending.
func (m *Monitor) Check(ctx context.Context) Status {
	if m.probe == nil {
		return Unknown
	}
	if !m.probe.Alive() {
		return Dead
	}
	if m.backlog == nil {
		return Healthy
	}
	undelivered, err := m.backlog.HasUndelivered(ctx, m.destination)
	if err != nil {
		slog.Warn("health: backlog check failed",
			"destination", m.destination,
			"error", err,
		)
		return Pending
	}
	if undelivered {
		return Pending
	}
	return Healthy
}

// Report is one evaluation across all monitored destinations.
type Report struct {
	Overall      Status            `json:"overall"`
	Destinations map[string]Status `json:"destinations"`
}

// Set evaluates several monitors together.
type Set []*Monitor

// Check evaluates every monitor. Overall is the worst individual status,
// or Unknown for an empty set.
func (s Set) Check(ctx context.Context) Report {
	r := Report{Overall: Unknown, Destinations: make(map[string]Status, len(s))}
	for i, m := range s {
		st := m.Check(ctx)
		r.Destinations[m.Destination()] = st
		if i == 0 {
			r.Overall = st
		} else {
			r.Overall = Worst(r.Overall, st)
		}
	}
	return r
}

// Worst returns the most severe status: dead, then pending, then unknown,
// then healthy. Worst() is Unknown.
func Worst(statuses ...Status) Status {
	if len(statuses) == 0 {
		return Unknown
	}
	worst := statuses[0]
	for _, s := range statuses[1:] {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	return worst
}
