// Package engine derives scoreboard state from the event log and runs the
// live control loop.
//
// # Replay
//
// Replay is a pure fold over events in (created_at, id) order. It never
// reads the wall clock: a running clock is stored as an anchor
// (SecondsRemaining at LastUpdate) and Project turns that into a live
// reading for a given instant. Events the fold cannot apply (unknown
// types, cancellations of unknown goals) produce a Warning and are
// otherwise skipped, so replay never fails.
//
// # Controller
//
// Controller owns the GameState for the selected mode (clock mode or one
// game). It runs a single goroutine that:
//
//   - executes operator commands from a FIFO queue, appending each
//     resulting event to the store before folding it into state
//   - ticks at a fixed cadence, advancing a running clock, evaluating
//     delivery health, and publishing a Snapshot to observers
//
// Delivery to remote destinations never happens on this goroutine; see
// package pusher.
package engine
