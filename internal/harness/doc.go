// Package harness runs replay scenarios: scripted event logs with the
// state they are expected to fold to.
//
// A scenario is a YAML file:
//
//	name: start_pause
//	description: clock runs between start and pause
//	start: 1000
//	game_id: g1
//	events:
//	  - {at: 0, type: CLOCK_SET, payload: {seconds: 1200}}
//	  - {at: 0, type: GAME_STARTED}
//	  - {at: 60, type: GAME_PAUSED}
//	query_at: 90
//	expect:
//	  seconds: 1140
//	  running: false
//
// Run appends each event to a fresh in-memory store with the clock set to
// start+at, replays the game's log, projects it to start+query_at and
// compares the result with expect. Only the fields present in expect are
// checked.
//
// RunWithGolden additionally snapshots the full projected state as
// canonical JSON under testdata/golden, so any change to replay output is
// visible in review. Regenerate with:
//
//	go test ./internal/harness -update
package harness
