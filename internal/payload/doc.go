// Package payload provides the constrained value types carried by game
// events.
//
// Payloads are stored as canonical JSON so that the bytes written to the
// local log, the bytes shipped to the aggregator, and the bytes replayed
// later are identical. Numbers are always int64; floats are rejected at
// every boundary because clock values and scores must fold identically on
// every machine.
//
// payload imports nothing internal.
package payload
