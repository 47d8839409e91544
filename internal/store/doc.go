// Package store provides SQLite-backed durable storage for the device:
// the append-only event log and the per-destination delivery tracker.
//
// # Tables
//
//   - events: immutable facts (id, type, game_id, payload, created_at).
//     Never updated or deleted.
//   - deliveries: one row per (event_id, destination) with a tri-state
//     delivered flag (0 pending, 1 success, 2 failed). A missing row is
//     treated the same as pending.
//
// # Ordering
//
// Replay reads use ORDER BY created_at ASC, id ASC. Delivery reads use
// ORDER BY id ASC, the order events were appended in.
//
// # Database Configuration
//
//   - WAL mode: the pusher reads while the control loop appends
//   - synchronous=FULL: an acknowledged append survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: deliveries must reference real events
//
// Payloads are written as canonical JSON (see internal/payload).
package store
