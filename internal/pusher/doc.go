// Package pusher drains the local event log to delivery destinations.
//
// A Pusher polls the delivery tracker for events a destination has not
// yet accepted, attempts each one in store order, and records the outcome.
// Failed events stay eligible and are retried on the next poll, forever,
// at a fixed interval. There is no backoff and no dead-letter queue.
//
// A Pusher never shares memory with the live control loop. It runs either
// in a Worker goroutine (panics are contained and reported as a dead
// worker) or in a separate OS process via ProcessWorker. Both expose
// Alive for health.Monitor.
package pusher
