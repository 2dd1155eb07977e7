// Package queue provides an unbounded, ordered hand-off between one or more
// producers and a single channel consumer.
//
// Producers never block: Push appends to an internal slice and a pump
// goroutine feeds the items, in order, to the channel returned by Out.
// The mqtt adapter uses it so paho callbacks never stall, and every
// subscription stream and status observer owns one so a slow consumer
// cannot hold up the dispatch loop.
//
// # Shutdown
//
//   - Close: no further pushes; Out is closed once the backlog is drained.
//   - Stop: no further pushes; the backlog is discarded and Out is closed
//     immediately.
//
// Either call releases the pump goroutine.
package queue
