// Package dispatch serializes work per key (a group code) while letting
// different keys proceed in parallel.
//
// ARCHITECTURE:
//
// Single-Consumer Lanes:
// Each key owns a lane: a FIFO task queue drained by exactly one goroutine.
// Everything submitted under one key runs one task at a time, in submission
// order. This ensures, for one group:
//   - A mutation's duplicate check, store write and broadcast complete
//     before the next mutation of that group starts
//   - A join's registration and snapshot cannot interleave with a mutation
//   - Every member observes that group's events in the same order
//
// Lanes are created on first Submit and retire as soon as their queue is
// empty, so idle groups cost nothing.
//
// Cancellation:
// Once submitted, a task always runs to completion. The caller's context
// only bounds how long Do waits; the task receives a context that keeps the
// caller's values but is never cancelled by it.
package dispatch
