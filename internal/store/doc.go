// Package store provides the SQLite-backed durable store for group inventories.
//
// The store holds two tables:
//   - items: every inventory row, tagged with its group code
//   - group_codes: every code ever issued, so a code is never reissued
//
// There is no groups table. A group exists once a code has been issued, an
// item carries it, or a live connection uses it.
//
// # Scoping
//
// Every read and write of an item is scoped to (id, group_id). An id that
// exists in another group is reported as inventory.ErrNotFound, never as a
// different group's row.
//
// # Ordering
//
// ListItems orders by name (case-insensitive) and then id so snapshots are
// deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
