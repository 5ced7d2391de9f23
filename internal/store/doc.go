// Package store provides SQLite-backed durable storage for AMPA audit state.
//
// The store holds two tables:
//   - cooldowns: last audit time per (job, item), one row each
//   - audit_runs: append-only ledger of audit cycles and their outcomes
//
// # Ordering
//
// Ledger reads order by seq DESC, id ASC COLLATE BINARY so that history is
// stable across calls even when two runs share a start timestamp.
//
// # Timestamps
//
// All timestamps are stored as RFC 3339 TEXT in UTC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// *Store satisfies cooldown.StateStore, so it can back the candidate
// selector directly.
package store
