// Package store keeps a SQLite history of templater runs.
//
// Each run is one row in runs plus one row per candidate case in
// case_outcomes, written in a single transaction. Rows are never updated.
//
// # Ordering
//
// Runs are ordered by seq, the insertion counter, never by timestamps, so
// listings stay stable when clocks disagree. Outcomes keep the order the
// run processed them in (position).
//
// # Database Configuration
//
// Set per connection through the DSN:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait on lock contention
//   - foreign_keys=ON: outcomes always reference a run
//
// user_version records the last applied migration.
package store
