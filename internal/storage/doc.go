// Package storage persists reminder records across restarts.
//
// The contract is a keyed record store: per-record atomic Put/Delete/Get plus
// ListAll for the recovery pass. No business logic lives here; the scheduler
// core decides what records mean.
//
// Drivers:
//   - "sqlite" (default): one row per reminder, WAL journal.
//   - "file": append-only JSON-lines journal with periodic snapshot
//     compaction; corrupt journal lines are skipped on load.
package storage
