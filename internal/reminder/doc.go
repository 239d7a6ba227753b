// Package reminder implements the deadline-reminder scheduling core.
//
// # Overview
//
// A Reminder is a durable record naming a deadline and a fire time. The
// Registry owns record lifecycle (register, cancel, list); the engine turns
// each live reminder into one cancellable timing task that invokes the
// delivery callback exactly once at its fire time; Startup reconciles the
// durable store after a restart before any new registration is accepted.
//
// # Delay chaining
//
// A single low-level timer is never armed for longer than the configured max
// step. Longer waits sleep in bounded hops, recomputing the remaining delay
// after each hop, so fire times weeks out survive both the timer ceiling and
// wall-clock drift.
//
// # Cancellation
//
// Cancel and a racing fire are resolved first-writer-wins on record deletion:
// whichever side deletes the record first wins, the loser's deletion is a
// no-op. A chain already inside its terminal fire step may still deliver even
// though Cancel returned true; callers must treat delivery as "may still
// occur briefly after cancel".
package reminder
