// Package tasks tracks long-running analysis jobs and keeps their status current.
//
// # Tracker
//
// [Tracker] holds the set of submitted tasks, keyed by task id. Registration is idempotent
// (first write wins), updates merge fields and removal deletes; all three are no-ops for unknown
// ids. Every mutation is written through the [Store] port, and the set is loaded from it once
// when the tracker is built. Unreadable stored data is logged as a [StorageError] and replaced by
// an empty set.
//
// # Poll Loop
//
// The loop runs only while at least one task is pending or processing. It starts when the
// active count goes from zero to non-zero and is cancelled when it drops back to zero or the
// tracker is closed. On every tick the active tasks are snapshotted and their status endpoints
// are requested through a bounded worker pool behind a rate limiter. Each request has its own
// timeout. A task already being requested is skipped by later ticks until its request returns.
//
// Results are per-task overwrites:
//   - a different status replaces status, message, result id and error message
//   - a 404 marks the task failed with "Task not found" ([TaskNotFoundError])
//   - anything else is a [PollTransientError]: logged and retried on the next tick
//
// Results for tasks that were removed or reached a terminal status meanwhile are dropped.
//
// # Events
//
// [Tracker.Subscribe] delivers [Event] values for every change. Delivery never blocks the
// tracker: a full subscriber channel misses the event.
package tasks
