// Package engine implements the murmur reconciliation core.
//
// The engine keeps one local view of a city's posts, vote tallies and
// comment threads consistent across three input sources: optimistic
// intents from the user, resolutions of the gateway calls those intents
// issue, and asynchronous change notifications from the backend.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Intents, call resolutions and notifications are typed events on one FIFO
// queue. Engine.Run() dequeues them one at a time and each handler runs to
// completion, so the view is never observed half-updated. Notification
// callbacks and dispatched calls only enqueue.
//
// Event Processing Flow:
//  1. Intent enqueued by the presentation layer (Submit)
//  2. Handler applies the optimistic change, then dispatches a gateway call
//  3. The call settles on a Dispatcher goroutine and enqueues a Settled event
//  4. The Settled handler confirms or rolls back
//  5. Change notifications are enqueued by the subscription callbacks and
//     merged by id
//
// After every event an immutable View is published (Snapshot, OnChange).
//
// RECONCILIATION RULES:
//
// Entity status is explicit (ir.Status) and never inferred from the id.
// A pending post or comment holds a temporary id; on acknowledgement it is
// swapped for the durable row unless that row already arrived through a
// notification, in which case the placeholder is discarded.
//
// Every insert path de-duplicates by durable id. A deleted id is
// tombstoned so a late insert notification cannot resurrect it.
//
// Optimistic deletes capture a snapshot of the post (position, tally,
// thread) before mutation and restore it if the call fails, unless the
// backend reported the row deleted in the meantime.
//
// Vote intents are two-phase: the current vote of this device is read,
// then the insert, toggle-off delete or update is applied optimistically
// and written. Own writes are recorded in an echo ledger so the matching
// notification is not applied a second time.
package engine
