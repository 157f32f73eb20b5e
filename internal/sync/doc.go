// Package sync reconciles a device's local task store with the remote store.
//
// # Overview
//
// A sync run has two ordered phases. Push always finishes before pull
// starts, and a failure in one phase never prevents the other:
//
//	Local DB ──push──▶ remote Reconcile   (unsynced tasks + tombstones)
//	Local DB ◀──pull── remote List        (every remote task, marked synced)
//
// # Push
//
//  1. List local tasks and keep those with IsSynced == false.
//  2. List pending tombstones (local deletions).
//  3. Nothing to send: the phase ends without a network call.
//  4. Send both in one Reconcile request. The remote resolves each task by
//     last-write-wins on UpdatedAt, ties keeping the remote copy.
//  5. Every pushed task is marked synced locally, whether or not the
//     remote kept it: its fate is resolved either way, and a losing copy
//     is overwritten by the pull that follows. A task is only marked if
//     its stored UpdatedAt still equals the pushed one; an edit saved
//     while Reconcile was in flight stays unsynced for the next push.
//  6. Sent tombstones are cleared.
//
// # Pull
//
//  1. List every remote task.
//  2. Upsert each one locally with IsSynced == true. This overwrites the
//     local copy unconditionally, including edits made after the push.
//  3. Ids that still have a pending tombstone are skipped, so a deletion
//     whose push failed is not undone.
//
// Pull never deletes: tasks present only locally stay untouched.
//
// # Concurrency
//
// Overlapping FullSync calls are coalesced with singleflight: callers that
// arrive while a run is in flight wait for it and receive its result with
// Result.Shared set. Every remote call runs under Config.Timeout.
//
// User edits are only partly isolated from a run in flight. Push never
// marks an edit it did not send, but the pull still overwrites any local
// copy of a task the remote holds.
//
// # Results
//
// FullSync never returns a bare error. The Result records both phases, so
// callers can tell "push failed, pull succeeded" from full success:
//
//	res := syncer.FullSync(ctx)
//	if err := res.Err(); err != nil {
//	    log.Printf("sync incomplete: %v", err)
//	}
package sync
