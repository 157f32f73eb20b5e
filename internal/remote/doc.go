// Package remote defines the authoritative, shared task store and its
// implementations.
//
// # Backends
//
// Store is implemented by:
//   - MemoryStore: process-local map, the default for `tasksync serve`
//   - SQLiteStore: persistent, backed by internal/db
//   - Neo4jStore: tasks as (:Task) nodes in a Neo4j graph
//   - Client: the HTTP API served by internal/server, used by devices
//
// # Reconcile
//
// Reconcile is the batch-sync operation devices push to. Every task in the
// batch is resolved independently by last-write-wins on UpdatedAt:
//
//	absent remotely            -> insert (synced), reported as updated
//	incoming strictly newer    -> overwrite (synced), reported as updated
//	same age or remote newer   -> no change, not reported
//
// Tombstones in the same request delete the stored copy only when the
// deletion is strictly newer than its UpdatedAt. Unknown ids are ignored.
//
// A batch containing an invalid task is rejected as a whole with
// schema.ErrValidation before anything is written.
package remote
