package sync

import (
	"context"
	"time"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
)

// Syncer runs the push-then-pull protocol.
type Syncer interface {
	// FullSync pushes local changes, then pulls the remote list.
	//
	// Both phases are attempted even when one fails. Concurrent calls
	// share one in-flight run.
	//
	// Example:
	//   res := syncer.FullSync(ctx)
	//   fmt.Println(res)
	FullSync(ctx context.Context) *Result

	// Push sends unsynced tasks and pending tombstones to the remote store
	// and marks the sent tasks synced unless they were edited meanwhile.
	Push(ctx context.Context) PhaseResult

	// Pull copies every remote task into the local store, marked synced.
	Pull(ctx context.Context) PhaseResult
}

// LocalStore is the part of the device store a Syncer needs.
// *db.DB satisfies it.
type LocalStore interface {
	ListAll(ctx context.Context) ([]*schema.Task, error)
	Upsert(ctx context.Context, task *schema.Task) error
	MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error)
	ListTombstones(ctx context.Context) ([]schema.Tombstone, error)
	ClearTombstones(ctx context.Context, ids []string) error
}

// Remote is the part of the remote store a Syncer needs.
// Every remote.Store satisfies it.
type Remote interface {
	List(ctx context.Context) ([]*schema.Task, error)
	Reconcile(ctx context.Context, req remote.SyncRequest) (*remote.SyncResponse, error)
}
