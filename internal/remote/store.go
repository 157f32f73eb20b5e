package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

// Store is the remote task store.
//
// Implementations must be safe for concurrent use. Every task returned by
// List and Reconcile is marked synced from the device's point of view.
type Store interface {
	// List returns the full authoritative task list, oldest first.
	List(ctx context.Context) ([]*schema.Task, error)

	// Create stores a new task. The store assigns id and createdAt;
	// updatedAt defaults to now.
	Create(ctx context.Context, req schema.NewTask) (*schema.Task, error)

	// Update applies the present fields of patch. UpdatedAt is refreshed to
	// now unless the patch carries one. Returns schema.ErrNotFound if absent.
	Update(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error)

	// Delete removes the task and returns it. Returns schema.ErrNotFound if
	// absent.
	Delete(ctx context.Context, id string) (*schema.Task, error)

	// Reconcile resolves a pushed batch by last-write-wins.
	Reconcile(ctx context.Context, req SyncRequest) (*SyncResponse, error)

	// Close releases the backend.
	Close() error
}

// SyncRequest is the body of POST /tasks/sync.
type SyncRequest struct {
	Tasks   []*schema.Task     `json:"tasks"`
	Deleted []schema.Tombstone `json:"deleted,omitempty"`
}

// SyncResponse reports what a Reconcile actually changed.
type SyncResponse struct {
	// Updated holds the tasks inserted or overwritten, in batch order.
	Updated []*schema.Task `json:"updated"`
	// Removed holds the ids deleted by tombstones.
	Removed []string `json:"removed,omitempty"`
}

// IsEmpty reports whether the request carries nothing to reconcile.
func (r SyncRequest) IsEmpty() bool {
	return len(r.Tasks) == 0 && len(r.Deleted) == 0
}

// Validate checks every task and tombstone in the batch.
func (r SyncRequest) Validate() error {
	for i, task := range r.Tasks {
		if task == nil {
			return fmt.Errorf("%w: tasks[%d] is null", schema.ErrValidation, i)
		}
		if err := task.Validate(); err != nil {
			return fmt.Errorf("tasks[%d]: %w", i, err)
		}
	}
	for i, ts := range r.Deleted {
		if ts.ID == "" {
			return fmt.Errorf("%w: deleted[%d] has no id", schema.ErrValidation, i)
		}
		if ts.DeletedAt.IsZero() {
			return fmt.Errorf("%w: deleted[%d] has no deletedAt", schema.ErrValidation, i)
		}
	}
	return nil
}

// applyPatch applies a remote update to t: content fields, then updatedAt
// (supplied or refreshed). A remote task is always synced, so the patch's
// isSynced is ignored.
func applyPatch(t *schema.Task, patch schema.Patch, now func() time.Time) {
	patch.ApplyFields(t)
	if patch.UpdatedAt != nil {
		t.UpdatedAt = patch.UpdatedAt.UTC()
	} else {
		t.Touch(now())
	}
	t.IsSynced = true
}

// isDomainErr reports whether err already carries one of the schema
// sentinels.
func isDomainErr(err error) bool {
	return errors.Is(err, schema.ErrNotFound) ||
		errors.Is(err, schema.ErrValidation) ||
		errors.Is(err, schema.ErrStorage)
}
