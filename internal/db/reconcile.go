package db

import (
	"context"

	"github.com/tasksync/tasksync/internal/schema"
)

// Reconcile applies an incoming batch with last-write-wins semantics inside
// a single transaction. It is the server-side half of the sync protocol.
//
// Each task is stored (as synced) when its id is unknown or when it is
// strictly newer than the stored copy; ties keep the stored copy. Each
// tombstone deletes the stored copy when the deletion is strictly newer.
// Returns the tasks actually written, in batch order, and the ids actually
// deleted.
func (db *DB) Reconcile(ctx context.Context, tasks []*schema.Task, tombstones []schema.Tombstone) ([]*schema.Task, []string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	updated := []*schema.Task{}
	for _, task := range tasks {
		synced := task.Synced()
		query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			is_completed = excluded.is_completed,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			is_synced = excluded.is_synced
		WHERE excluded.updated_at > tasks.updated_at
		`
		res, err := tx.ExecContext(ctx, query, taskArgs(synced)...)
		if err != nil {
			return nil, nil, storageErr("reconcile task "+task.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, nil, storageErr("reconcile task "+task.ID, err)
		}
		if n > 0 {
			updated = append(updated, synced)
		}
	}

	removed := []string{}
	for _, ts := range tombstones {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND updated_at < ?`,
			ts.ID, schema.FormatTime(ts.DeletedAt))
		if err != nil {
			return nil, nil, storageErr("apply tombstone "+ts.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, nil, storageErr("apply tombstone "+ts.ID, err)
		}
		if n > 0 {
			removed = append(removed, ts.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storageErr("commit reconcile", err)
	}
	return updated, removed, nil
}
