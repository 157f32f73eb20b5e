package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

// SetClock replaces the clock used to stamp mutations.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// CreateTask stores a new unsynced task.
func (db *DB) CreateTask(ctx context.Context, title, description string) (*schema.Task, error) {
	if err := schema.ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := schema.ValidateDescription(description); err != nil {
		return nil, err
	}
	task := schema.New(title, description, db.now())
	if err := db.Upsert(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies the content fields of patch, re-stamps UpdatedAt and
// marks the task unsynced. A patch that changes nothing leaves the row alone.
func (db *DB) UpdateTask(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return db.Modify(ctx, id, func(task *schema.Task) (bool, error) {
		if !patch.ApplyFields(task) {
			return false, nil
		}
		task.Touch(db.now())
		task.IsSynced = false
		return true, nil
	})
}

// Modify runs fn against the stored task inside one transaction and writes
// the result back when fn reports a change. Returns schema.ErrNotFound if
// the task does not exist.
func (db *DB) Modify(ctx context.Context, id string, fn func(task *schema.Task) (bool, error)) (*schema.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	task, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	changed, err := fn(task)
	if err != nil {
		return nil, err
	}
	if !changed {
		return task, nil
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	if err := upsertTask(ctx, tx, task); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit update", err)
	}
	return task, nil
}

// MarkSynced sets IsSynced on the task only if its stored UpdatedAt still
// equals updatedAt. Reports whether the task was marked; a task that was
// edited or deleted since is left alone.
func (db *DB) MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	marked := false
	_, err := db.Modify(ctx, id, func(task *schema.Task) (bool, error) {
		if !task.UpdatedAt.Equal(updatedAt) || task.IsSynced {
			return false, nil
		}
		task.IsSynced = true
		marked = true
		return true, nil
	})
	if errors.Is(err, schema.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return marked, nil
}

// DeleteTask removes the task and records a tombstone so the deletion is
// pushed on the next sync. Returns the removed task, or schema.ErrNotFound.
func (db *DB) DeleteTask(ctx context.Context, id string) (*schema.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	task, err := takeTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// The tombstone must outrank the copy we just removed.
	deletedAt := db.now().UTC()
	if !deletedAt.After(task.UpdatedAt) {
		deletedAt = task.UpdatedAt.Add(time.Nanosecond)
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO tombstones (id, deleted_at) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at
	`, id, schema.FormatTime(deletedAt))
	if err != nil {
		return nil, storageErr("record tombstone "+id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit delete", err)
	}
	return task, nil
}

// Take removes the task without recording a tombstone and returns it.
// Returns schema.ErrNotFound if absent. The API server uses this for
// DELETE /tasks/{id}.
func (db *DB) Take(ctx context.Context, id string) (*schema.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	task, err := takeTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit delete", err)
	}
	return task, nil
}

func takeTask(ctx context.Context, q querier, id string) (*schema.Task, error) {
	task, err := getTask(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, storageErr("delete task "+id, err)
	}
	return task, nil
}

// ListTombstones returns pending deletions, oldest first.
func (db *DB) ListTombstones(ctx context.Context) ([]schema.Tombstone, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, deleted_at FROM tombstones ORDER BY deleted_at ASC`)
	if err != nil {
		return nil, storageErr("list tombstones", err)
	}
	defer rows.Close()

	tombstones := []schema.Tombstone{}
	for rows.Next() {
		var (
			ts        schema.Tombstone
			deletedAt string
		)
		if err := rows.Scan(&ts.ID, &deletedAt); err != nil {
			return nil, storageErr("scan tombstone", err)
		}
		if ts.DeletedAt, err = schema.ParseTime(deletedAt); err != nil {
			return nil, storageErr("scan tombstone", err)
		}
		tombstones = append(tombstones, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tombstones", err)
	}
	return tombstones, nil
}

// ClearTombstones forgets the given pending deletions.
func (db *DB) ClearTombstones(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `DELETE FROM tombstones WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return storageErr("clear tombstones", err)
	}
	return nil
}
