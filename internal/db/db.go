// Package db provides the embedded SQLite store that holds tasks on a device.
//
// The database runs in embedded mode through the ncruces/go-sqlite3 driver
// (SQLite compiled to WebAssembly, no cgo) with WAL enabled so that the CLI
// can read while the sync daemon writes.
//
// Schema:
//   - tasks: one row per task, booleans stored as 0/1, timestamps stored in
//     schema.TimeLayout so string comparison is chronological
//   - tombstones: local deletions not yet propagated to the remote store
//
// The same store doubles as the persistent backend of the API server
// (see the Reconcile method), in which case the tombstones table stays empty.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tasksync/tasksync/internal/schema"
)

// DB wraps the SQLite connection with task-specific functionality.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done so that the WAL is checkpointed.
//
// Example:
//
//	store, err := db.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr("create database directory", err)
		}
	}

	// Pragmas in the DSN are applied to every pooled connection.
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open database", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storageErr("ping database", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return storageErr("close database", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tombstones (
		id TEXT PRIMARY KEY,
		deleted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_synced ON tasks(is_synced);
	CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(updated_at);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return storageErr("initialize schema", err)
	}
	return nil
}

const taskColumns = `id, title, description, is_completed, created_at, updated_at, is_synced`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListAll returns every task, oldest first.
func (db *DB) ListAll(ctx context.Context) ([]*schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListUnsynced returns the tasks with local-only changes.
func (db *DB) ListUnsynced(ctx context.Context) ([]*schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE is_synced = 0 ORDER BY updated_at ASC`)
	if err != nil {
		return nil, storageErr("list unsynced tasks", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Get retrieves a single task. Returns schema.ErrNotFound if absent.
func (db *DB) Get(ctx context.Context, id string) (*schema.Task, error) {
	return getTask(ctx, db.conn, id)
}

func getTask(ctx context.Context, q querier, id string) (*schema.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, schema.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get task "+id, err)
	}
	return task, nil
}

// Upsert inserts the task or overwrites every field of the existing row.
// Upserting an id clears any pending tombstone for it.
func (db *DB) Upsert(ctx context.Context, task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := upsertTask(ctx, tx, task); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, task.ID); err != nil {
		return storageErr("clear tombstone "+task.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit upsert", err)
	}
	return nil
}

func upsertTask(ctx context.Context, q querier, task *schema.Task) error {
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
	`

	_, err := q.ExecContext(ctx, query, taskArgs(task)...)
	if err != nil {
		return storageErr("upsert task "+task.ID, err)
	}
	return nil
}

// Remove deletes the task if present. It does not record a tombstone, so
// the deletion never reaches the remote store; see DeleteTask.
func (db *DB) Remove(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return storageErr("remove task "+id, err)
	}
	return nil
}

// CountTasks returns the number of tasks.
func (db *DB) CountTasks() (int, error) {
	return db.CountTasksContext(context.Background())
}

// CountTasksContext returns the number of tasks with context support.
func (db *DB) CountTasksContext(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM tasks`)
}

// CountUnsynced returns the number of tasks with local-only changes.
func (db *DB) CountUnsynced() (int, error) {
	return db.CountUnsyncedContext(context.Background())
}

// CountUnsyncedContext returns the unsynced count with context support.
func (db *DB) CountUnsyncedContext(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM tasks WHERE is_synced = 0`)
}

// CountPending returns unsynced tasks plus pending tombstones: the amount
// of work the next push would send.
func (db *DB) CountPending(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT (SELECT COUNT(*) FROM tasks WHERE is_synced = 0) + (SELECT COUNT(*) FROM tombstones)`)
}

func (db *DB) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*schema.Task, error) {
	var (
		task                 schema.Task
		completed, synced    int
		createdAt, updatedAt string
	)

	if err := s.Scan(&task.ID, &task.Title, &task.Description, &completed, &createdAt, &updatedAt, &synced); err != nil {
		return nil, err
	}

	var err error
	if task.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	task.IsCompleted = completed != 0
	task.IsSynced = synced != 0

	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*schema.Task, error) {
	tasks := []*schema.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storageErr("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tasks", err)
	}
	return tasks, nil
}

func taskArgs(task *schema.Task) []any {
	return []any{
		task.ID,
		task.Title,
		task.Description,
		boolToInt(task.IsCompleted),
		schema.FormatTime(task.CreatedAt),
		schema.FormatTime(task.UpdatedAt),
		boolToInt(task.IsSynced),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// storageErr wraps a driver error so callers can match schema.ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, schema.ErrStorage, err)
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
