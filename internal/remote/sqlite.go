package remote

import (
	"context"
	"time"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
)

// SQLiteStore persists the remote task list in an embedded SQLite file.
type SQLiteStore struct {
	db  *db.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := conn.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SQLiteStore{db: conn, now: time.Now}, nil
}

// SetClock replaces the clock used to stamp creations and updates.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) List(ctx context.Context) ([]*schema.Task, error) {
	return s.db.ListAll(ctx)
}

func (s *SQLiteStore) Create(ctx context.Context, req schema.NewTask) (*schema.Task, error) {
	task, err := req.Build(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.db.Upsert(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.db.Modify(ctx, id, func(task *schema.Task) (bool, error) {
		applyPatch(task, patch, s.now)
		return true, nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (*schema.Task, error) {
	return s.db.Take(ctx, id)
}

func (s *SQLiteStore) Reconcile(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	updated, removed, err := s.db.Reconcile(ctx, req.Tasks, req.Deleted)
	if err != nil {
		return nil, err
	}
	resp := &SyncResponse{Updated: updated}
	if len(removed) > 0 {
		resp.Removed = removed
	}
	return resp, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
