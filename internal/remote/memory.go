package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

// MemoryStore keeps tasks in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*schema.Task
	order []string
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*schema.Task),
		now:   time.Now,
	}
}

// SetClock replaces the clock used to stamp creations and updates.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// List returns clones of every task in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]*schema.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*schema.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, req schema.NewTask) (*schema.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := req.Build(s.now())
	if err != nil {
		return nil, err
	}
	s.put(task)
	return task.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, schema.ErrNotFound)
	}
	task := stored.Clone()
	applyPatch(task, patch, s.now)
	s.tasks[id] = task
	return task.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (*schema.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, schema.ErrNotFound)
	}
	s.remove(id)
	return task, nil
}

// Reconcile resolves the batch under a single write lock, so a batch is
// atomic with respect to other callers.
func (s *MemoryStore) Reconcile(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &SyncResponse{Updated: []*schema.Task{}}
	for _, incoming := range req.Tasks {
		stored, ok := s.tasks[incoming.ID]
		if ok && !incoming.NewerThan(stored) {
			continue
		}
		task := incoming.Synced()
		s.put(task)
		resp.Updated = append(resp.Updated, task.Clone())
	}
	for _, ts := range req.Deleted {
		stored, ok := s.tasks[ts.ID]
		if !ok || !ts.DeletedAt.After(stored.UpdatedAt) {
			continue
		}
		s.remove(ts.ID)
		resp.Removed = append(resp.Removed, ts.ID)
	}
	return resp, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// put inserts or replaces a task. Callers hold mu.
func (s *MemoryStore) put(task *schema.Task) {
	if _, ok := s.tasks[task.ID]; !ok {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = task
}

// remove drops a task. Callers hold mu.
func (s *MemoryStore) remove(id string) {
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
