package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 15 * time.Second

// Config holds syncer settings.
type Config struct {
	// Timeout bounds each remote call. Zero selects DefaultTimeout.
	Timeout time.Duration

	// Logger for sync events. Nil selects a stderr logger.
	Logger *log.Logger
}

// DefaultConfig returns default syncer configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout: DefaultTimeout,
		Logger:  log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// syncer implements the Syncer interface.
type syncer struct {
	local   LocalStore
	remote  Remote
	timeout time.Duration
	logger  *log.Logger
	group   singleflight.Group
	now     func() time.Time
}

// New creates a new Syncer.
//
// The local store must have its schema initialized. If cfg is nil,
// DefaultConfig is used.
//
// Example:
//
//	database, err := db.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	client := remote.NewClient("http://localhost:3000", nil)
//	syncer := sync.New(database, client, nil)
func New(local LocalStore, rem Remote, cfg *Config) Syncer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		local:   local,
		remote:  rem,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// FullSync implements Syncer.FullSync.
//
// A caller joining an in-flight run shares that run's context: cancelling
// the joining caller's ctx does not stop it.
func (s *syncer) FullSync(ctx context.Context) *Result {
	v, _, shared := s.group.Do("fullsync", func() (any, error) {
		return s.fullSync(ctx), nil
	})
	res := *v.(*Result)
	res.Shared = shared
	return &res
}

func (s *syncer) fullSync(ctx context.Context) *Result {
	res := &Result{StartedAt: s.now()}
	s.logger.Printf("Starting full sync")

	res.Push = s.Push(ctx)
	if res.Push.Err != nil {
		s.logger.Printf("Push failed, continuing with pull: %v", res.Push.Err)
	}

	res.Pull = s.Pull(ctx)
	if res.Pull.Err != nil {
		s.logger.Printf("Pull failed: %v", res.Pull.Err)
	}

	res.Duration = time.Since(res.StartedAt)
	s.logger.Printf("Full sync complete: %s", res)
	return res
}

// Push implements Syncer.Push.
func (s *syncer) Push(ctx context.Context) PhaseResult {
	start := time.Now()
	res := PhaseResult{Phase: PhasePush}
	res.Err = s.push(ctx, &res)
	res.Duration = time.Since(start)
	return res
}

func (s *syncer) push(ctx context.Context, res *PhaseResult) error {
	all, err := s.local.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local tasks: %w", err)
	}
	unsynced := make([]*schema.Task, 0, len(all))
	for _, task := range all {
		if !task.IsSynced {
			unsynced = append(unsynced, task)
		}
	}

	tombstones, err := s.local.ListTombstones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tombstones: %w", err)
	}

	req := remote.SyncRequest{Tasks: unsynced, Deleted: tombstones}
	if req.IsEmpty() {
		return nil
	}
	res.Attempted = true
	res.Count = len(unsynced)
	res.Tombstones = len(tombstones)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, err := s.remote.Reconcile(callCtx, req)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to push %d tasks: %w", len(unsynced), err)
	}
	res.Updated = len(resp.Updated)
	res.Removed = len(resp.Removed)

	// The remote has resolved every pushed copy, accepted or not. A task
	// edited during Reconcile keeps its edit and stays unsynced.
	for _, task := range unsynced {
		marked, err := s.local.MarkSynced(ctx, task.ID, task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to mark task %s synced: %w", task.ID, err)
		}
		if !marked {
			res.Skipped++
		}
	}

	if len(tombstones) > 0 {
		ids := make([]string, len(tombstones))
		for i, ts := range tombstones {
			ids[i] = ts.ID
		}
		if err := s.local.ClearTombstones(ctx, ids); err != nil {
			return fmt.Errorf("failed to clear tombstones: %w", err)
		}
	}

	s.logger.Printf("Pushed %d tasks and %d deletions (remote accepted %d, removed %d, %d edited meanwhile)",
		res.Count, res.Tombstones, res.Updated, res.Removed, res.Skipped)
	return nil
}

// Pull implements Syncer.Pull.
func (s *syncer) Pull(ctx context.Context) PhaseResult {
	start := time.Now()
	res := PhaseResult{Phase: PhasePull, Attempted: true}
	res.Err = s.pull(ctx, &res)
	res.Duration = time.Since(start)
	return res
}

func (s *syncer) pull(ctx context.Context, res *PhaseResult) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	tasks, err := s.remote.List(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch remote tasks: %w", err)
	}
	res.Count = len(tasks)

	tombstones, err := s.local.ListTombstones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tombstones: %w", err)
	}
	pending := make(map[string]bool, len(tombstones))
	for _, ts := range tombstones {
		pending[ts.ID] = true
	}

	for _, task := range tasks {
		if pending[task.ID] {
			res.Skipped++
			continue
		}
		if err := s.local.Upsert(ctx, task.Synced()); err != nil {
			return fmt.Errorf("failed to store pulled task %s: %w", task.ID, err)
		}
		res.Updated++
	}

	s.logger.Printf("Pulled %d tasks (wrote %d, skipped %d pending deletions)", res.Count, res.Updated, res.Skipped)
	return nil
}
