package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tasksync/tasksync/internal/schema"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type clockSetter interface {
	SetClock(now func() time.Time)
}

// backends returns a constructor per Store implementation under test.
// Neo4j runs only when TASKSYNC_TEST_NEO4J_URI is set.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	b := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "server.db"))
			if err != nil {
				t.Fatalf("OpenSQLiteStore() failed: %v", err)
			}
			return s
		},
	}
	if uri := os.Getenv("TASKSYNC_TEST_NEO4J_URI"); uri != "" {
		b["neo4j"] = func(t *testing.T) Store {
			ctx := context.Background()
			s, err := OpenNeo4jStore(ctx, Neo4jConfig{
				URI:      uri,
				User:     os.Getenv("TASKSYNC_TEST_NEO4J_USER"),
				Password: os.Getenv("TASKSYNC_TEST_NEO4J_PASSWORD"),
			})
			if err != nil {
				t.Fatalf("OpenNeo4jStore() failed: %v", err)
			}
			_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				_, err := tx.Run(ctx, "MATCH (t:Task) DETACH DELETE t", nil)
				return nil, err
			})
			if err != nil {
				t.Fatalf("failed to clear neo4j: %v", err)
			}
			return s
		}
	}
	return b
}

// eachBackend runs fn against a fresh store of every backend.
func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			if c, ok := s.(clockSetter); ok {
				c.SetClock(stepClock(t0))
			}
			fn(t, s)
		})
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func task(id, title string, updatedAt time.Time) *schema.Task {
	return &schema.Task{
		ID:        id,
		Title:     title,
		CreatedAt: t0.Add(-time.Hour),
		UpdatedAt: updatedAt,
	}
}

func titles(tasks []*schema.Task) map[string]string {
	out := make(map[string]string, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t.Title
	}
	return out
}

func TestStore_CreateAndList(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.Create(ctx, schema.NewTask{Title: "Buy milk", Description: "2L"})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if created.ID == "" {
			t.Error("Create() did not assign an id")
		}
		if created.CreatedAt.IsZero() || !created.UpdatedAt.Equal(created.CreatedAt) {
			t.Errorf("timestamps = %v / %v", created.CreatedAt, created.UpdatedAt)
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("List() returned %d tasks, want 1", len(list))
		}
		if diff := cmp.Diff(created, list[0]); diff != "" {
			t.Errorf("listed task mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStore_CreateRejectsEmptyTitle(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Create(context.Background(), schema.NewTask{Title: "   "})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})
}

func TestStore_CreateKeepsSuppliedUpdatedAt(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		stamp := t0.Add(-24 * time.Hour)
		created, err := s.Create(context.Background(), schema.NewTask{Title: "x", UpdatedAt: &stamp, IsSynced: true})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if !created.UpdatedAt.Equal(stamp) || !created.IsSynced {
			t.Errorf("Create() = %+v", created)
		}
	})
}

func TestStore_AlwaysSynced(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, schema.NewTask{Title: "from api", IsSynced: false})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if !created.IsSynced {
			t.Errorf("Create() IsSynced = false, want true")
		}

		unsynced := false
		title := "renamed"
		updated, err := s.Update(ctx, created.ID, schema.Patch{Title: &title, IsSynced: &unsynced})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if !updated.IsSynced {
			t.Errorf("Update() IsSynced = false, want true")
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 1 || !list[0].IsSynced {
			t.Errorf("List() = %+v, want one synced task", list)
		}
	})
}

func TestStore_Update(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, schema.NewTask{Title: "Draft", Description: "keep"})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		title := "Final"
		updated, err := s.Update(ctx, created.ID, schema.Patch{Title: &title})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if updated.Title != "Final" || updated.Description != "keep" {
			t.Errorf("Update() = %+v", updated)
		}
		if !updated.UpdatedAt.After(created.UpdatedAt) {
			t.Error("Update() did not refresh updatedAt")
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Error("Update() changed createdAt")
		}

		// A supplied updatedAt is kept as-is.
		stamp := t0.Add(time.Hour)
		done := false
		updated, err = s.Update(ctx, created.ID, schema.Patch{IsCompleted: &done, UpdatedAt: &stamp})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if !updated.UpdatedAt.Equal(stamp) {
			t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, stamp)
		}

		if _, err := s.Update(ctx, "missing", schema.Patch{Title: &title}); !errors.Is(err, schema.ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_UpdateFailureIsNotNotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		created, err := s.Create(context.Background(), schema.NewTask{Title: "present"})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		title := "renamed"
		_, err = s.Update(ctx, created.ID, schema.Patch{Title: &title})
		if err == nil {
			t.Fatal("Update() with canceled context succeeded")
		}
		if errors.Is(err, schema.ErrNotFound) {
			t.Errorf("Update() error = %v, want a failure other than ErrNotFound", err)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, schema.NewTask{Title: "Gone soon"})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		deleted, err := s.Delete(ctx, created.ID)
		if err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if deleted.ID != created.ID || deleted.Title != "Gone soon" {
			t.Errorf("Delete() = %+v", deleted)
		}

		if _, err := s.Delete(ctx, created.ID); !errors.Is(err, schema.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("List() after delete = %d tasks", len(list))
		}
	})
}

func TestStore_ReconcileLastWriteWins(t *testing.T) {
	tests := []struct {
		name        string
		stored      *schema.Task
		incoming    *schema.Task
		wantUpdated bool
		wantTitle   string
	}{
		{
			name:        "absent is inserted",
			incoming:    task("a", "local", t0),
			wantUpdated: true,
			wantTitle:   "local",
		},
		{
			name:        "strictly newer overwrites",
			stored:      task("a", "remote", t0),
			incoming:    task("a", "local", t0.Add(time.Millisecond)),
			wantUpdated: true,
			wantTitle:   "local",
		},
		{
			name:      "tie keeps remote",
			stored:    task("a", "remote", t0),
			incoming:  task("a", "local", t0),
			wantTitle: "remote",
		},
		{
			name:      "older is ignored",
			stored:    task("a", "remote", t0),
			incoming:  task("a", "local", t0.Add(-time.Minute)),
			wantTitle: "remote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eachBackend(t, func(t *testing.T, s Store) {
				ctx := context.Background()
				if tt.stored != nil {
					if _, err := s.Reconcile(ctx, SyncRequest{Tasks: []*schema.Task{tt.stored}}); err != nil {
						t.Fatalf("seeding Reconcile() failed: %v", err)
					}
				}

				resp, err := s.Reconcile(ctx, SyncRequest{Tasks: []*schema.Task{tt.incoming}})
				if err != nil {
					t.Fatalf("Reconcile() failed: %v", err)
				}
				if got := len(resp.Updated) == 1; got != tt.wantUpdated {
					t.Errorf("updated = %v, want %v", resp.Updated, tt.wantUpdated)
				}
				if tt.wantUpdated {
					want := tt.incoming.Synced()
					if diff := cmp.Diff(want, resp.Updated[0]); diff != "" {
						t.Errorf("updated task (-want +got):\n%s", diff)
					}
				}

				list, err := s.List(ctx)
				if err != nil {
					t.Fatalf("List() failed: %v", err)
				}
				if len(list) != 1 {
					t.Fatalf("List() returned %d tasks, want 1", len(list))
				}
				if list[0].Title != tt.wantTitle {
					t.Errorf("stored title = %q, want %q", list[0].Title, tt.wantTitle)
				}
				if !list[0].IsSynced {
					t.Error("stored task must be synced")
				}
			})
		})
	}
}

func TestStore_ReconcileIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		req := SyncRequest{Tasks: []*schema.Task{task("a", "A", t0), task("b", "B", t0)}}

		first, err := s.Reconcile(ctx, req)
		if err != nil {
			t.Fatalf("Reconcile() failed: %v", err)
		}
		if len(first.Updated) != 2 {
			t.Errorf("first push updated %d, want 2", len(first.Updated))
		}
		before, _ := s.List(ctx)

		second, err := s.Reconcile(ctx, req)
		if err != nil {
			t.Fatalf("Reconcile() failed: %v", err)
		}
		if len(second.Updated) != 0 {
			t.Errorf("second push updated %d, want 0", len(second.Updated))
		}
		after, _ := s.List(ctx)

		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("remote state changed on repeated push (-first +second):\n%s", diff)
		}
	})
}

func TestStore_ReconcileOrderAndIndependence(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Reconcile(ctx, SyncRequest{Tasks: []*schema.Task{task("b", "remote-b", t0.Add(time.Hour))}}); err != nil {
			t.Fatalf("seeding failed: %v", err)
		}

		resp, err := s.Reconcile(ctx, SyncRequest{Tasks: []*schema.Task{
			task("c", "C", t0),
			task("b", "stale-b", t0),
			task("a", "A", t0),
		}})
		if err != nil {
			t.Fatalf("Reconcile() failed: %v", err)
		}
		var ids []string
		for _, u := range resp.Updated {
			ids = append(ids, u.ID)
		}
		if diff := cmp.Diff([]string{"c", "a"}, ids); diff != "" {
			t.Errorf("updated order (-want +got):\n%s", diff)
		}

		list, _ := s.List(ctx)
		want := map[string]string{"a": "A", "b": "remote-b", "c": "C"}
		if diff := cmp.Diff(want, titles(list)); diff != "" {
			t.Errorf("stored titles (-want +got):\n%s", diff)
		}
	})
}

func TestStore_ReconcileTombstones(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed := SyncRequest{Tasks: []*schema.Task{
			task("stale", "x", t0),
			task("fresh", "x", t0.Add(time.Hour)),
			task("tie", "x", t0),
		}}
		if _, err := s.Reconcile(ctx, seed); err != nil {
			t.Fatalf("seeding failed: %v", err)
		}

		resp, err := s.Reconcile(ctx, SyncRequest{Deleted: []schema.Tombstone{
			{ID: "stale", DeletedAt: t0.Add(time.Minute)},
			{ID: "fresh", DeletedAt: t0.Add(time.Minute)},
			{ID: "tie", DeletedAt: t0},
			{ID: "unknown", DeletedAt: t0},
		}})
		if err != nil {
			t.Fatalf("Reconcile() failed: %v", err)
		}
		if diff := cmp.Diff([]string{"stale"}, resp.Removed); diff != "" {
			t.Errorf("removed (-want +got):\n%s", diff)
		}

		list, _ := s.List(ctx)
		want := map[string]string{"fresh": "x", "tie": "x"}
		if diff := cmp.Diff(want, titles(list)); diff != "" {
			t.Errorf("remaining (-want +got):\n%s", diff)
		}
	})
}

func TestStore_ReconcileRejectsInvalidBatch(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Reconcile(ctx, SyncRequest{Tasks: []*schema.Task{
			task("ok", "fine", t0),
			task("bad", "", t0),
		}})
		if !errors.Is(err, schema.ErrValidation) {
			t.Fatalf("Reconcile() error = %v, want ErrValidation", err)
		}

		list, _ := s.List(ctx)
		if len(list) != 0 {
			t.Errorf("rejected batch wrote %d tasks", len(list))
		}
	})
}

func TestSyncRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SyncRequest
		wantErr bool
	}{
		{"empty", SyncRequest{}, false},
		{"valid", SyncRequest{Tasks: []*schema.Task{task("a", "A", t0)}, Deleted: []schema.Tombstone{{ID: "b", DeletedAt: t0}}}, false},
		{"null task", SyncRequest{Tasks: []*schema.Task{nil}}, true},
		{"tombstone without id", SyncRequest{Deleted: []schema.Tombstone{{DeletedAt: t0}}}, true},
		{"tombstone without time", SyncRequest{Deleted: []schema.Tombstone{{ID: "b"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, schema.ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, schema.NewTask{Title: "Original"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	created.Title = "mutated by caller"

	list, _ := s.List(ctx)
	list[0].Title = "mutated again"

	list, _ = s.List(ctx)
	if list[0].Title != "Original" {
		t.Errorf("store state leaked to caller: %q", list[0].Title)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("List() error = %v, want context.Canceled", err)
	}
}
