package migrate

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sampleTasks() []*schema.Task {
	return []*schema.Task{
		{ID: "a1", Title: "Buy milk", Description: "2 litres", CreatedAt: base, UpdatedAt: base.Add(time.Hour), IsSynced: true},
		{ID: "b2", Title: "File taxes", IsCompleted: true, CreatedAt: base, UpdatedAt: base.Add(123456789 * time.Nanosecond)},
	}
}

// setupTestDB creates a local store in a temporary directory.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	return database
}

func TestWriteRead_AllFormats(t *testing.T) {
	for _, format := range []string{FormatJSONL, FormatJSON, FormatYAML, FormatTOML} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteDocument(&buf, format, sampleTasks()); err != nil {
				t.Fatalf("WriteDocument() failed: %v", err)
			}

			got, err := ReadDocument(&buf, format)
			if err != nil {
				t.Fatalf("ReadDocument() failed: %v", err)
			}
			if diff := cmp.Diff(sampleTasks(), got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteDocument_JSONUsesWireNames(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocument(&buf, FormatJSON, sampleTasks()); err != nil {
		t.Fatalf("WriteDocument() failed: %v", err)
	}
	for _, want := range []string{`"tasks"`, `"isCompleted": true`, `"updatedAt"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("JSON export missing %s:\n%s", want, buf.String())
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	if err := WriteDocument(&bytes.Buffer{}, "xml", nil); err == nil {
		t.Error("WriteDocument(xml) succeeded")
	}
	if _, err := ReadDocument(strings.NewReader(""), "xml"); err == nil {
		t.Error("ReadDocument(xml) succeeded")
	}
}

func TestReadJSONL(t *testing.T) {
	input := `{"id":"a","title":"One","createdAt":"2026-03-10T12:00:00Z","updatedAt":"2026-03-10T12:00:00Z"}

{"id":"b","title":"Two","createdAt":"2026-03-10T12:00:00Z","updatedAt":"2026-03-10T12:00:00Z"}
`
	tasks, err := ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL() failed: %v", err)
	}
	if len(tasks) != 2 || tasks[1].Title != "Two" {
		t.Errorf("ReadJSONL() = %+v", tasks)
	}

	_, err = ReadJSONL(strings.NewReader("{\"id\":\"a\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadJSONL(bad) error = %v, want line 2", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"tasks.jsonl":   FormatJSONL,
		"tasks.ndjson":  FormatJSONL,
		"Tasks.JSON":    FormatJSON,
		"tasks.yml":     FormatYAML,
		"tasks.yaml":    FormatYAML,
		"tasks.toml":    FormatTOML,
		"tasks.txt":     "",
		"no-extension":  "",
	}
	for path, want := range tests {
		got, ok := FormatFromPath(path)
		if got != want || ok != (want != "") {
			t.Errorf("FormatFromPath(%q) = %q, %v", path, got, ok)
		}
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	// Local copy of a1 is newer than the import; b2 is older.
	if err := database.Upsert(ctx, &schema.Task{ID: "a1", Title: "Local", CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour), IsSynced: true}); err != nil {
		t.Fatal(err)
	}
	if err := database.Upsert(ctx, &schema.Task{ID: "b2", Title: "Old", CreatedAt: base, UpdatedAt: base, IsSynced: true}); err != nil {
		t.Fatal(err)
	}

	incoming := append(sampleTasks(),
		&schema.Task{Title: "  No id  "},
		&schema.Task{ID: "bad", Title: ""},
	)

	res, err := Import(ctx, database, incoming, ImportOptions{Now: func() time.Time { return base }})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	if res.Read != 4 || res.Imported != 2 || res.Skipped != 1 || len(res.Errors) != 1 {
		t.Errorf("Import() = %+v", res)
	}

	a1, _ := database.Get(ctx, "a1")
	if a1.Title != "Local" {
		t.Errorf("newer local copy was overwritten: %+v", a1)
	}
	b2, _ := database.Get(ctx, "b2")
	if b2.Title != "File taxes" || b2.IsSynced {
		t.Errorf("b2 = %+v, want imported and unsynced", b2)
	}

	all, _ := database.ListAll(ctx)
	var fresh *schema.Task
	for _, task := range all {
		if task.Title == "No id" {
			fresh = task
		}
	}
	if fresh == nil || fresh.ID == "" || !fresh.CreatedAt.Equal(base) || !fresh.UpdatedAt.Equal(base) {
		t.Errorf("task without id = %+v", fresh)
	}
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	res, err := Import(ctx, database, sampleTasks(), ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("Imported = %d, want 2", res.Imported)
	}
	if _, err := database.Get(ctx, "a1"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("dry run wrote a task: %v", err)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*schema.Task, error) {
	return nil, schema.ErrStorage
}

func (failingStore) Upsert(context.Context, *schema.Task) error {
	return schema.ErrStorage
}

func TestImport_StorageFailureAborts(t *testing.T) {
	_, err := Import(context.Background(), failingStore{}, sampleTasks(), ImportOptions{})
	if !errors.Is(err, schema.ErrStorage) {
		t.Errorf("Import() error = %v, want ErrStorage", err)
	}
}
