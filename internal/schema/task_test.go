package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTask_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid task",
			task:    Task{ID: "t-1", Title: "Write report", CreatedAt: now, UpdatedAt: now},
			wantErr: false,
		},
		{
			name:    "missing id",
			task:    Task{Title: "Write report", CreatedAt: now, UpdatedAt: now},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "blank title",
			task:    Task{ID: "t-1", Title: "   ", CreatedAt: now, UpdatedAt: now},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			task:    Task{ID: "t-1", Title: strings.Repeat("x", MaxTitleLength+1), CreatedAt: now, UpdatedAt: now},
			wantErr: true,
			errMsg:  "title must be 100 characters or less",
		},
		{
			name:    "title at limit in multibyte characters",
			task:    Task{ID: "t-1", Title: strings.Repeat("é", MaxTitleLength), CreatedAt: now, UpdatedAt: now},
			wantErr: false,
		},
		{
			name:    "description too long",
			task:    Task{ID: "t-1", Title: "Write report", Description: strings.Repeat("d", MaxDescriptionLength+1), CreatedAt: now, UpdatedAt: now},
			wantErr: true,
			errMsg:  "description must be 500 characters or less",
		},
		{
			name:    "missing createdAt",
			task:    Task{ID: "t-1", Title: "Write report", UpdatedAt: now},
			wantErr: true,
			errMsg:  "createdAt is required",
		},
		{
			name:    "missing updatedAt",
			task:    Task{ID: "t-1", Title: "Write report", CreatedAt: now},
			wantErr: true,
			errMsg:  "updatedAt is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2026, 1, 10, 7, 36, 29, 0, time.FixedZone("CET", 3600))
	task := New("  Buy milk ", "", now)

	if task.ID == "" {
		t.Fatal("New() returned empty id")
	}
	if task.Title != "Buy milk" {
		t.Errorf("Title = %q, want %q", task.Title, "Buy milk")
	}
	if task.IsSynced {
		t.Error("new task must start unsynced")
	}
	if !task.CreatedAt.Equal(now) || !task.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", task.CreatedAt, task.UpdatedAt, now)
	}
	if task.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", task.CreatedAt.Location())
	}

	other := New("Buy milk", "", now)
	if other.ID == task.ID {
		t.Error("New() produced duplicate ids")
	}
}

func TestTask_Touch(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "clock moved forward", now: base.Add(time.Minute), want: base.Add(time.Minute)},
		{name: "same instant", now: base, want: base.Add(time.Nanosecond)},
		{name: "clock moved backwards", now: base.Add(-time.Hour), want: base.Add(time.Nanosecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{UpdatedAt: base}
			task.Touch(tt.now)
			if !task.UpdatedAt.Equal(tt.want) {
				t.Errorf("UpdatedAt = %v, want %v", task.UpdatedAt, tt.want)
			}
			if !task.UpdatedAt.After(base) {
				t.Error("Touch must strictly increase UpdatedAt")
			}
		})
	}
}

func TestTask_Synced(t *testing.T) {
	task := &Task{ID: "t-1", Title: "a"}
	synced := task.Synced()
	if !synced.IsSynced {
		t.Error("Synced() copy is not synced")
	}
	if task.IsSynced {
		t.Error("Synced() mutated the original")
	}
}

func TestTask_JSONWireFormat(t *testing.T) {
	created := time.Date(2026, 1, 10, 7, 36, 29, 123000000, time.UTC)
	task := Task{
		ID:          "abc",
		Title:       "Buy milk",
		IsCompleted: true,
		CreatedAt:   created,
		UpdatedAt:   created,
		IsSynced:    true,
	}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"id", "title", "description", "isCompleted", "createdAt", "updatedAt", "isSynced"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire format missing key %q: %s", key, data)
		}
	}

	// JavaScript clients send toISOString() output.
	js := `{"id":"abc","title":"x","description":"","isCompleted":false,` +
		`"createdAt":"2026-01-10T07:36:29.123Z","updatedAt":"2026-01-10T07:36:29.123Z","isSynced":false}`
	var decoded Task
	if err := json.Unmarshal([]byte(js), &decoded); err != nil {
		t.Fatalf("Unmarshal of JS timestamp failed: %v", err)
	}
	if !decoded.UpdatedAt.Equal(created) {
		t.Errorf("UpdatedAt = %v, want %v", decoded.UpdatedAt, created)
	}
}

func TestFormatTime_LexicalOrder(t *testing.T) {
	base := time.Date(2026, 1, 10, 7, 36, 29, 0, time.UTC)
	earlier := FormatTime(base)
	later := FormatTime(base.Add(100 * time.Millisecond))

	if !(earlier < later) {
		t.Errorf("FormatTime order broken: %q >= %q", earlier, later)
	}

	parsed, err := ParseTime(later)
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("ParseTime = %v", parsed)
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime accepted garbage")
	}
}
