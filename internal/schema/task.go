package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Length limits, counted in characters.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// TimeLayout is the fixed-width UTC layout used for persisted timestamps.
// Unlike time.RFC3339Nano it never trims trailing zeros, so string
// comparison orders timestamps chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Task is the sole entity of the system.
type Task struct {
	ID          string    `json:"id" yaml:"id" toml:"id"`
	Title       string    `json:"title" yaml:"title" toml:"title"`
	Description string    `json:"description" yaml:"description" toml:"description"`
	IsCompleted bool      `json:"isCompleted" yaml:"is_completed" toml:"is_completed"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at" toml:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updated_at" toml:"updated_at"`

	// IsSynced is true when the local copy is known to match the remote copy
	// as of UpdatedAt. The remote side always reports true.
	IsSynced bool `json:"isSynced" yaml:"is_synced" toml:"is_synced"`
}

// NewID returns a fresh globally unique task identifier.
func NewID() string {
	return uuid.NewString()
}

// New creates an unsynced task stamped with now.
func New(title, description string, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:          NewID(),
		Title:       strings.TrimSpace(title),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if err := ValidateDescription(t.Description); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("%w: createdAt is required", ErrValidation)
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: updatedAt is required", ErrValidation)
	}
	return nil
}

// ValidateTitle rejects empty and oversized titles.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return fmt.Errorf("%w: title must be %d characters or less (got %d)", ErrValidation, MaxTitleLength, n)
	}
	return nil
}

// ValidateDescription rejects oversized descriptions. Empty is fine.
func ValidateDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be %d characters or less (got %d)", ErrValidation, MaxDescriptionLength, n)
	}
	return nil
}

// Touch stamps UpdatedAt for a mutation happening at now.
// UpdatedAt strictly increases even when the wall clock stepped backwards.
func (t *Task) Touch(now time.Time) {
	now = now.UTC()
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
		return
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Nanosecond)
}

// NewerThan reports whether t was updated strictly after other.
func (t *Task) NewerThan(other *Task) bool {
	return t.UpdatedAt.After(other.UpdatedAt)
}

// Clone returns a copy of t.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Synced returns a copy of t with IsSynced set.
func (t *Task) Synced() *Task {
	c := t.Clone()
	c.IsSynced = true
	return c
}

// Tombstone records a local deletion that still has to reach the remote store.
type Tombstone struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

// FormatTime renders ts with TimeLayout.
func FormatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}

// ParseTime parses any RFC 3339 timestamp, including TimeLayout output.
func ParseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
