package schema

import (
	"fmt"
	"time"
)

// Patch is a partial update. Nil fields are absent.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsCompleted *bool      `json:"isCompleted,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	IsSynced    *bool      `json:"isSynced,omitempty"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.IsCompleted == nil &&
		p.UpdatedAt == nil && p.IsSynced == nil
}

// Validate rejects present-but-invalid fields.
func (p Patch) Validate() error {
	if p.Title != nil {
		if err := ValidateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := ValidateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.UpdatedAt != nil && p.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: updatedAt must not be zero", ErrValidation)
	}
	return nil
}

// ApplyFields copies the present content fields (title, description,
// completion) onto t and reports whether any value changed. Timestamps and
// the synced flag are left to the caller.
func (p Patch) ApplyFields(t *Task) bool {
	changed := false
	if p.Title != nil && *p.Title != t.Title {
		t.Title = *p.Title
		changed = true
	}
	if p.Description != nil && *p.Description != t.Description {
		t.Description = *p.Description
		changed = true
	}
	if p.IsCompleted != nil && *p.IsCompleted != t.IsCompleted {
		t.IsCompleted = *p.IsCompleted
		changed = true
	}
	return changed
}

// NewTask is the payload for creating a task on the remote store. The store
// assigns the id and createdAt.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsCompleted bool       `json:"isCompleted,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	// IsSynced is accepted on the wire and ignored: remote tasks are
	// always synced.
	IsSynced    bool       `json:"isSynced,omitempty"`
}

// Build turns the request into a synced task created at now.
func (n NewTask) Build(now time.Time) (*Task, error) {
	if err := ValidateTitle(n.Title); err != nil {
		return nil, err
	}
	if err := ValidateDescription(n.Description); err != nil {
		return nil, err
	}
	t := New(n.Title, n.Description, now)
	t.IsCompleted = n.IsCompleted
	t.IsSynced = true
	if n.UpdatedAt != nil && !n.UpdatedAt.IsZero() {
		t.UpdatedAt = n.UpdatedAt.UTC()
	}
	return t, nil
}
