// Package migrate moves tasks in and out of the local store as JSON Lines,
// JSON, YAML or TOML documents.
//
// Imported tasks are merged last-write-wins against the local copy and
// marked unsynced so the next sync offers them to the remote store.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tasksync/tasksync/internal/schema"
)

// Formats accepted by WriteDocument and ReadDocument.
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTOML  = "toml"
)

// Document is the top-level shape of a JSON, YAML or TOML export.
type Document struct {
	Tasks []*schema.Task `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// WriteDocument encodes tasks to w.
func WriteDocument(w io.Writer, format string, tasks []*schema.Task) error {
	doc := Document{Tasks: tasks}
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, t := range tasks {
			if err := enc.Encode(t); err != nil {
				return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("unknown format %q (want jsonl, json, yaml or toml)", format)
	}
}

// ReadDocument decodes tasks from r.
func ReadDocument(r io.Reader, format string) ([]*schema.Task, error) {
	var doc Document
	switch format {
	case FormatJSONL:
		return ReadJSONL(r)
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid YAML document: %w", err)
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid TOML document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q (want jsonl, json, yaml or toml)", format)
	}
	return doc.Tasks, nil
}

// ReadJSONL decodes one task per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]*schema.Task, error) {
	var tasks []*schema.Task
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var task schema.Task
		if err := json.Unmarshal(line, &task); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		tasks = append(tasks, &task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return tasks, nil
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (string, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return FormatJSONL, true
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON, true
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML, true
	case strings.HasSuffix(lower, ".toml"):
		return FormatTOML, true
	}
	return "", false
}

// Store is the part of the local store Import needs. *db.DB satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*schema.Task, error)
	Upsert(ctx context.Context, task *schema.Task) error
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	DryRun bool             // Count without writing
	Now    func() time.Time // Clock for missing timestamps (default time.Now)
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Imported int
	// Skipped counts tasks whose local copy is as new or newer.
	Skipped int
	Errors  []string
}

// Import merges tasks into store. A task replaces the local copy only when
// its UpdatedAt is strictly later. Invalid tasks are reported in
// ImportResult.Errors and skipped; storage failures abort the import.
func Import(ctx context.Context, store Store, tasks []*schema.Task, opts ImportOptions) (*ImportResult, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	res := &ImportResult{Read: len(tasks)}
	for i, in := range tasks {
		task := normalize(in, now().UTC())
		if err := task.Validate(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("task %d (%s): %v", i+1, task.ID, err))
			continue
		}

		existing, err := store.Get(ctx, task.ID)
		switch {
		case err == nil:
			if !task.NewerThan(existing) {
				res.Skipped++
				continue
			}
		case !errors.Is(err, schema.ErrNotFound):
			return res, fmt.Errorf("failed to read task %s: %w", task.ID, err)
		}

		if !opts.DryRun {
			if err := store.Upsert(ctx, task); err != nil {
				return res, fmt.Errorf("failed to import task %s: %w", task.ID, err)
			}
		}
		res.Imported++
	}
	return res, nil
}

// normalize fills missing identity and timestamps and marks the copy unsynced.
func normalize(in *schema.Task, now time.Time) *schema.Task {
	task := in.Clone()
	task.Title = strings.TrimSpace(task.Title)
	if task.ID == "" {
		task.ID = schema.NewID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	task.IsSynced = false
	return task
}
