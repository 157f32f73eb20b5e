package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
)

// openLocal opens the device database and ensures its schema.
func openLocal() *db.DB {
	database, err := db.Open(cfg.Client.DBPath)
	if err != nil {
		fatalf("opening local database: %v", err)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		fatalf("initializing schema: %v", err)
	}
	return database
}

// withLocal runs fn against the device database and closes it before
// exiting on fn's error, so a failed command still checkpoints the WAL.
func withLocal(fn func(database *db.DB) error) {
	database := openLocal()
	err := fn(database)
	if cerr := database.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing local database: %w", cerr)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

// resolveID accepts a full id or a unique prefix of one, as shown by list.
func resolveID(ctx context.Context, database *db.DB, ref string) (string, error) {
	if _, err := database.Get(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, schema.ErrNotFound) {
		return "", err
	}

	tasks, err := database.ListAll(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no task matches %q", schema.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d tasks match)", ref, len(matches))
	}
}
