package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
	"rsc.io/script"
	"rsc.io/script/scripttest"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/server"
)

// TestMain lets the test binary stand in for the tasksync command when
// scripts run it.
func TestMain(m *testing.M) {
	if os.Getenv("TASKSYNC_TEST_MAIN") == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// TestScripts runs testdata/script/*.txt. Each script is a txtar archive:
// the comment is the script, the files are written to a fresh work
// directory. Every script gets its own in-memory task API as the default
// remote. "tasksync" in a script runs this binary as the command.
func TestScripts(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to find test binary: %v", err)
	}
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["tasksync"] = script.Program(exe, nil, 0)

	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts found")
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			archive, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			work := t.TempDir()
			for _, f := range archive.Files {
				path := filepath.Join(work, f.Name)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, f.Data, 0o644); err != nil {
					t.Fatal(err)
				}
			}

			url := startTaskAPI(t)
			s, err := script.NewState(context.Background(), work, scriptEnv(work, url))
			if err != nil {
				t.Fatalf("failed to create script state: %v", err)
			}
			scripttest.Run(t, engine, s, file, bytes.NewReader(archive.Comment))
		})
	}
}

// startTaskAPI serves a fresh in-memory store for the duration of the test.
func startTaskAPI(t *testing.T) string {
	t.Helper()

	api := server.New(&server.Config{
		Store:  remote.NewMemoryStore(),
		Logger: log.New(io.Discard, "", 0),
	})
	api.StartDashboard(context.Background())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = api.Stop(context.Background())
	})
	return srv.URL
}

// scriptEnv is the parent environment without any tasksync or home
// settings, pointed at work and the given remote.
func scriptEnv(work, remoteURL string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "TASKSYNC_") || strings.HasPrefix(kv, "HOME=") || strings.HasPrefix(kv, "NO_COLOR=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"TASKSYNC_TEST_MAIN=1",
		"TASKSYNC_CLIENT_REMOTE_URL="+remoteURL,
		"HOME="+work,
		"NO_COLOR=1",
	)
}
