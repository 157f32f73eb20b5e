package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/config"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/server"
)

// openStore opens the remote store backend named in c.
func openStore(ctx context.Context, c *config.Config) (remote.Store, string, error) {
	switch c.Server.Backend {
	case config.BackendSQLite:
		store, err := remote.OpenSQLiteStore(c.Server.DBPath)
		return store, "sqlite " + c.Server.DBPath, err
	case config.BackendNeo4j:
		store, err := remote.OpenNeo4jStore(ctx, remote.Neo4jConfig{
			URI:      c.Neo4j.URI,
			User:     c.Neo4j.User,
			Password: c.Neo4j.Password,
			Database: c.Neo4j.Database,
		})
		return store, "neo4j " + c.Neo4j.URI, err
	default:
		return remote.NewMemoryStore(), "memory (not persisted)", nil
	}
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the remote task API",
	Long: `Run the HTTP task API that devices sync against.

Backends:
  memory   tasks live in process memory (default, lost on exit)
  sqlite   tasks persist in --server-db
  neo4j    tasks persist in a Neo4j database (neo4j.* config keys)

Endpoints:
  GET/POST /tasks, PUT/DELETE /tasks/{id}, POST /tasks/sync, GET /health
  ws://<addr>/ws streams task_update, sync_complete and stats messages`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		store, desc, err := openStore(ctx, cfg)
		if err != nil {
			fatalf("opening %s store: %v", cfg.Server.Backend, err)
		}
		defer store.Close()

		srv := server.New(&server.Config{
			Addr:   cfg.Server.Addr,
			Store:  store,
			Logger: newLogger("server"),
		})
		if err := srv.Start(); err != nil {
			fatalf("failed to start server: %v", err)
		}

		fmt.Printf("Task API listening on %s\n", srv.GetAddr())
		fmt.Printf("Store: %s\n", desc)
		fmt.Printf("Dashboard: ws://%s/ws\n", srv.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			fatalf("during shutdown: %v", err)
		}
		fmt.Println("Server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default :3000)")
	serveCmd.Flags().String("backend", "", "Store backend: memory, sqlite or neo4j (default memory)")
	serveCmd.Flags().String("server-db", "", "SQLite file for the sqlite backend (default .tasksync/server.db)")

	rootCmd.AddCommand(serveCmd)
}
