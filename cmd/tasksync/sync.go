package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/daemon"
	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/sync"
	"github.com/tasksync/tasksync/internal/ui"
)

// newSyncer wires the local database to the configured remote API.
func newSyncer(database *db.DB) (sync.Syncer, *remote.Client) {
	client := remote.NewClient(cfg.Client.RemoteURL, nil)
	syncer := sync.New(database, client, &sync.Config{
		Timeout: cfg.Sync.Timeout,
		Logger:  newLogger("sync"),
	})
	return syncer, client
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push local changes, then pull the remote list",
	Long: `Run one full sync against the remote API:
  1. Push unsynced tasks and pending deletions
  2. Pull every remote task into the local database

Both steps run even if the other fails. The command exits non-zero if
either step failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		withLocal(func(database *db.DB) error {
			syncer, client := newSyncer(database)
			defer client.Close()

			fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("↻"), client.BaseURL())
			res := syncer.FullSync(ctx)
			fmt.Print(ui.SyncSummary(res))

			if err := res.Err(); err != nil {
				return fmt.Errorf("sync incomplete: %w", err)
			}
			fmt.Printf("%s Sync complete\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync continuously (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Sync once at startup
  2. Sync every --interval
  3. Sync shortly after local changes (e.g. 'tasksync add' in another shell)
  4. Back off while the remote API is unreachable`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		withLocal(func(database *db.DB) error {
			syncer, client := newSyncer(database)
			defer client.Close()

			d, err := daemon.New(syncer, database, database.Path(), &daemon.Config{
				Interval:   cfg.Sync.Interval,
				Debounce:   cfg.Sync.Debounce,
				MaxBackoff: cfg.Sync.MaxBackoff,
				OnResult: func(res *sync.Result) {
					fmt.Print(ui.SyncSummary(res))
				},
				Logger: newLogger("daemon"),
			})
			if err != nil {
				return fmt.Errorf("creating daemon: %w", err)
			}

			fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("●"))
			fmt.Printf("   Database: %s\n", database.Path())
			fmt.Printf("   Remote: %s\n", client.BaseURL())
			fmt.Printf("   Interval: %v\n", cfg.Sync.Interval)
			fmt.Printf("\nPress Ctrl+C to stop\n\n")

			if err := d.Start(ctx); err != nil {
				return fmt.Errorf("daemon stopped: %w", err)
			}
			return nil
		})
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Time between periodic syncs (default 30s)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
}
