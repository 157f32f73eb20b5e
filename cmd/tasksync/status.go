package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local database status",
	Long: `Display the current status of the local task database.

Shows:
  - Database location and size
  - Number of tasks
  - Changes waiting to be pushed (unsynced tasks and deletions)`,
	Run: func(cmd *cobra.Command, args []string) {
		path := cfg.Client.DBPath

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Local database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'tasksync add' or 'tasksync sync' to create it\n\n")
			return
		}
		if err != nil {
			fatalf("checking database: %v", err)
		}

		ctx := context.Background()
		var (
			taskCount, unsynced int
			tombstones          []schema.Tombstone
		)
		withLocal(func(database *db.DB) error {
			if taskCount, err = database.CountTasksContext(ctx); err != nil {
				return fmt.Errorf("counting tasks: %w", err)
			}
			if unsynced, err = database.CountUnsyncedContext(ctx); err != nil {
				return fmt.Errorf("counting unsynced tasks: %w", err)
			}
			if tombstones, err = database.ListTombstones(ctx); err != nil {
				return fmt.Errorf("listing deletions: %w", err)
			}
			return nil
		})

		fmt.Printf("\n%s Local Task Status\n\n", ui.RenderAccent("●"))
		fmt.Printf("Location: %s\n", path)
		fmt.Printf("Size: %s\n", ui.HumanSize(info.Size()))
		fmt.Printf("Remote: %s\n", cfg.Client.RemoteURL)
		fmt.Printf("Tasks: %d\n", taskCount)
		if unsynced+len(tombstones) == 0 {
			fmt.Printf("Pending: %s\n", ui.RenderPass("none, up to date"))
		} else {
			fmt.Printf("Pending: %s\n", ui.RenderWarn(fmt.Sprintf("%d unsynced, %d deletions", unsynced, len(tombstones))))
		}
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
