package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/ui"
)

// taskFilter selects which local tasks list shows.
type taskFilter struct {
	pending   bool
	completed bool
	unsynced  bool
	since     time.Time
}

func (f taskFilter) match(t *schema.Task) bool {
	if f.pending && t.IsCompleted {
		return false
	}
	if f.completed && !t.IsCompleted {
		return false
	}
	if f.unsynced && t.IsSynced {
		return false
	}
	if !f.since.IsZero() && t.UpdatedAt.Before(f.since) {
		return false
	}
	return true
}

// filterTasks keeps the matching tasks, most recently updated first.
func filterTasks(tasks []*schema.Task, f taskFilter) []*schema.Task {
	out := make([]*schema.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// parseSince accepts an RFC 3339 timestamp or a natural phrase such as
// "yesterday" or "3 days ago".
func parseSince(text string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, text); err == nil {
		return ts, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", text)
	}
	return r.Time, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "List local tasks",
	Long: `List tasks in the local database, most recently updated first.

Examples:
  tasksync list --pending
  tasksync list --unsynced
  tasksync list --since yesterday
  tasksync list --since "3 days ago"`,
	Run: func(cmd *cobra.Command, args []string) {
		var f taskFilter
		f.pending, _ = cmd.Flags().GetBool("pending")
		f.completed, _ = cmd.Flags().GetBool("completed")
		f.unsynced, _ = cmd.Flags().GetBool("unsynced")
		if f.pending && f.completed {
			fatalf("--pending and --completed are mutually exclusive")
		}

		now := time.Now()
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			ts, err := parseSince(since, now)
			if err != nil {
				fatalf("%v", err)
			}
			f.since = ts
		}

		withLocal(func(database *db.DB) error {
			tasks, err := database.ListAll(context.Background())
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}
			tasks = filterTasks(tasks, f)

			if len(tasks) == 0 {
				fmt.Println(ui.RenderMuted("No tasks"))
				return nil
			}
			fmt.Println(ui.TaskTable(tasks, now))
			fmt.Printf("%d task(s)\n", len(tasks))
			return nil
		})
	},
}

func init() {
	listCmd.Flags().Bool("pending", false, "Only tasks not completed")
	listCmd.Flags().Bool("completed", false, "Only completed tasks")
	listCmd.Flags().Bool("unsynced", false, "Only tasks not yet pushed")
	listCmd.Flags().String("since", "", `Only tasks updated since this time ("yesterday", "2 hours ago", RFC 3339)`)

	rootCmd.AddCommand(listCmd)
}
