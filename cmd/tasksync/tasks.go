package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add [title]",
	GroupID: "tasks",
	Short:   "Create a local task",
	Long: `Create a task in the local database. It is marked unsynced and is sent to
the remote store on the next sync.

Use -i to fill in the title and description with an interactive form.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")
		description, _ := cmd.Flags().GetString("description")
		title := strings.Join(args, " ")

		if interactive {
			var err error
			title, description, err = taskForm(title, description)
			if errors.Is(err, huh.ErrUserAborted) {
				return
			}
			if err != nil {
				fatalf("%v", err)
			}
		}
		if title == "" {
			fatalf("a title is required (pass it as an argument or use -i)")
		}

		withLocal(func(database *db.DB) error {
			task, err := database.CreateTask(context.Background(), title, description)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}
			fmt.Printf("%s Created %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(task.ID)), task.Title)
			return nil
		})
	},
}

// taskForm asks for a title and description, pre-filled with the given values.
func taskForm(title, description string) (string, string, error) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&title).
				Validate(schema.ValidateTitle),
			huh.NewText().
				Title("Description").
				CharLimit(schema.MaxDescriptionLength).
				Value(&description).
				Validate(schema.ValidateDescription),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(title), description, nil
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "tasks",
	Short:   "Change a local task",
	Long: `Change the title, description or completion of a local task. Only the flags
you pass are applied. An edit that changes nothing leaves the task as it was.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch schema.Patch
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			patch.Title = &title
		}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			patch.Description = &description
		}
		done, _ := cmd.Flags().GetBool("done")
		undone, _ := cmd.Flags().GetBool("undone")
		switch {
		case done && undone:
			fatalf("--done and --undone are mutually exclusive")
		case done:
			patch.IsCompleted = &done
		case undone:
			completed := false
			patch.IsCompleted = &completed
		}
		if patch.IsEmpty() {
			fatalf("nothing to change (use --title, --description, --done or --undone)")
		}

		updateTask(args[0], patch)
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a local task completed",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		completed := true
		updateTask(args[0], schema.Patch{IsCompleted: &completed})
	},
}

func updateTask(ref string, patch schema.Patch) {
	ctx := context.Background()
	withLocal(func(database *db.DB) error {
		id, err := resolveID(ctx, database, ref)
		if err != nil {
			return err
		}
		task, err := database.UpdateTask(ctx, id, patch)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}

		state := "unsynced"
		if task.IsSynced {
			state = "unchanged"
		}
		fmt.Printf("%s Updated %s %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(task.ID)), task.Title, ui.RenderMuted("("+state+")"))
		return nil
	})
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a local task",
	Long: `Delete a task from the local database. The deletion is recorded and sent to
the remote store on the next sync, where it wins only over copies that were
not updated after it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		withLocal(func(database *db.DB) error {
			id, err := resolveID(ctx, database, args[0])
			if err != nil {
				return err
			}
			task, err := database.DeleteTask(ctx, id)
			if err != nil {
				return fmt.Errorf("deleting task: %w", err)
			}
			fmt.Printf("%s Deleted %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(ui.ShortID(task.ID)), task.Title)
			return nil
		})
	},
}

func init() {
	addCmd.Flags().BoolP("interactive", "i", false, "Fill in the task with a form")
	addCmd.Flags().StringP("description", "d", "", "Task description")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("description", "d", "", "New description")
	editCmd.Flags().Bool("done", false, "Mark completed")
	editCmd.Flags().Bool("undone", false, "Mark not completed")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
}
