package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/db"
	"github.com/tasksync/tasksync/internal/migrate"
	"github.com/tasksync/tasksync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "tasks",
	Short:   "Dump local tasks as JSON Lines, JSON, YAML or TOML",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if !cmd.Flags().Changed("format") && output != "" {
			if guessed, ok := migrate.FormatFromPath(output); ok {
				format = guessed
			}
		}

		withLocal(func(database *db.DB) error {
			tasks, err := database.ListAll(context.Background())
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := migrate.WriteDocument(w, format, tasks); err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			if output != "" {
				fmt.Printf("%s Exported %d tasks to %s\n", ui.RenderPass("✓"), len(tasks), output)
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "tasks",
	Short:   "Merge tasks from an export file into the local database",
	Long: `Merge tasks from a JSON Lines, JSON, YAML or TOML file into the local
database. The format follows the file extension unless --format is given.

A task replaces the local copy only if it was updated later. Imported tasks are
marked unsynced and are offered to the remote store on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		format, _ := cmd.Flags().GetString("format")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if format == "" {
			guessed, ok := migrate.FormatFromPath(path)
			if !ok {
				fatalf("cannot tell the format of %s (use --format)", path)
			}
			format = guessed
		}

		// #nosec G304 - path from CLI
		f, err := os.Open(path)
		if err != nil {
			fatalf("opening %s: %v", path, err)
		}
		tasks, err := migrate.ReadDocument(f, format)
		_ = f.Close()
		if err != nil {
			fatalf("reading %s: %v", path, err)
		}

		withLocal(func(database *db.DB) error {
			res, err := migrate.Import(context.Background(), database, tasks, migrate.ImportOptions{DryRun: dryRun})
			if err != nil {
				return fmt.Errorf("importing: %w", err)
			}

			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Printf("%s %s %d of %d tasks (%d skipped, local copy newer)\n",
				ui.RenderPass("✓"), verb, res.Imported, res.Read, res.Skipped)
			for _, msg := range res.Errors {
				fmt.Printf("  %s %s\n", ui.RenderWarn("⚠"), msg)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", migrate.FormatJSON, "Output format: jsonl, json, yaml or toml")
	exportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	importCmd.Flags().StringP("format", "f", "", "Input format: jsonl, json, yaml or toml (default from extension)")
	importCmd.Flags().Bool("dry-run", false, "Report what would be imported without writing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
