// Command tasksync keeps a device-local task list in sync with a shared
// remote store.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasksync/tasksync/internal/config"
	"github.com/tasksync/tasksync/internal/logging"
	"github.com/tasksync/tasksync/internal/ui"
)

var (
	configPath string
	noColor    bool

	cfg    *config.Config
	logOut *logging.Output
)

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Last-write-wins task sync between devices and a shared store",
	Long: `tasksync keeps a local task list (SQLite, works offline) in sync with a
shared remote store over HTTP.

Every local change is stamped with an update time and marked unsynced. A sync
pushes unsynced tasks and pending deletions first, then pulls the remote list.
When both sides changed the same task, the later update wins.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		} else {
			ui.Init(os.Stdout)
		}

		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		logOut = logging.Open(cfg.Log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logOut != nil {
			_ = logOut.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Local tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.tasksync/config.yaml or ./.tasksync/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Local task database (default .tasksync/tasks.db)")
	rootCmd.PersistentFlags().String("remote", "", "Remote API base URL (default http://localhost:3000)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for each remote call (default 15s)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotated file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// newLogger returns a component logger writing to the configured output.
func newLogger(component string) *log.Logger {
	if logOut == nil {
		return logging.New(os.Stderr, component)
	}
	return logging.New(logOut, component)
}

// fatalf prints an error and exits with status 1. Deferred calls do not
// run; close the local database first (see withLocal).
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	if logOut != nil {
		_ = logOut.Close()
	}
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
