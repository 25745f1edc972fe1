package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ralph/internal/tracker"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show task counts and the coordinator's pause state",
	Run: func(cmd *cobra.Command, args []string) {
		if err := showStatus(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
	},
}

func showStatus(out io.Writer) error {
	controlPath := filepath.Join(viper.GetString("stateDir"), "control")
	state, err := os.ReadFile(controlPath)
	switch {
	case err == nil:
		fmt.Fprintf(out, "state: %s\n", state)
	case os.IsNotExist(err):
		fmt.Fprintln(out, "state: not running (no control file)")
	default:
		return fmt.Errorf("read control file: %w", err)
	}

	tr, err := tracker.NewFileTracker(viper.GetString("tasksPath"))
	if err != nil {
		return fmt.Errorf("open task tracker: %w", err)
	}
	tasks, err := tr.ListTasks()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	counts := map[tracker.Status]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Fprintln(out, "tasks:")
	for _, s := range []tracker.Status{tracker.Open, tracker.InProgress, tracker.Blocked, tracker.PendingMain, tracker.Completed, tracker.Cancelled} {
		fmt.Fprintf(out, "  %-14s %d\n", s, counts[s])
	}
	return nil
}
