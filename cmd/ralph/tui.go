package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ralph/internal/tracker"
	"ralph/internal/tui"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "watch a running coordinator's task and event counts",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTUI(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
	},
}

func runTUI() error {
	tr, err := tracker.NewFileTracker(viper.GetString("tasksPath"))
	if err != nil {
		return fmt.Errorf("open task tracker: %w", err)
	}

	stateDir := viper.GetString("stateDir")
	controlPath := filepath.Join(stateDir, "control")
	return tui.Run(tr, stateDir, controlPath, time.Second)
}
