package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

// pauseCmd and resumeCmd write the control file a running coordinator polls
// every second, reconciling its Dispatch Loop's pause state toward
// whatever the file last said (SPEC_FULL.md §12).
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "request the running coordinator to stop claiming new tasks",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeControlState("paused"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
		fmt.Println("pause requested")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "clear a pause requested with ralph pause",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeControlState("running"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
		fmt.Println("resume requested")
	},
}

func writeControlState(state string) error {
	path := filepath.Join(viper.GetString("stateDir"), "control")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(path, []byte(state), 0o644)
}
