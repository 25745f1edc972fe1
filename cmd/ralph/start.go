package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ralph/internal/coordinator"
	"ralph/internal/notify"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

func init() {
	startCmd.Flags().String("tasks", "tasks.json", "path to the task tracker file")
	viper.BindPFlag("tasksPath", startCmd.Flags().Lookup("tasks"))
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start a coordinator run",
	Long:  `start provisions the shared clone and worker workspaces, then runs the dispatch loop until every task reaches a terminal state or the process is interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStart(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
	},
}

func runStart() error {
	cfg, err := buildCoordinatorConfig()
	if err != nil {
		return err
	}

	tr, err := tracker.NewFileTracker(viper.GetString("tasksPath"))
	if err != nil {
		return fmt.Errorf("open task tracker: %w", err)
	}

	var n notify.Notifier
	if viper.GetBool("notifications.slack.enabled") {
		if viper.GetString("notifications.slack.transport") == "webhook" {
			n = notify.NewWebhookNotifier()
		} else {
			n = notify.NewManager(func(format string, args ...interface{}) { fmt.Fprintf(os.Stderr, format+"\n", args...) })
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if n != nil {
		n.Start(ctx)
	}

	driver := vcs.NewExecDriver()
	c, err := coordinator.New(ctx, cfg, driver, tr, n)
	if err != nil {
		return fmt.Errorf("provision coordinator: %w", err)
	}

	fmt.Fprintf(os.Stderr, "ralph: starting run, state at %s\n", filepath.Clean(cfg.StateDir))
	return c.Run(ctx)
}
