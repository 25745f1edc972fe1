// Package config loads and validates the coordinator's configuration
// (spec.md §6, SPEC_FULL.md §10.2): max workers, the target/integration
// branches, quality-gate checks, and agent invocation settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes configuration from file, environment (`RALPH_` prefix),
// and defaults, following the teacher's config.Load shape.
func Load(cfgFile string) {
	if err := godotenv.Load(); err != nil {
		// no .env file; environment/flags/defaults still apply
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("RALPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		if _, statErr := os.Stat("config.yaml"); os.IsNotExist(statErr) {
			if writeErr := viper.WriteConfigAs("config.yaml"); writeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to create default config file: %v\n", writeErr)
			} else {
				fmt.Println("Created default configuration file: config.yaml")
			}
		}
	}
}

func setDefaults() {
	viper.SetDefault("tasksPath", "tasks.json")

	// Repo and workspace layout (spec.md §4.3)
	viper.SetDefault("repoURL", "")
	viper.SetDefault("repoDir", ".ralph/repo")
	viper.SetDefault("workspacesDir", ".ralph/workspaces")
	viper.SetDefault("stateDir", ".ralph/state")

	// Dispatch Loop / worker pool (spec.md §4.1, §4.2)
	viper.SetDefault("maxWorkers", 4)
	viper.SetDefault("targetBranch", "main")
	viper.SetDefault("integrationBranch", "ralph/integration")
	viper.SetDefault("requireImpactTable", false)
	viper.SetDefault("pollIntervalMs", 200)
	viper.SetDefault("staleAfterMinutes", 30)
	viper.SetDefault("maxFailures", 3)

	// Agent invocation (spec.md §3 Agent boundary)
	viper.SetDefault("agent.command", "")
	viper.SetDefault("agent.timeoutSeconds", 300)
	viper.SetDefault("agent.useDocker", false)
	viper.SetDefault("agent.dockerImage", "")

	// Quality Gates / Validation Engine (spec.md §4.5, §6 qualityGates.*)
	viper.SetDefault("qualityGates.enabled", false)
	viper.SetDefault("qualityGates.mode", "batch-window")
	viper.SetDefault("qualityGates.batchWindowMs", 2000)
	viper.SetDefault("qualityGates.maxFixAttempts", 2)
	viper.SetDefault("qualityGates.maxTestReruns", 1)
	viper.SetDefault("qualityGates.fallbackStrategy", "revert")

	// History store (SPEC_FULL.md §12 run summary history)
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "ralph.db")

	// Metrics (SPEC_FULL.md §10.1)
	viper.SetDefault("metricsPort", 2112)
	viper.SetDefault("verbose", false)

	// Notifications (SPEC_FULL.md §12)
	slackEnabled := viper.GetString("notifications.slack.botToken") != "" || viper.GetString("notifications.slack.webhookURL") != "" || os.Getenv("RALPH_NOTIFICATIONS_SLACK_BOTTOKEN") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.transport", "bot")
	viper.SetDefault("notifications.slack.channel", "#ralph")
	viper.SetDefault("notifications.slack.events.on_paused", true)
	viper.SetDefault("notifications.slack.events.on_credit_exhausted", true)
	viper.SetDefault("notifications.slack.events.on_main_sync_alert", true)
	viper.SetDefault("notifications.slack.events.on_validation_reverted", true)
}
