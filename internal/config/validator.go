package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ValidateConfig rejects non-positive workers/timeouts and out-of-range
// ports before the coordinator starts — a Configuration Error per
// spec.md §7, fatal at init.
func ValidateConfig() error {
	var errors []string

	if workers := viper.GetInt("maxWorkers"); workers <= 0 {
		errors = append(errors, fmt.Sprintf("maxWorkers must be positive, got: %d", workers))
	}

	if target := viper.GetString("targetBranch"); target == "" {
		errors = append(errors, "targetBranch must not be empty")
	}

	if integ := viper.GetString("integrationBranch"); integ == "" {
		errors = append(errors, "integrationBranch must not be empty")
	}

	if poll := viper.GetInt("pollIntervalMs"); poll <= 0 {
		errors = append(errors, fmt.Sprintf("pollIntervalMs must be positive, got: %d", poll))
	}

	if stale := viper.GetInt("staleAfterMinutes"); stale <= 0 {
		errors = append(errors, fmt.Sprintf("staleAfterMinutes must be positive, got: %d", stale))
	}

	if maxFailures := viper.GetInt("maxFailures"); maxFailures <= 0 {
		errors = append(errors, fmt.Sprintf("maxFailures must be positive, got: %d", maxFailures))
	}

	if timeout := viper.GetInt("agent.timeoutSeconds"); timeout <= 0 {
		errors = append(errors, fmt.Sprintf("agent.timeoutSeconds must be positive, got: %d", timeout))
	}

	if port := viper.GetInt("metricsPort"); port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("metricsPort must be between 1 and 65535, got: %d", port))
	}

	if viper.GetBool("qualityGates.enabled") {
		if attempts := viper.GetInt("qualityGates.maxFixAttempts"); attempts < 0 {
			errors = append(errors, fmt.Sprintf("qualityGates.maxFixAttempts must be non-negative, got: %d", attempts))
		}
		if window := viper.GetInt("qualityGates.batchWindowMs"); window < 0 {
			errors = append(errors, fmt.Sprintf("qualityGates.batchWindowMs must be non-negative, got: %d", window))
		}
	}

	if len(errors) > 0 {
		errorMsg := errors[0]
		for i := 1; i < len(errors); i++ {
			errorMsg += "\n  " + errors[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", errorMsg)
	}

	return nil
}

// ValidateAndExit validates the configuration and exits with a non-zero
// code if validation fails.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
