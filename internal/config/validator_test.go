package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "Valid Configuration",
			setup: func() {
				viper.Set("maxWorkers", 4)
				viper.Set("targetBranch", "main")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", 300)
				viper.Set("metricsPort", 2112)
			},
			wantError: false,
		},
		{
			name: "Invalid maxWorkers",
			setup: func() {
				viper.Set("maxWorkers", 0)
				viper.Set("targetBranch", "main")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", 300)
				viper.Set("metricsPort", 2112)
			},
			wantError: true,
			errMsg:    "maxWorkers must be positive",
		},
		{
			name: "Empty targetBranch",
			setup: func() {
				viper.Set("maxWorkers", 4)
				viper.Set("targetBranch", "")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", 300)
				viper.Set("metricsPort", 2112)
			},
			wantError: true,
			errMsg:    "targetBranch must not be empty",
		},
		{
			name: "Invalid metricsPort (too high)",
			setup: func() {
				viper.Set("maxWorkers", 4)
				viper.Set("targetBranch", "main")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", 300)
				viper.Set("metricsPort", 70000)
			},
			wantError: true,
			errMsg:    "metricsPort must be between 1 and 65535",
		},
		{
			name: "Invalid agent.timeoutSeconds",
			setup: func() {
				viper.Set("maxWorkers", 4)
				viper.Set("targetBranch", "main")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", -1)
				viper.Set("metricsPort", 2112)
			},
			wantError: true,
			errMsg:    "agent.timeoutSeconds must be positive",
		},
		{
			name: "Multiple errors",
			setup: func() {
				viper.Set("maxWorkers", -1)
				viper.Set("targetBranch", "")
				viper.Set("integrationBranch", "ralph/integration")
				viper.Set("pollIntervalMs", 200)
				viper.Set("staleAfterMinutes", 30)
				viper.Set("maxFailures", 3)
				viper.Set("agent.timeoutSeconds", 300)
				viper.Set("metricsPort", 2112)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			if tt.setup != nil {
				tt.setup()
			}

			err := ValidateConfig()
			if tt.wantError {
				if err == nil {
					t.Errorf("ValidateConfig() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateConfig() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("ValidateConfig() unexpected error: %v", err)
			}
		})
	}
}
