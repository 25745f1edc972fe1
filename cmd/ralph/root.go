package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ralph/internal/config"
	"ralph/internal/telemetry"
)

var exit = os.Exit
var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "ralph",
	Short:         "ralph: parallel execution coordinator",
	Long:          `ralph dispatches coding tasks across isolated worker workspaces, serializes their commits through a merge queue and validation gate, and syncs the result to mainline.`,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== ralph panicked ===\n%v\n", r)
			exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose/debug logging")
	rootCmd.PersistentFlags().String("state-dir", "", "overrides stateDir (control file, event logs, run history)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("stateDir", rootCmd.PersistentFlags().Lookup("state-dir"))
}

// initConfig reads config file, env, and defaults, then starts logging and
// metrics the same way the teacher's rootCmd does.
func initConfig() {
	config.Load(cfgFile)

	if err := config.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}

	telemetry.InitLogger(viper.GetBool("verbose"), "", false)

	if flag.Lookup("test.v") == nil {
		go func() {
			if err := telemetry.StartMetricsServer(viper.GetInt("metricsPort")); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to start metrics server: %v\n", err)
			}
		}()
	}
}
