package main

import (
	"fmt"

	"github.com/spf13/viper"

	"ralph/internal/coordinator"
	"ralph/internal/store"
	"ralph/internal/validation"
)

// buildCoordinatorConfig assembles a coordinator.Config from whatever
// config.Load has already put into viper (file, env, flags, defaults).
func buildCoordinatorConfig() (coordinator.Config, error) {
	var valCfg validation.Config
	if err := viper.UnmarshalKey("qualityGates", &valCfg); err != nil {
		return coordinator.Config{}, fmt.Errorf("parse qualityGates config: %w", err)
	}

	return coordinator.Config{
		RepoURL:            viper.GetString("repoURL"),
		RepoDir:            viper.GetString("repoDir"),
		WorkspacesDir:      viper.GetString("workspacesDir"),
		StateDir:           viper.GetString("stateDir"),
		TargetBranch:       viper.GetString("targetBranch"),
		IntegrationBranch:  viper.GetString("integrationBranch"),
		MaxWorkers:         viper.GetInt("maxWorkers"),
		RequireImpactTable: viper.GetBool("requireImpactTable"),
		AgentCommand:       viper.GetString("agent.command"),
		QualityGates:       valCfg,
		Store: store.Config{
			Type:             viper.GetString("store.driver"),
			ConnectionString: viper.GetString("store.dsn"),
		},
	}, nil
}
