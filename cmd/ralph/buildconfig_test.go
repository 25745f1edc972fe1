package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCoordinatorConfigMapsViperKeys(t *testing.T) {
	viper.Reset()
	viper.Set("repoDir", "/repo")
	viper.Set("workspacesDir", "/work")
	viper.Set("stateDir", "/state")
	viper.Set("targetBranch", "main")
	viper.Set("integrationBranch", "ralph/integration")
	viper.Set("maxWorkers", 3)
	viper.Set("qualityGates.enabled", true)
	viper.Set("qualityGates.mode", "batch-window")
	viper.Set("qualityGates.batchWindowMs", 1500)
	viper.Set("store.driver", "sqlite")
	viper.Set("store.dsn", "run.db")

	cfg, err := buildCoordinatorConfig()
	require.NoError(t, err)

	assert.Equal(t, "/repo", cfg.RepoDir)
	assert.Equal(t, "/work", cfg.WorkspacesDir)
	assert.Equal(t, "/state", cfg.StateDir)
	assert.Equal(t, "main", cfg.TargetBranch)
	assert.Equal(t, "ralph/integration", cfg.IntegrationBranch)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.True(t, cfg.QualityGates.Enabled)
	assert.EqualValues(t, "batch-window", cfg.QualityGates.Mode)
	assert.Equal(t, 1500, cfg.QualityGates.BatchWindowMs)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "run.db", cfg.Store.ConnectionString)
}
