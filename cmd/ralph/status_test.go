package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowStatusReportsControlStateAndTaskCounts(t *testing.T) {
	dir := t.TempDir()
	viper.Reset()
	viper.Set("stateDir", filepath.Join(dir, "state"))
	viper.Set("tasksPath", filepath.Join(dir, "tasks.json"))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "state"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state", "control"), []byte("paused"), 0o644))

	var out bytes.Buffer
	require.NoError(t, showStatus(&out))

	assert.Contains(t, out.String(), "state: paused")
	assert.Contains(t, out.String(), "tasks:")
}

func TestShowStatusWithoutControlFile(t *testing.T) {
	dir := t.TempDir()
	viper.Reset()
	viper.Set("stateDir", filepath.Join(dir, "state"))
	viper.Set("tasksPath", filepath.Join(dir, "tasks.json"))

	var out bytes.Buffer
	require.NoError(t, showStatus(&out))
	assert.Contains(t, out.String(), "not running")
}
