package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteControlStateCreatesStateDirAndFile(t *testing.T) {
	dir := t.TempDir()
	viper.Reset()
	viper.Set("stateDir", filepath.Join(dir, "state"))

	require.NoError(t, writeControlState("paused"))

	raw, err := os.ReadFile(filepath.Join(dir, "state", "control"))
	require.NoError(t, err)
	assert.Equal(t, "paused", string(raw))

	require.NoError(t, writeControlState("running"))
	raw, err = os.ReadFile(filepath.Join(dir, "state", "control"))
	require.NoError(t, err)
	assert.Equal(t, "running", string(raw))
}
