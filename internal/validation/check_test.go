package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunCheckPassesOnZeroExit(t *testing.T) {
	dir := t.TempDir()
	cfg := CheckConfig{ID: "sanity", Command: []string{"true"}}
	res, err := RunCheck(context.Background(), cfg, dir, dir, time.Second, 0)
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, 0, res.ExitCode)
	require.FileExists(t, filepath.Join(dir, "sanity.log"))
}

func TestRunCheckRerunsOnFailureAndMarksFlakyWhenRerunPasses(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "attempt.txt")
	script := filepath.Join(dir, "flaky.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\nif [ -f \""+marker+"\" ]; then exit 0; fi\ntouch \""+marker+"\"\nexit 1\n"), 0o755))

	cfg := CheckConfig{ID: "unit", Command: []string{"/bin/sh", script}, RetryOnFailure: true, MaxReruns: 2}
	res, err := RunCheck(context.Background(), cfg, dir, dir, time.Second, 0)
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.True(t, res.Flaky)
}

func TestRunCheckFailsWhenNoCommandConfigured(t *testing.T) {
	dir := t.TempDir()
	_, err := RunCheck(context.Background(), CheckConfig{ID: "empty"}, dir, dir, time.Second, 0)
	require.Error(t, err)
}
