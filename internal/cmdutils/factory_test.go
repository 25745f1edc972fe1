package cmdutils

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralph/internal/dockeragent"
	"ralph/internal/vcs"
)

func TestResolveAgentCommand(t *testing.T) {
	viper.Reset()

	t.Run("Explicit wins", func(t *testing.T) {
		path, err := ResolveAgentCommand("/usr/local/bin/my-agent")
		require.NoError(t, err)
		assert.Equal(t, "/usr/local/bin/my-agent", path)
	})

	t.Run("Falls back to config", func(t *testing.T) {
		viper.Set("agent.command", "/opt/agent/run")
		path, err := ResolveAgentCommand("")
		require.NoError(t, err)
		assert.Equal(t, "/opt/agent/run", path)
	})

	t.Run("Errors when nothing resolves", func(t *testing.T) {
		viper.Reset()
		_, err := ResolveAgentCommand("")
		assert.Error(t, err)
	})
}

func TestGetAgentClient(t *testing.T) {
	viper.Reset()
	viper.Set("agent.timeoutSeconds", 60)

	client, err := GetAgentClient(context.Background(), "/bin/echo")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestGetAgentClientUsesDockerWhenConfigured(t *testing.T) {
	viper.Reset()
	viper.Set("agent.useDocker", true)
	viper.Set("agent.dockerImage", "ralph-agent:latest")

	client, err := GetAgentClient(context.Background(), "/usr/local/bin/ralph-agent")
	require.NoError(t, err)
	assert.IsType(t, &dockeragent.Agent{}, client)
}

func TestEnsureSharedClone(t *testing.T) {
	t.Run("Existing repo is left alone", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755))

		err := EnsureSharedClone(context.Background(), nil, "", tmpDir, "main")
		assert.NoError(t, err)
	})

	t.Run("No repo and no URL errors", func(t *testing.T) {
		tmpDir := t.TempDir()
		err := EnsureSharedClone(context.Background(), nil, "", tmpDir, "main")
		assert.Error(t, err)
	})

	t.Run("Clones when repoURL given", func(t *testing.T) {
		if _, err := exec.LookPath("git"); err != nil {
			t.Skip("git not available")
		}
		srcDir := t.TempDir()
		require.NoError(t, exec.Command("git", "init", "--initial-branch=main", srcDir).Run())
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, "README.md"), []byte("hi"), 0o644))
		addCmd := exec.Command("git", "add", "README.md")
		addCmd.Dir = srcDir
		require.NoError(t, addCmd.Run())
		commitCmd := exec.Command("git", "-c", "user.email=a@b.c", "-c", "user.name=a", "commit", "-m", "init")
		commitCmd.Dir = srcDir
		require.NoError(t, commitCmd.Run())

		dstDir := filepath.Join(t.TempDir(), "clone")
		err := EnsureSharedClone(context.Background(), vcs.NewExecDriver(), srcDir, dstDir, "main")
		assert.NoError(t, err)
		_, statErr := os.Stat(filepath.Join(dstDir, ".git"))
		assert.NoError(t, statErr)
	})
}
