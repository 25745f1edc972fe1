// Package cmdutils holds small helpers shared by cmd/ralph's subcommands:
// resolving the agent executable and repo root, and bootstrapping the
// shared clone the Workspace Manager provisions worktrees against.
package cmdutils

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"ralph/internal/agent"
	"ralph/internal/dockeragent"
	"ralph/internal/vcs"
)

// ResolveAgentCommand finds the agent executable, preferring an explicit
// path over config over PATH lookup.
var ResolveAgentCommand = func(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if configured := viper.GetString("agent.command"); configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath("ralph-agent")
	if err != nil {
		return "", fmt.Errorf("resolve agent executable: set agent.command or install ralph-agent on PATH: %w", err)
	}
	return path, nil
}

// GetAgentClient builds the configured Agent implementation: a Docker
// container agent when agent.useDocker is set, otherwise a local
// subprocess agent invoking the resolved executable.
var GetAgentClient = func(ctx context.Context, explicitCommand string) (agent.Agent, error) {
	command, err := ResolveAgentCommand(explicitCommand)
	if err != nil {
		return nil, err
	}

	timeoutSeconds := viper.GetInt("agent.timeoutSeconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = 300
	}

	if viper.GetBool("agent.useDocker") {
		return dockeragent.NewAgent(dockeragent.Config{
			Image:       viper.GetString("agent.dockerImage"),
			AgentBinary: command,
		})
	}

	return agent.NewExecAgent(command, nil, nil, time.Duration(timeoutSeconds)*time.Second), nil
}

// EnsureSharedClone makes sure repoDir holds a clone of repoURL on
// baseBranch, the way the teacher's SetupGitWorkspace bootstraps a fresh
// checkout before branching per ticket — here it is the one clone every
// worker workspace worktrees off of (spec.md §4.3).
var EnsureSharedClone = func(ctx context.Context, driver vcs.Driver, repoURL, repoDir, baseBranch string) error {
	if driver != nil && driver.RepoExists(repoDir) {
		return nil
	}
	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err == nil {
		return nil
	}
	if repoURL == "" {
		return fmt.Errorf("ensure shared clone: no repo directory at %s and no repoURL configured to clone", repoDir)
	}

	fmt.Fprintf(os.Stderr, "Cloning %s into %s...\n", repoURL, repoDir)
	if err := driver.Clone(ctx, repoURL, repoDir); err != nil {
		return fmt.Errorf("clone %s: %w", repoURL, err)
	}
	if baseBranch != "" {
		if err := driver.CheckoutBranch(ctx, repoDir, baseBranch); err != nil {
			return fmt.Errorf("checkout %s: %w", baseBranch, err)
		}
	}
	return nil
}
