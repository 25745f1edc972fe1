// Package worker implements the Worker Pool (spec.md §4.2): a fixed set of
// workers, each owning one isolated workspace and one agent instance, plus
// the per-task commit collection algorithm (§4.2.2) and commit-recovery
// fallback (§4.2.3).
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"ralph/internal/agent"
	"ralph/internal/commitpolicy"
	"ralph/internal/vcs"
)

// ExcludedPaths are coordinator-internal paths never committed by a
// worker (spec.md §4.2.2 step 1): tracker store, coordinator state dir,
// workspaces dir, relative to the repo root.
var ExcludedPaths = []string{".ralph", ".ralph-state", "ralph-workspaces"}

// RunResult is what the Worker Pool hands back to the caller after one
// task run: the raw agent result plus any commits collected from the
// worker's branch.
type RunResult struct {
	Agent   agent.Result
	Commits []vcs.CommitMetadata
	NoOp    bool // commit recovery left a clean tree with no new commits
}

// StreamHooks forward stdout/stderr to the Event Bus and a per-task log
// file. ExecuteTask calls each hook once with the ANSI-stripped output
// after the agent run returns; output is not forwarded while the agent
// is still running.
type StreamHooks struct {
	OnStdout func(segment string)
	OnStderr func(segment string)
}

// Worker owns one workspace and one agent instance for the run's lifetime
// (spec.md §3).
type Worker struct {
	ID            string
	WorkspacePath string
	BranchName    string
	Agent         agent.Agent
	Driver        vcs.Driver

	reserved   int32
	baseCommit string
}

// New constructs a Worker already positioned at workspacePath with
// baseCommit as the integration head observed at provisioning time.
func New(id, workspacePath, branchName string, ag agent.Agent, driver vcs.Driver, baseCommit string) *Worker {
	return &Worker{
		ID:            id,
		WorkspacePath: workspacePath,
		BranchName:    branchName,
		Agent:         ag,
		Driver:        driver,
		baseCommit:    baseCommit,
	}
}

// TryReserve atomically claims the worker for dispatch. Returns false if
// already reserved.
func (w *Worker) TryReserve() bool {
	return atomic.CompareAndSwapInt32(&w.reserved, 0, 1)
}

// ReleaseReservation frees the worker for the next dispatch.
func (w *Worker) ReleaseReservation() {
	atomic.StoreInt32(&w.reserved, 0)
}

// IsBusy reports whether the worker currently holds a reservation.
func (w *Worker) IsBusy() bool {
	return atomic.LoadInt32(&w.reserved) == 1
}

// BaseCommit returns the integration head the worker last synced to.
func (w *Worker) BaseCommit() string { return w.baseCommit }

// ExecuteTask runs the agent against prompt inside the worker's workspace,
// then collects any resulting commits (§4.2.2), attempting the one-shot
// recovery prompt (§4.2.3) if the agent signaled completion with no
// commits but a dirty tree.
func (w *Worker) ExecuteTask(ctx context.Context, taskID, title, prompt string, hooks StreamHooks) (RunResult, error) {
	result, err := w.Agent.ExecuteTask(ctx, prompt, w.WorkspacePath)
	if err != nil {
		return RunResult{Agent: result}, fmt.Errorf("agent execution failed: %w", err)
	}
	if hooks.OnStdout != nil && result.Stdout != "" {
		hooks.OnStdout(stripANSI(result.Stdout))
	}
	if hooks.OnStderr != nil && result.Stderr != "" {
		hooks.OnStderr(stripANSI(result.Stderr))
	}

	commits, err := w.collectCommits(ctx, taskID, title)
	if err != nil {
		return RunResult{Agent: result}, err
	}

	if len(commits) == 0 && result.Completed {
		dirty, err := w.isDirty(ctx)
		if err != nil {
			return RunResult{Agent: result}, err
		}
		if dirty {
			recoveryResult, recErr := w.Agent.ExecuteTask(ctx, recoveryPrompt(taskID, result.Stdout), w.WorkspacePath)
			if recErr != nil {
				return RunResult{Agent: result}, fmt.Errorf("recovery prompt failed: %w", recErr)
			}
			if hooks.OnStdout != nil && recoveryResult.Stdout != "" {
				hooks.OnStdout(stripANSI(recoveryResult.Stdout))
			}
			commits, err = w.collectCommits(ctx, taskID, title)
			if err != nil {
				return RunResult{Agent: result}, err
			}
			stillDirty, err := w.isDirty(ctx)
			if err != nil {
				return RunResult{Agent: result}, err
			}
			if len(commits) == 0 && !stillDirty {
				return RunResult{Agent: result, NoOp: true}, nil
			}
		}
	}

	return RunResult{Agent: result, Commits: commits}, nil
}

func (w *Worker) isDirty(ctx context.Context) (bool, error) {
	status, err := w.Driver.StatusPorcelain(ctx, w.WorkspacePath)
	if err != nil {
		return false, fmt.Errorf("status check: %w", err)
	}
	return status != "", nil
}

func recoveryPrompt(taskID, stdoutTail string) string {
	tail := stdoutTail
	if len(tail) > 2000 {
		tail = tail[len(tail)-2000:]
	}
	return fmt.Sprintf(
		"Task %s: no commit was produced but the workspace has uncommitted changes.\n"+
			"Either commit the required changes or leave a clean tree.\n\nLast output tail:\n%s",
		taskID, tail,
	)
}

// collectCommits implements spec.md §4.2.2 in full: stage/filter excluded
// paths, normalize the top commit's message, enumerate new commits since
// baseCommit, filter to those the commit policy accepts, then advance
// baseCommit.
func (w *Worker) collectCommits(ctx context.Context, taskID, title string) ([]vcs.CommitMetadata, error) {
	status, err := w.Driver.StatusPorcelain(ctx, w.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	staged, err := w.Driver.DiffNameOnlyCached(ctx, w.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("diff --cached: %w", err)
	}

	if status != "" && len(staged) == 0 {
		if err := w.Driver.AddAll(ctx, w.WorkspacePath); err != nil {
			return nil, fmt.Errorf("add -A: %w", err)
		}
		if err := w.Driver.ResetPaths(ctx, w.WorkspacePath, ExcludedPaths); err != nil {
			return nil, fmt.Errorf("reset excluded paths: %w", err)
		}
		stillStaged, err := w.Driver.DiffNameOnlyCached(ctx, w.WorkspacePath)
		if err != nil {
			return nil, fmt.Errorf("diff --cached after stage: %w", err)
		}
		if len(stillStaged) > 0 {
			subject := commitpolicy.Subject(taskID, title)
			trailer := commitpolicy.Trailer(taskID)
			if err := w.Driver.Commit(ctx, w.WorkspacePath, subject, trailer); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
		}
	}

	head, err := w.Driver.RevParse(ctx, w.WorkspacePath, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("rev-parse HEAD: %w", err)
	}
	if head == w.baseCommit {
		return nil, nil
	}

	hashes, err := w.Driver.RevList(ctx, w.WorkspacePath, w.baseCommit, "HEAD", true)
	if err != nil {
		return nil, fmt.Errorf("rev-list: %w", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	if err := w.normalizeHead(ctx, taskID, title, hashes[len(hashes)-1]); err != nil {
		return nil, err
	}

	var accepted []vcs.CommitMetadata
	for _, hash := range hashes {
		meta, err := w.Driver.ShowCommit(ctx, w.WorkspacePath, hash)
		if err != nil {
			return nil, fmt.Errorf("show commit %s: %w", hash, err)
		}
		ok, strict := commitpolicy.Accepts(meta.Subject, meta.Body, taskID)
		if !ok {
			continue
		}
		_ = strict // callers may choose to log non-strict acceptance
		accepted = append(accepted, meta)
	}

	w.baseCommit, err = w.Driver.RevParse(ctx, w.WorkspacePath, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("rev-parse HEAD after collection: %w", err)
	}
	return accepted, nil
}

// normalizeHead amends HEAD if it lacks the task-id subject prefix or
// trailer — idempotent normalization (spec.md §4.2.2 step 4).
func (w *Worker) normalizeHead(ctx context.Context, taskID, title, topHash string) error {
	meta, err := w.Driver.ShowCommit(ctx, w.WorkspacePath, topHash)
	if err != nil {
		return fmt.Errorf("show top commit: %w", err)
	}
	if commitpolicy.HasSubjectPrefix(meta.Subject, taskID) || commitpolicy.HasTrailer(meta.Body, taskID) {
		return nil
	}
	subject := commitpolicy.Subject(taskID, title)
	trailer := commitpolicy.Trailer(taskID)
	message := subject + "\n\n" + trailer
	if err := w.Driver.CommitAmend(ctx, w.WorkspacePath, message); err != nil {
		return fmt.Errorf("amend head for normalization: %w", err)
	}
	return nil
}

// Dispose closes the worker's agent. Workspace teardown is the Workspace
// Manager's responsibility.
func (w *Worker) Dispose() error {
	return w.Agent.Close()
}
