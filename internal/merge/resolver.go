package merge

import (
	"context"
	"fmt"
	"strings"

	"ralph/internal/vcs"
)

// Resolver implements the Conflict Resolver (spec.md §4.4.2): it retries a
// failed cherry-pick in a fresh ephemeral workspace, working through
// ordered automatic strategies before falling back to an agent-driven
// resolution.
type Resolver struct {
	driver     vcs.Driver
	workspaces workspaceCreator
	integRef   string // branch/ref the ephemeral workspace branches from
	agent      ResolutionAgent
}

// NewResolver constructs a Resolver. agent may be nil, in which case
// unresolved conflicts always fall through to handleMergeFailure.
func NewResolver(driver vcs.Driver, ws workspaceCreator, integRef string, agent ResolutionAgent) *Resolver {
	return &Resolver{driver: driver, workspaces: ws, integRef: integRef, agent: agent}
}

// Resolve attempts to land commit on a fresh workspace branched from
// integration, returning the resulting commit hash and the files that
// required manual resolution strategies. It always tears down the
// ephemeral workspace before returning (step 5).
func (r *Resolver) Resolve(ctx context.Context, commit string) (resolvedCommit string, conflictFiles []string, err error) {
	path, cleanup, err := r.workspaces.CreateEphemeral(ctx, r.integRef)
	if err != nil {
		return "", nil, fmt.Errorf("create ephemeral workspace: %w", err)
	}
	defer cleanup()

	result := r.driver.CherryPick(ctx, path, commit)
	switch result.Outcome {
	case vcs.CherryPickSucceeded:
		head, err := r.driver.RevParse(ctx, path, "HEAD")
		return head, nil, err
	case vcs.CherryPickEmpty:
		if err := r.driver.CherryPickSkip(ctx, path); err != nil {
			return "", nil, fmt.Errorf("skip empty cherry-pick: %w", err)
		}
		head, err := r.driver.RevParse(ctx, path, "HEAD")
		return head, nil, err
	}

	conflictFiles, cfErr := r.driver.ConflictedPaths(ctx, path)
	if cfErr != nil {
		return "", nil, fmt.Errorf("list conflicted paths: %w", cfErr)
	}

	unresolved := r.resolveAutomatically(ctx, path, conflictFiles)
	if len(unresolved) == 0 {
		cont := r.driver.CherryPickContinue(ctx, path)
		if cont.Outcome == vcs.CherryPickSucceeded || cont.Outcome == vcs.CherryPickEmpty {
			head, err := r.driver.RevParse(ctx, path, "HEAD")
			return head, conflictFiles, err
		}
	}

	if r.agent == nil {
		return "", conflictFiles, fmt.Errorf("conflict unresolved by automatic strategies: %s", strings.Join(conflictFiles, ", "))
	}

	if err := r.agent(ctx, path, resolutionPrompt(conflictFiles)); err != nil {
		return "", conflictFiles, fmt.Errorf("agent-driven resolution failed: %w", err)
	}
	stillConflicted, err := r.driver.ConflictedPaths(ctx, path)
	if err != nil {
		return "", conflictFiles, fmt.Errorf("recheck conflicted paths: %w", err)
	}
	if len(stillConflicted) > 0 {
		return "", stillConflicted, fmt.Errorf("agent left %d file(s) unresolved", len(stillConflicted))
	}
	cont := r.driver.CherryPickContinue(ctx, path)
	if cont.Outcome != vcs.CherryPickSucceeded && cont.Outcome != vcs.CherryPickEmpty {
		return "", conflictFiles, fmt.Errorf("cherry-pick --continue failed after agent resolution")
	}
	head, err := r.driver.RevParse(ctx, path, "HEAD")
	return head, conflictFiles, err
}

// resolveAutomatically walks each conflicted file through the ordered
// strategies from spec.md §4.4.2 step 2, returning the files still
// unresolved afterward.
func (r *Resolver) resolveAutomatically(ctx context.Context, path string, files []string) []string {
	var unresolved []string
	for _, f := range files {
		if err := r.driver.MergeTool(ctx, path, f); err == nil {
			continue
		}
		if resolveSimpleMarker(path, f) {
			continue
		}
		if err := r.driver.CheckoutTheirs(ctx, path, f); err == nil {
			continue
		}
		if err := r.driver.CheckoutOurs(ctx, path, f); err == nil {
			continue
		}
		unresolved = append(unresolved, f)
	}
	if len(unresolved) == 0 && len(files) > 0 {
		_ = r.driver.AddAll(ctx, path)
	}
	return unresolved
}

func resolutionPrompt(files []string) string {
	return fmt.Sprintf(
		"Resolve the merge conflicts in the following files: %s.\n"+
			"Do not refactor unrelated code. Do not switch branches or run any git commands yourself.\n"+
			"Make the minimal edits needed to remove conflict markers and produce working code.\n"+
			"When finished, end your final message with the line: RESOLUTION_COMPLETE",
		strings.Join(files, ", "),
	)
}
