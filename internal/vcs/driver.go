// Package vcs wraps the version-control primitives the coordinator drives:
// worktrees, cherry-picks, stashes, and the read-only commit projections it
// needs for merge serialization and mainline promotion. The coordinator is
// specified against these primitives, not against git's CLI as such, but the
// Driver implementation here shells out to git.
package vcs

import (
	"context"
	"time"
)

// Person is a commit author/committer identity.
type Person struct {
	Name  string
	Email string
	Date  time.Time
}

// CommitMetadata is a read-only projection of a committed change.
type CommitMetadata struct {
	Hash         string
	ShortHash    string
	Subject      string
	Body         string
	Author       Person
	Committer    Person
	Parents      []string
	Tree         string
	FilesChanged int
	Insertions   int
	Deletions    int
	FileNames    []string
}

// CherryPickOutcome classifies the result of a cherry-pick attempt.
type CherryPickOutcome int

const (
	CherryPickFailed CherryPickOutcome = iota
	CherryPickSucceeded
	CherryPickEmpty
	CherryPickConflict
)

// CherryPickResult carries the raw output alongside the classified outcome,
// since conflict/empty detection is a substring match on that output
// (spec.md §6 "Empty cherry-pick detection").
type CherryPickResult struct {
	Outcome CherryPickOutcome
	Output  string
	Err     error
}

// WorktreeSpec describes a single worktree to provision.
type WorktreeSpec struct {
	Path       string
	BranchName string
	BaseRef    string
	Force      bool // -B semantics: reset branch to BaseRef if it exists
}

// Driver is the set of version-control operations the coordinator depends
// on. No assumption is made that the underlying tool is literally git beyond
// this interface's semantics (spec.md §1).
type Driver interface {
	// Worktree lifecycle
	WorktreeAdd(ctx context.Context, repoDir string, spec WorktreeSpec) error
	WorktreeRemove(ctx context.Context, repoDir, path string) error
	WorktreePrune(ctx context.Context, repoDir string) error

	// Working-tree inspection/staging
	StatusPorcelain(ctx context.Context, dir string) (string, error)
	AddAll(ctx context.Context, dir string) error
	ResetPaths(ctx context.Context, dir string, paths []string) error
	DiffNameOnlyCached(ctx context.Context, dir string) ([]string, error)

	// Commit creation/inspection
	Commit(ctx context.Context, dir, subject, trailer string) error
	CommitAmend(ctx context.Context, dir, message string) error
	CommitMessage(ctx context.Context, dir, ref string) (string, error)
	ShowCommit(ctx context.Context, dir, ref string) (CommitMetadata, error)
	RevParse(ctx context.Context, dir, ref string) (string, error)
	RevList(ctx context.Context, dir, base, head string, reverse bool) ([]string, error)
	DiffTreeNameOnly(ctx context.Context, dir, commit string) ([]string, error)

	// Branch/tag/ref management
	BranchForce(ctx context.Context, dir, name, ref string) error
	TagAnnotated(ctx context.Context, dir, name, msg, commit string) error
	UpdateRef(ctx context.Context, dir, ref, commit string) error

	// Merge serialization
	CherryPick(ctx context.Context, dir, commit string) CherryPickResult
	CherryPickContinue(ctx context.Context, dir string) CherryPickResult
	CherryPickSkip(ctx context.Context, dir string) error
	CherryPickAbort(ctx context.Context, dir string) error
	ConflictedPaths(ctx context.Context, dir string) ([]string, error)
	CheckoutOurs(ctx context.Context, dir, file string) error
	CheckoutTheirs(ctx context.Context, dir, file string) error
	MergeTool(ctx context.Context, dir, file string) error

	// Mainline promotion
	MergeFFOnly(ctx context.Context, dir, commit string) error
	ResetHard(ctx context.Context, dir, commit string) error
	Clean(ctx context.Context, dir string) error
	StashPush(ctx context.Context, dir, message string) error
	StashListLatest(ctx context.Context, dir string) (string, error)
	StashApply(ctx context.Context, dir, ref string) error
	StashDrop(ctx context.Context, dir, ref string) error
	Revert(ctx context.Context, dir, commit string) error

	// Bare-clone bootstrap: the coordinator keeps exactly one clone of the
	// tracked repository (spec.md §4.3 "Shared Clone") and provisions every
	// workspace as a worktree off it.
	Clone(ctx context.Context, url, dir string) error
	RepoExists(dir string) bool
	ConfigSet(ctx context.Context, dir, key, value string) error
	Fetch(ctx context.Context, dir, remote, ref string) error
	Push(ctx context.Context, dir, remote, ref string) error
	CheckoutBranch(ctx context.Context, dir, branch string) error
}
