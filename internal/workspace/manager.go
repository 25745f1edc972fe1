// Package workspace owns the lifecycle of every isolated checkout the
// coordinator uses: worker workspaces, the long-lived merge and mainline
// workspaces, the validator workspace, and ephemeral conflict-resolution
// workspaces (spec.md §4.3).
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ralph/internal/vcs"
)

// Spec describes one workspace to provision.
type Spec struct {
	WorkerID   string
	BranchName string
	BaseRef    string
	LockReason string
}

// Manager provisions and prunes worktrees rooted at a single shared clone,
// enforcing that no two workspaces share a branch (spec.md §3 invariant,
// §8 P3).
type Manager struct {
	repoDir  string
	rootDir  string
	driver   vcs.Driver

	mu      sync.Mutex
	byPath  map[string]string // path -> branch, for the single-writer-per-branch invariant
	byOwner map[string]string // workerId/owner key -> path
}

// New builds a Manager whose worktrees live under rootDir and are added
// against the shared clone at repoDir.
func New(driver vcs.Driver, repoDir, rootDir string) *Manager {
	return &Manager{
		repoDir: repoDir,
		rootDir: rootDir,
		driver:  driver,
		byPath:  make(map[string]string),
		byOwner: make(map[string]string),
	}
}

func (m *Manager) pathFor(owner string) string {
	return filepath.Join(m.rootDir, owner)
}

// CreateWorkspaces provisions a batch of worktrees in parallel, returning
// workerId → path. A failure for one spec does not abort the others —
// workspace faults exclude only the affected worker for the run
// (spec.md §7).
func (m *Manager) CreateWorkspaces(ctx context.Context, specs []Spec) (map[string]string, map[string]error) {
	type result struct {
		owner string
		path  string
		err   error
	}
	results := make(chan result, len(specs))
	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		go func(spec Spec) {
			defer wg.Done()
			path, err := m.createOne(ctx, spec)
			results <- result{owner: spec.WorkerID, path: path, err: err}
		}(spec)
	}
	wg.Wait()
	close(results)

	paths := make(map[string]string)
	errs := make(map[string]error)
	for r := range results {
		if r.err != nil {
			errs[r.owner] = r.err
			continue
		}
		paths[r.owner] = r.path
	}
	return paths, errs
}

func (m *Manager) createOne(ctx context.Context, spec Spec) (string, error) {
	path := m.pathFor(spec.WorkerID)

	m.mu.Lock()
	for _, branch := range m.byPath {
		if branch == spec.BranchName {
			m.mu.Unlock()
			return "", fmt.Errorf("branch %s already checked out in another workspace", spec.BranchName)
		}
	}
	m.mu.Unlock()

	if err := m.driver.WorktreeAdd(ctx, m.repoDir, vcs.WorktreeSpec{
		Path:       path,
		BranchName: spec.BranchName,
		BaseRef:    spec.BaseRef,
	}); err != nil {
		return "", fmt.Errorf("create workspace for %s: %w", spec.WorkerID, err)
	}

	m.mu.Lock()
	m.byPath[path] = spec.BranchName
	m.byOwner[spec.WorkerID] = path
	m.mu.Unlock()
	return path, nil
}

// RemoveWorkspace force-removes the worktree owned by owner.
func (m *Manager) RemoveWorkspace(ctx context.Context, owner string) error {
	m.mu.Lock()
	path, ok := m.byOwner[owner]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := m.driver.WorktreeRemove(ctx, m.repoDir, path); err != nil {
		return fmt.Errorf("remove workspace %s: %w", owner, err)
	}

	m.mu.Lock()
	delete(m.byPath, path)
	delete(m.byOwner, owner)
	m.mu.Unlock()
	return nil
}

// PruneWorkspaces reconciles orphaned worktree registrations at startup.
func (m *Manager) PruneWorkspaces(ctx context.Context) error {
	return m.driver.WorktreePrune(ctx, m.repoDir)
}

// CreateEphemeral provisions a single conflict-resolution workspace
// branched from baseRef, returning its path and a cleanup func that must
// run even on exceptions (spec.md §4.4.2 step 5).
func (m *Manager) CreateEphemeral(ctx context.Context, baseRef string) (path string, cleanup func(), err error) {
	name := fmt.Sprintf("resolve-%d", time.Now().UnixNano())
	path = filepath.Join(m.rootDir, "ephemeral", name)
	branch := fmt.Sprintf("ralph/resolve-%s", name)

	if err := m.driver.WorktreeAdd(ctx, m.repoDir, vcs.WorktreeSpec{
		Path:       path,
		BranchName: branch,
		BaseRef:    baseRef,
	}); err != nil {
		return "", func() {}, fmt.Errorf("create ephemeral workspace: %w", err)
	}

	cleanup = func() {
		_ = m.driver.WorktreeRemove(context.Background(), m.repoDir, path)
	}
	return path, cleanup, nil
}

// SnapshotTag creates an annotated recovery-anchor tag on baseRef before
// the first dispatch of a run (spec.md §4.3 "Snapshot").
func (m *Manager) SnapshotTag(ctx context.Context, dir, baseRef string) (string, error) {
	name := fmt.Sprintf("parallel-snapshot-%s-%s", baseRef, time.Now().UTC().Format("20060102T150405Z"))
	if err := m.driver.TagAnnotated(ctx, dir, name, "coordinator run snapshot", baseRef); err != nil {
		return "", fmt.Errorf("create snapshot tag: %w", err)
	}
	return name, nil
}

// EnsureRootDir makes sure the workspaces root directory exists.
func (m *Manager) EnsureRootDir() error {
	return os.MkdirAll(m.rootDir, 0o755)
}
