package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ralph/internal/vcs"
)

func TestCreateWorkspacesRejectsDuplicateBranch(t *testing.T) {
	fake := &vcs.FakeDriver{}
	m := New(fake, "/repo", t.TempDir())

	paths, errs := m.CreateWorkspaces(context.Background(), []Spec{
		{WorkerID: "w1", BranchName: "agent/T1", BaseRef: "main"},
	})
	require.Len(t, errs, 0)
	require.Contains(t, paths, "w1")

	// A second attempt to take the same branch: the first call registered
	// it in byPath, which createOne checks under lock.
	_, err := m.createOne(context.Background(), Spec{WorkerID: "w2", BranchName: "agent/T1", BaseRef: "main"})
	require.Error(t, err)
}

func TestCreateWorkspacesPartialFailureDoesNotAbortOthers(t *testing.T) {
	calls := 0
	fake := &vcs.FakeDriver{
		WorktreeAddFunc: func(ctx context.Context, repoDir string, spec vcs.WorktreeSpec) error {
			calls++
			if spec.BranchName == "agent/bad" {
				return assertErr
			}
			return nil
		},
	}
	m := New(fake, "/repo", t.TempDir())

	paths, errs := m.CreateWorkspaces(context.Background(), []Spec{
		{WorkerID: "good", BranchName: "agent/good", BaseRef: "main"},
		{WorkerID: "bad", BranchName: "agent/bad", BaseRef: "main"},
	})

	require.Len(t, paths, 1)
	require.Contains(t, paths, "good")
	require.Len(t, errs, 1)
	require.Contains(t, errs, "bad")
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestRemoveWorkspaceIsNoOpWhenUnknown(t *testing.T) {
	fake := &vcs.FakeDriver{}
	m := New(fake, "/repo", t.TempDir())
	require.NoError(t, m.RemoveWorkspace(context.Background(), "never-created"))
}

func TestEphemeralWorkspacePathUnderEphemeralDir(t *testing.T) {
	fake := &vcs.FakeDriver{}
	root := t.TempDir()
	m := New(fake, "/repo", root)

	path, cleanup, err := m.CreateEphemeral(context.Background(), "integration")
	require.NoError(t, err)
	defer cleanup()
	require.Equal(t, filepath.Dir(path), filepath.Join(root, "ephemeral"))
}
