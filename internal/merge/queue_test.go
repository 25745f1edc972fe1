package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ralph/internal/events"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

var errResolveStub = errors.New("resolution strategy stub failure")

type fakeWorkspaces struct {
	path string
}

func (f *fakeWorkspaces) CreateEphemeral(ctx context.Context, baseRef string) (string, func(), error) {
	return f.path, func() {}, nil
}

func newTestBus(t *testing.T) *events.Bus {
	b, err := events.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestEnqueueIsIdempotentByTaskAndCommit(t *testing.T) {
	fake := &vcs.FakeDriver{}
	bus := newTestBus(t)
	q := New(fake, bus, nil, t.TempDir(), &fakeWorkspaces{}, nil)

	q.Enqueue(Entry{TaskID: "T1", Commit: "c1"})
	q.Enqueue(Entry{TaskID: "T1", Commit: "c1"})
	require.Len(t, q.items, 1)
}

func TestProcessSucceedsAndTriggersPostMerge(t *testing.T) {
	var gotTask string
	fake := &vcs.FakeDriver{
		RevParseFunc: func(ctx context.Context, dir, ref string) (string, error) { return "headsha", nil },
	}
	bus := newTestBus(t)
	q := New(fake, bus, nil, t.TempDir(), &fakeWorkspaces{}, func(ctx context.Context, taskID string, commits []string) {
		gotTask = taskID
	})
	q.Enqueue(Entry{TaskID: "T1", Commit: "c1"})
	e := <-q.items
	q.process(context.Background(), e, nil)
	require.Equal(t, "T1", gotTask)
}

func TestProcessEmptyCherryPickSkipsAndSucceeds(t *testing.T) {
	fake := &vcs.FakeDriver{
		CherryPickFunc: func(ctx context.Context, dir, commit string) vcs.CherryPickResult {
			return vcs.CherryPickResult{Outcome: vcs.CherryPickEmpty}
		},
		RevParseFunc: func(ctx context.Context, dir, ref string) (string, error) { return "headsha", nil },
	}
	bus := newTestBus(t)
	called := false
	q := New(fake, bus, nil, t.TempDir(), &fakeWorkspaces{}, func(ctx context.Context, taskID string, commits []string) {
		called = true
	})
	q.Enqueue(Entry{TaskID: "T1", Commit: "c1"})
	e := <-q.items
	q.process(context.Background(), e, nil)
	require.True(t, called)
}

func TestProcessDirtyIntegrationTriggersMergeFailure(t *testing.T) {
	fr, err := tracker.NewFileTracker(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	fake := &vcs.FakeDriver{
		StatusPorcelainFunc: func(ctx context.Context, dir string) (string, error) { return "M dirty.go", nil },
	}
	bus := newTestBus(t)
	var failed bool
	unsub := bus.On(func(ev events.Event) {
		if ev.Type == events.MergeFailed {
			failed = true
		}
	})
	defer unsub()

	q := New(fake, bus, fr, t.TempDir(), &fakeWorkspaces{}, nil)
	q.Enqueue(Entry{TaskID: "T1", Commit: "c1"})
	e := <-q.items
	q.process(context.Background(), e, nil)
	require.True(t, failed)
}

func TestResolveSimpleMarkerStripsWhitespaceEquivalentRegions(t *testing.T) {
	dir := t.TempDir()
	content := "line1\n<<<<<<< HEAD\nfoo  bar\n=======\nfoo bar\n>>>>>>> branch\nline2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.go"), []byte(content), 0o644))

	ok := resolveSimpleMarker(dir, "f.go")
	require.True(t, ok)

	out, err := os.ReadFile(filepath.Join(dir, "f.go"))
	require.NoError(t, err)
	require.Equal(t, "line1\nfoo bar\nline2\n", string(out))
}

func TestResolveSimpleMarkerRejectsMultipleRegions(t *testing.T) {
	dir := t.TempDir()
	content := "<<<<<<< HEAD\na\n=======\nb\n>>>>>>> x\n<<<<<<< HEAD\nc\n=======\nd\n>>>>>>> y\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.go"), []byte(content), 0o644))

	ok := resolveSimpleMarker(dir, "f.go")
	require.False(t, ok)
}

func TestResolverFallsBackToAgentWhenAutomaticFails(t *testing.T) {
	dir := t.TempDir()
	attempts := 0
	fake := &vcs.FakeDriver{
		CherryPickFunc: func(ctx context.Context, d, commit string) vcs.CherryPickResult {
			return vcs.CherryPickResult{Outcome: vcs.CherryPickConflict}
		},
		ConflictedPathsFunc: func(ctx context.Context, d string) ([]string, error) {
			attempts++
			if attempts == 1 {
				return []string{"f.go"}, nil
			}
			return nil, nil
		},
		MergeToolFunc:      func(ctx context.Context, d, file string) error { return errResolveStub },
		CheckoutTheirsFunc: func(ctx context.Context, d, file string) error { return errResolveStub },
		CheckoutOursFunc:   func(ctx context.Context, d, file string) error { return errResolveStub },
		CherryPickContinueFunc: func(ctx context.Context, d string) vcs.CherryPickResult {
			return vcs.CherryPickResult{Outcome: vcs.CherryPickSucceeded}
		},
		RevParseFunc: func(ctx context.Context, d, ref string) (string, error) { return "resolved-sha", nil },
	}
	agentCalled := false
	resolver := NewResolver(fake, &fakeWorkspaces{path: dir}, "integration", func(ctx context.Context, workspacePath, prompt string) error {
		agentCalled = true
		return nil
	})
	commit, _, err := resolver.Resolve(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, agentCalled)
	require.Equal(t, "resolved-sha", commit)
}
