package mainline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ralph/internal/events"
	"ralph/internal/vcs"
)

var errSyncStub = errors.New("mainline sync stub failure")

func newTestBus(t *testing.T) *events.Bus {
	b, err := events.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSyncFastForwardCleanWorkspace(t *testing.T) {
	var ffCalled bool
	fake := &vcs.FakeDriver{
		MergeFFOnlyFunc: func(ctx context.Context, dir, commit string) error {
			ffCalled = true
			return nil
		},
	}
	bus := newTestBus(t)
	s := New(fake, bus, nil, t.TempDir(), "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	require.True(t, ffCalled)
	require.Equal(t, 0, s.PendingCount())
}

func TestSyncFallsBackToResetHardOnFastForwardFailure(t *testing.T) {
	var resetCalled bool
	fake := &vcs.FakeDriver{
		MergeFFOnlyFunc: func(ctx context.Context, dir, commit string) error { return errSyncStub },
		ResetHardFunc: func(ctx context.Context, dir, commit string) error {
			resetCalled = true
			return nil
		},
	}
	bus := newTestBus(t)
	s := New(fake, bus, nil, t.TempDir(), "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	require.True(t, resetCalled)
}

func TestSyncDirtyWorkspaceStashesAndReapplies(t *testing.T) {
	var stashed, applied, dropped bool
	fake := &vcs.FakeDriver{
		StatusPorcelainFunc: func(ctx context.Context, dir string) (string, error) { return "M x.go", nil },
		StashPushFunc: func(ctx context.Context, dir, msg string) error {
			stashed = true
			return nil
		},
		StashListLatestFunc: func(ctx context.Context, dir string) (string, error) { return "stash@{0}", nil },
		StashApplyFunc: func(ctx context.Context, dir, ref string) error {
			applied = true
			return nil
		},
		StashDropFunc: func(ctx context.Context, dir, ref string) error {
			dropped = true
			return nil
		},
	}
	bus := newTestBus(t)
	s := New(fake, bus, nil, t.TempDir(), "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	require.True(t, stashed)
	require.True(t, applied)
	require.True(t, dropped)
}

func TestSyncUsesUpdateRefWhenBaseNotCheckedOut(t *testing.T) {
	var updated bool
	fake := &vcs.FakeDriver{
		UpdateRefFunc: func(ctx context.Context, dir, ref, commit string) error {
			updated = true
			require.Equal(t, "refs/heads/main", ref)
			return nil
		},
	}
	bus := newTestBus(t)
	s := New(fake, bus, nil, "", "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	require.True(t, updated)
}

func TestSyncFailureMarksPendingMain(t *testing.T) {
	fake := &vcs.FakeDriver{
		MergeFFOnlyFunc: func(ctx context.Context, dir, commit string) error { return errSyncStub },
		ResetHardFunc:   func(ctx context.Context, dir, commit string) error { return errSyncStub },
	}
	bus := newTestBus(t)
	s := New(fake, bus, nil, t.TempDir(), "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	require.Equal(t, 1, s.PendingCount())
}

func TestRetryPendingAppliesExponentialBackoff(t *testing.T) {
	require.Equal(t, 2*time.Second, backoffFor(1))
	require.Equal(t, 4*time.Second, backoffFor(2))
	require.Equal(t, 8*time.Second, backoffFor(3))
	require.Equal(t, 30*time.Second, backoffFor(10))
}

func TestRetryPendingEmitsAlertAfterMaxAttempts(t *testing.T) {
	fake := &vcs.FakeDriver{
		MergeFFOnlyFunc: func(ctx context.Context, dir, commit string) error { return errSyncStub },
		ResetHardFunc:   func(ctx context.Context, dir, commit string) error { return errSyncStub },
	}
	bus := newTestBus(t)
	var alerted bool
	unsub := bus.On(func(ev events.Event) {
		if ev.Type == events.MainSyncAlert {
			alerted = true
		}
	})
	defer unsub()

	s := New(fake, bus, nil, t.TempDir(), "main")
	s.Sync(context.Background(), "T1", []string{"c1"}, "headsha")
	for i := 0; i < retryMax+1; i++ {
		// Skip the backoff wait so each call is a real attempt.
		s.mu.Lock()
		s.nextAttemptAt = time.Time{}
		s.mu.Unlock()
		s.RetryPending(context.Background(), "headsha")
	}
	require.True(t, alerted)
}
