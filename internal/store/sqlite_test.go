package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.StartRun(RunSummary{RunID: "run-1", StartedAt: started, TargetBranch: "main"}))

	latest, err := s.LatestRun()
	require.NoError(t, err)
	require.Equal(t, "run-1", latest.RunID)
	require.Nil(t, latest.EndedAt)

	ended := started.Add(5 * time.Minute)
	require.NoError(t, s.FinishRun("run-1", ended, 3, 1, 0, 2, 1))

	latest, err = s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest.EndedAt)
	require.Equal(t, 3, latest.TasksOpened)
	require.Equal(t, 1, latest.TasksHealed)
	require.Equal(t, 2, latest.TasksComplete)
	require.Equal(t, 1, latest.PauseCount)
}

func TestTaskOutcomesOrderedByAttempt(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.StartRun(RunSummary{RunID: "run-1", StartedAt: base}))

	require.NoError(t, s.RecordTaskOutcome(TaskOutcome{RunID: "run-1", TaskID: "T-2", Status: "completed", AttemptedAt: base.Add(time.Second)}))
	require.NoError(t, s.RecordTaskOutcome(TaskOutcome{RunID: "run-1", TaskID: "T-1", Status: "completed", AttemptedAt: base}))

	outcomes, err := s.TaskOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, "T-1", outcomes[0].TaskID)
	require.Equal(t, "T-2", outcomes[1].TaskID)
}

func TestMergeEventsRecordedAndLimited(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.StartRun(RunSummary{RunID: "run-1", StartedAt: base}))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordMergeEvent(MergeEvent{
			RunID: "run-1", TaskID: "T-1", Commit: "deadbeef", Outcome: "landed",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.MergeEvents("run-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestRecentRunsOrdering(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.StartRun(RunSummary{RunID: "run-a", StartedAt: base}))
	require.NoError(t, s.StartRun(RunSummary{RunID: "run-b", StartedAt: base.Add(time.Minute)}))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-b", runs[0].RunID)
}
