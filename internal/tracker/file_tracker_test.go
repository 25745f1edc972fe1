package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, tasks []Task) *FileTracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	tr, err := NewFileTracker(path)
	require.NoError(t, err)
	for _, task := range tasks {
		tr.tasks[task.ID] = task
	}
	return tr
}

func TestNextReadyTaskSkipsBlockedDependencies(t *testing.T) {
	tr := newTestTracker(t, []Task{
		{ID: "T1", Status: Open, DependsOn: []string{"T0"}},
		{ID: "T0", Status: InProgress},
		{ID: "T2", Status: Open},
	})

	task, ok, err := tr.NextReadyTask(nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T2", task.ID)
}

func TestNextReadyTaskHonoursCompletedDependency(t *testing.T) {
	tr := newTestTracker(t, []Task{
		{ID: "T1", Status: Open, DependsOn: []string{"T0"}},
		{ID: "T0", Status: Completed},
	})

	task, ok, err := tr.NextReadyTask(nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T1", task.ID)
}

func TestClaimTaskIsAtomicAgainstAlreadyClaimed(t *testing.T) {
	tr := newTestTracker(t, []Task{{ID: "T1", Status: Open}})

	ok, err := tr.ClaimTask("T1", "worker-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.ClaimTask("T1", "worker-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetStaleIgnoresActiveLeasesAndZeroUpdatedAt(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	tr := newTestTracker(t, []Task{
		{ID: "T1", Status: InProgress, UpdatedAt: old},
		{ID: "T2", Status: InProgress, UpdatedAt: old},
		{ID: "T3", Status: InProgress}, // zero UpdatedAt: never reset
	})

	reset, err := tr.ResetStale(30*time.Minute, map[string]bool{"T2": true})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"T1"}, reset)

	task, _, _ := tr.GetTask("T2")
	require.Equal(t, InProgress, task.Status)
	task, _, _ = tr.GetTask("T3")
	require.Equal(t, InProgress, task.Status)
}

func TestMarkAndClearPendingMain(t *testing.T) {
	tr := newTestTracker(t, []Task{{ID: "T1", Status: Open}})

	require.NoError(t, tr.MarkPendingMain("T1", 1, []string{"abc123"}))
	task, _, _ := tr.GetTask("T1")
	require.Equal(t, PendingMain, task.Status)

	require.NoError(t, tr.ClearPendingMain("T1"))
	task, _, _ = tr.GetTask("T1")
	require.Equal(t, Completed, task.Status)
}
