// Package store persists run-history across coordinator restarts: one row
// per run plus the task-outcome and merge-queue events observed during it.
// The in-memory Active Lease (spec.md §3) is never persisted here — it is
// explicitly lost across restart per the coordinator's invariants.
package store

import "time"

// RunSummary is a queryable record of a single coordinator run, the
// persisted counterpart of the on-disk summary-<epochMs>.json artifact
// (spec.md §6).
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	EndedAt       *time.Time
	TasksOpened   int
	TasksHealed   int
	TasksFailed   int
	TasksComplete int
	PauseCount    int
	TargetBranch  string
}

// TaskOutcome records the terminal disposition of a single task within a
// run, for cross-restart status reporting.
type TaskOutcome struct {
	RunID       string
	TaskID      string
	Status      string
	WorkerID    string
	Commit      string
	AttemptedAt time.Time
	FinishedAt  *time.Time
	Reason      string
}

// MergeEvent records one Merge Queue outcome (spec.md §4.4) for later
// inspection — landed, conflicted-and-resolved, or dropped.
type MergeEvent struct {
	RunID     string
	TaskID    string
	Commit    string
	Outcome   string // "landed", "resolved", "empty", "dropped"
	Detail    string
	CreatedAt time.Time
}

// Store is the run-history persistence boundary. Implementations must be
// safe for concurrent use by the coordinator's goroutines.
type Store interface {
	Close() error

	StartRun(run RunSummary) error
	FinishRun(runID string, ended time.Time, tasksOpened, tasksHealed, tasksFailed, tasksComplete, pauseCount int) error
	LatestRun() (RunSummary, error)
	RecentRuns(limit int) ([]RunSummary, error)

	RecordTaskOutcome(o TaskOutcome) error
	TaskOutcomes(runID string) ([]TaskOutcome, error)

	RecordMergeEvent(e MergeEvent) error
	MergeEvents(runID string, limit int) ([]MergeEvent, error)
}
