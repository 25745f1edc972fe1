// Package tracker defines the coordinator's boundary onto the external
// Task Tracker (spec.md §1): a persistent task store reached only through
// the operations enumerated here. Tracker persistence formats are an
// explicit Non-goal — this package ships one in-memory/file reference
// implementation, not a general-purpose task database.
package tracker

import "time"

// Status is one of the task lifecycle states from spec.md §3.
type Status string

const (
	Open         Status = "open"
	InProgress   Status = "in_progress"
	Blocked      Status = "blocked"
	PendingMain  Status = "pending_main"
	Completed    Status = "completed"
	Cancelled    Status = "cancelled"
)

// ImpactEntry is one path-change-purpose triple from a task's impact plan
// or impact table (spec.md §3).
type ImpactEntry struct {
	Path    string `json:"path"`
	Change  string `json:"change"`
	Purpose string `json:"purpose"`
}

// Task is the coordinator's view of a tracked unit of work. The
// coordinator holds only transient references to it plus a derived lease
// (spec.md §3) — the Tracker owns the record of truth.
type Task struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Status     Status        `json:"status"`
	Priority   int           `json:"priority"`
	DependsOn  []string      `json:"dependsOn"`
	ImpactPlan []ImpactEntry `json:"impactPlan,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`

	FailureCount int `json:"failureCount"`
}

// Tracker is the set of operations the coordinator depends on
// (spec.md §1): {listTasks, nextReadyTask, claimTask, releaseTask,
// updateStatus, completeTask, markPendingMain, clearPendingMain}.
type Tracker interface {
	ListTasks() ([]Task, error)
	GetTask(id string) (Task, bool, error)

	// NextReadyTask returns the first task matching
	// status=open, ready=true, excludeIds excluded (spec.md §4.1.1).
	// ok is false when no candidate remains.
	NextReadyTask(excludeIDs map[string]bool) (Task, bool, error)

	// ClaimTask attempts an atomic claim; ok is false if another claim won
	// the race or the task is no longer claimable.
	ClaimTask(taskID, workerID string) (ok bool, err error)
	ReleaseTask(taskID string) error

	UpdateStatus(taskID string, status Status) error
	CompleteTask(taskID string) error

	// IncrementFailure records one more failed attempt for taskID and
	// returns the new count (spec.md §4.1 "Failure semantics").
	IncrementFailure(taskID string) (count int, err error)

	MarkPendingMain(taskID string, count int, commits []string) error
	ClearPendingMain(taskID string) error

	// ResetStale reopens in_progress tasks whose updatedAt predates
	// staleAfter and whose id is not in activeLeases (spec.md §4.1
	// quiescence sequence), returning the ids it reset.
	ResetStale(staleAfter time.Duration, activeLeases map[string]bool) ([]string, error)
}
