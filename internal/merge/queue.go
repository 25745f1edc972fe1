// Package merge implements the Merge Queue and Conflict Resolver
// (spec.md §4.4): a single-writer serial queue that cherry-picks worker
// commits onto the integration branch.
package merge

import (
	"context"
	"sync"
	"time"

	"ralph/internal/events"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

// Entry is a MergeEntry (spec.md §3), keyed by (TaskID, Commit) for
// idempotent enqueue.
type Entry struct {
	TaskID       string
	WorkerID     string
	Commit       string
	FilesChanged []string
	EnqueuedAt   time.Time
}

func (e Entry) key() string { return e.TaskID + "@" + e.Commit }

// PostMergeHandler is invoked once a task's pending-merge counter reaches
// zero (spec.md §4.4.4): either advance straight to mainline sync, or (with
// quality gates enabled) hand off to the Validation Engine.
type PostMergeHandler func(ctx context.Context, taskID string, mergedCommits []string)

// Queue is the single-writer Merge Queue. All mutation happens on the
// goroutine draining Run(); Enqueue is the only method safe to call from
// other goroutines.
type Queue struct {
	driver    vcs.Driver
	bus       *events.Bus
	tr        tracker.Tracker
	integDir  string // merge workspace path, long-lived, on the integration branch
	onPostMerge PostMergeHandler
	workspaces workspaceCreator

	mu       sync.Mutex
	seen     map[string]bool
	pending  map[string]int // taskID -> remaining commit count
	items    chan Entry
	closed   bool
}

// workspaceCreator is the subset of the Workspace Manager the Conflict
// Resolver needs: ephemeral workspaces branched off integration.
type workspaceCreator interface {
	CreateEphemeral(ctx context.Context, baseRef string) (path string, cleanup func(), err error)
}

// ResolutionAgent drives the agent-assisted conflict resolution fallback
// (spec.md §4.4.2 step 4). Kept as a narrow function type rather than the
// full agent.Agent interface since the Resolver only ever issues one
// resolution prompt per attempt.
type ResolutionAgent func(ctx context.Context, workspacePath, prompt string) error

// New constructs a Merge Queue. integDir is the long-lived merge workspace,
// checked out on the integration branch.
func New(driver vcs.Driver, bus *events.Bus, tr tracker.Tracker, integDir string, ws workspaceCreator, onPostMerge PostMergeHandler) *Queue {
	return &Queue{
		driver:      driver,
		bus:         bus,
		tr:          tr,
		integDir:    integDir,
		onPostMerge: onPostMerge,
		workspaces:  ws,
		seen:        make(map[string]bool),
		pending:     make(map[string]int),
		items:       make(chan Entry, 256),
	}
}

// Enqueue admits a MergeEntry, silently dropping duplicates keyed by
// (taskId, commit) (spec.md §3, §8 L1).
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.seen[e.key()] {
		q.mu.Unlock()
		return
	}
	q.seen[e.key()] = true
	q.pending[e.TaskID]++
	q.mu.Unlock()

	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	q.bus.Emit(events.Event{Type: events.MergeQueued, TaskID: e.TaskID, WorkerID: e.WorkerID, Data: map[string]any{"commit": e.Commit}})
	q.items <- e
}

// Run drains the queue serially until ctx is cancelled. Exactly one
// goroutine should call Run for the Queue's lifetime (spec.md §3 I3).
func (q *Queue) Run(ctx context.Context, resolver *Resolver) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.items:
			if !ok {
				return
			}
			q.process(ctx, e, resolver)
		}
	}
}

// Close stops accepting new entries. Safe to call once the dispatch loop
// has confirmed no further commits will be produced.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()
}

// PendingCount reports how many tasks still have entries in flight through
// the queue (enqueued but not yet merged or failed out).
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) decrementPending(taskID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[taskID]--
	remaining := q.pending[taskID]
	if remaining <= 0 {
		delete(q.pending, taskID)
	}
	return remaining
}

// process implements spec.md §4.4.1.
func (q *Queue) process(ctx context.Context, e Entry, resolver *Resolver) {
	q.mu.Lock()
	_, live := q.pending[e.TaskID]
	q.mu.Unlock()
	if !live {
		return // an earlier entry of this task failed; its remaining entries are dropped
	}

	status, err := q.driver.StatusPorcelain(ctx, q.integDir)
	if err != nil || status != "" {
		q.handleMergeFailure(ctx, e, "integration workspace is dirty", nil)
		return
	}

	result := q.driver.CherryPick(ctx, q.integDir, e.Commit)
	switch result.Outcome {
	case vcs.CherryPickSucceeded:
		q.onMergeSucceeded(ctx, e)
		return
	case vcs.CherryPickEmpty:
		if err := q.driver.CherryPickSkip(ctx, q.integDir); err != nil {
			q.handleMergeFailure(ctx, e, "empty cherry-pick skip failed", nil)
			return
		}
		q.onMergeSucceeded(ctx, e)
		return
	default: // conflict or failed
		_ = q.driver.CherryPickAbort(ctx, q.integDir)
		if resolver == nil {
			q.handleMergeFailure(ctx, e, "conflict with no resolver configured", nil)
			return
		}
		resolvedCommit, files, err := resolver.Resolve(ctx, e.Commit)
		if err != nil {
			q.handleMergeFailure(ctx, e, err.Error(), files)
			return
		}
		replay := q.driver.CherryPick(ctx, q.integDir, resolvedCommit)
		switch replay.Outcome {
		case vcs.CherryPickSucceeded:
			q.onMergeSucceeded(ctx, e)
		case vcs.CherryPickEmpty:
			if err := q.driver.CherryPickSkip(ctx, q.integDir); err != nil {
				q.handleMergeFailure(ctx, e, "empty cherry-pick skip failed after resolution", nil)
				return
			}
			q.onMergeSucceeded(ctx, e)
		default:
			_ = q.driver.CherryPickAbort(ctx, q.integDir)
			q.handleMergeFailure(ctx, e, "replay of resolved commit failed", files)
		}
	}
}

func (q *Queue) onMergeSucceeded(ctx context.Context, e Entry) {
	head, err := q.driver.RevParse(ctx, q.integDir, "HEAD")
	if err != nil {
		head = e.Commit
	}
	q.bus.Emit(events.Event{Type: events.MergeSucceeded, TaskID: e.TaskID, WorkerID: e.WorkerID, Data: map[string]any{"commit": e.Commit, "integrationHead": head}})

	remaining := q.decrementPending(e.TaskID)
	if remaining <= 0 && q.onPostMerge != nil {
		q.onPostMerge(ctx, e.TaskID, []string{head})
	}
}

// handleMergeFailure implements spec.md §4.4.3: enriched merge-failed
// event, drop the task's remaining queued entries (process skips entries
// of a task no longer in pending), and block it in the tracker. The
// worker was already released by the dispatch loop when its run ended.
func (q *Queue) handleMergeFailure(ctx context.Context, e Entry, reason string, conflictFiles []string) {
	q.mu.Lock()
	delete(q.pending, e.TaskID)
	q.mu.Unlock()

	shortHash := e.Commit
	if len(shortHash) > 8 {
		shortHash = shortHash[:8]
	}
	q.bus.Emit(events.Event{
		Type:     events.MergeFailed,
		TaskID:   e.TaskID,
		WorkerID: e.WorkerID,
		Data: map[string]any{
			"commit":        shortHash,
			"reason":        reason,
			"conflictFiles": conflictFiles,
			"suggestion":    "inspect the integration workspace; resolve manually and re-enqueue, or cancel the task",
		},
	})

	if q.tr != nil {
		_ = q.tr.UpdateStatus(e.TaskID, tracker.Blocked)
	}
}
