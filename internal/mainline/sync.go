// Package mainline implements Mainline Sync (spec.md §4.6): fast-forwards
// the configured base branch to the integration head from a long-lived
// mainline workspace, with a pending-main retry policy when that fails.
package mainline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ralph/internal/events"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

const (
	retryInitial = 2 * time.Second
	retryCap     = 30 * time.Second
	retryMax     = 10
	skipThrottle = 5 * time.Second
)

// Syncer owns the mainline workspace and the pending-main retry state.
type Syncer struct {
	driver  vcs.Driver
	bus     *events.Bus
	tr      tracker.Tracker
	baseDir string // mainline workspace path; "" if the base branch isn't checked out anywhere
	baseRef string

	mu            sync.Mutex
	pending       map[string][]string // taskID -> commits awaiting sync
	retryCount    int
	nextAttemptAt time.Time
	lastSkipLog   time.Time
}

// New constructs a Syncer. baseDir may be empty when the base branch has no
// dedicated checkout, in which case Sync always takes the update-ref path.
func New(driver vcs.Driver, bus *events.Bus, tr tracker.Tracker, baseDir, baseRef string) *Syncer {
	return &Syncer{
		driver:  driver,
		bus:     bus,
		tr:      tr,
		baseDir: baseDir,
		baseRef: baseRef,
		pending: make(map[string][]string),
	}
}

// Sync attempts to land integrationHead on the base branch for the given
// task's commits, per spec.md §4.6's three branching paths. On failure the
// task's commits are recorded in the pending-main map and the tracker is
// informed via MarkPendingMain; the attempt's error is returned.
func (s *Syncer) Sync(ctx context.Context, taskID string, commits []string, integrationHead string) error {
	if err := s.attempt(ctx, integrationHead); err != nil {
		s.bus.Emit(events.Event{Type: events.MainSyncFailed, TaskID: taskID, Data: map[string]any{"reason": err.Error()}})
		s.markPending(taskID, commits)
		return err
	}
	s.bus.Emit(events.Event{Type: events.MainSyncSucceeded, TaskID: taskID, Data: map[string]any{"integrationHead": integrationHead}})
	s.resetRetryCounterAndDrain(ctx, integrationHead)
	if s.tr != nil {
		_ = s.tr.ClearPendingMain(taskID)
		_ = s.tr.CompleteTask(taskID)
	}
	return nil
}

// attempt implements the three branching paths of spec.md §4.6.
func (s *Syncer) attempt(ctx context.Context, integrationHead string) error {
	if s.baseDir == "" {
		return s.driver.UpdateRef(ctx, "", "refs/heads/"+s.baseRef, integrationHead)
	}

	status, err := s.driver.StatusPorcelain(ctx, s.baseDir)
	if err != nil {
		return fmt.Errorf("status check: %w", err)
	}

	if status == "" {
		if err := s.driver.MergeFFOnly(ctx, s.baseDir, integrationHead); err != nil {
			if resetErr := s.driver.ResetHard(ctx, s.baseDir, integrationHead); resetErr != nil {
				return fmt.Errorf("fast-forward failed (%v) and reset --hard fallback also failed: %w", err, resetErr)
			}
		}
		return nil
	}

	if err := s.driver.StashPush(ctx, s.baseDir, "mainline-sync-autostash"); err != nil {
		return fmt.Errorf("stash push on dirty base workspace: %w", err)
	}
	if err := s.driver.MergeFFOnly(ctx, s.baseDir, integrationHead); err != nil {
		if resetErr := s.driver.ResetHard(ctx, s.baseDir, integrationHead); resetErr != nil {
			return fmt.Errorf("fast-forward failed (%v) and reset --hard fallback also failed: %w", err, resetErr)
		}
	}
	stashRef, err := s.driver.StashListLatest(ctx, s.baseDir)
	if err != nil || stashRef == "" {
		return nil
	}
	if err := s.driver.StashApply(ctx, s.baseDir, stashRef); err != nil {
		s.bus.Emit(events.Event{Type: events.MainSyncFailed, Data: map[string]any{"reason": "stash apply conflict after fast-forward, manual recovery required"}})
		return nil // do not crash; the alert was already emitted
	}
	_ = s.driver.StashDrop(ctx, s.baseDir, stashRef)
	return nil
}

func (s *Syncer) markPending(taskID string, commits []string) {
	s.mu.Lock()
	s.pending[taskID] = commits
	count := len(s.pending)
	s.mu.Unlock()

	if s.tr != nil {
		_ = s.tr.MarkPendingMain(taskID, count, commits)
	}
}

func (s *Syncer) resetRetryCounterAndDrain(ctx context.Context, integrationHead string) {
	s.mu.Lock()
	s.retryCount = 0
	s.nextAttemptAt = time.Time{}
	drained := s.pending
	s.pending = make(map[string][]string)
	s.mu.Unlock()

	for taskID := range drained {
		if s.tr != nil {
			_ = s.tr.ClearPendingMain(taskID)
			_ = s.tr.CompleteTask(taskID)
		}
	}
}

// RetryPending drives the quiescence-sequence retry policy (spec.md §4.6):
// exponential backoff from 2s, cap 30s, at most 10 attempts, throttling
// main-sync-skipped to once per 5s and emitting main-sync-alert if the cap
// is exceeded with tasks still unsynced. Callers may invoke this far more
// often than the backoff schedule (e.g. every idle poll tick); it is a
// no-op until the previously computed nextAttemptAt has elapsed.
func (s *Syncer) RetryPending(ctx context.Context, integrationHead string) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	if now := time.Now(); now.Before(s.nextAttemptAt) {
		s.mu.Unlock()
		return
	}
	s.retryCount++
	attempt := s.retryCount
	s.nextAttemptAt = time.Now().Add(backoffFor(attempt))
	s.mu.Unlock()

	if attempt > retryMax {
		s.mu.Lock()
		affected := len(s.pending)
		s.mu.Unlock()
		s.bus.Emit(events.Event{Type: events.MainSyncAlert, Data: map[string]any{"affectedTasks": affected}})
		return
	}

	if err := s.attempt(ctx, integrationHead); err != nil {
		s.mu.Lock()
		shouldLog := time.Since(s.lastSkipLog) >= skipThrottle
		if shouldLog {
			s.lastSkipLog = time.Now()
		}
		s.mu.Unlock()
		if shouldLog {
			s.bus.Emit(events.Event{Type: events.MainSyncSkipped, Data: map[string]any{"attempt": attempt, "backoff": backoffFor(attempt).String()}})
		}
		return
	}

	s.bus.Emit(events.Event{Type: events.MainSyncRetrying, Data: map[string]any{"attempt": attempt, "result": "succeeded"}})
	s.resetRetryCounterAndDrain(ctx, integrationHead)
}

// backoffFor computes the exponential backoff for a given retry attempt
// (1-indexed): 2s, 4s, 8s, ... capped at 30s.
func backoffFor(attempt int) time.Duration {
	d := retryInitial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= retryCap {
			return retryCap
		}
	}
	return d
}

// PendingCount reports how many tasks are currently awaiting mainline sync.
func (s *Syncer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
