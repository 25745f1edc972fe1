// Package dispatch implements the Dispatch Loop (spec.md §4.1): a single
// cooperative loop that pulls ready tasks from the Tracker, assigns them to
// idle workers, and drives the run's idle/quiescence and shutdown
// conditions.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"ralph/internal/events"
	"ralph/internal/merge"
	"ralph/internal/tracker"
	"ralph/internal/worker"
)

const (
	pollInterval    = 200 * time.Millisecond
	staleAfter      = 30 * time.Minute
	maxReadyRetries = 5
	maxFailures     = 3

	cooldownInitial = time.Second
	cooldownCap     = 15 * time.Second
)

// PromptBuilder composes the prompt handed to a worker's agent for a given
// task. Prompt composition itself is an explicit Non-goal (spec.md §1) —
// the Loop only calls through this seam.
type PromptBuilder func(t tracker.Task) string

// PendingMainSyncer is the subset of Mainline Sync the quiescence sequence
// needs: trigger a retry pass and report how many tasks are still pending.
type PendingMainSyncer interface {
	RetryPending(ctx context.Context, integrationHead string)
	PendingCount() int
}

// InFlightCounter reports how many tasks still have work in flight through
// a downstream single-writer queue (merge or validation).
type InFlightCounter interface {
	PendingCount() int
}

// Config carries the run-level knobs the Loop needs beyond its collaborator
// handles.
type Config struct {
	CreditMarkers      []string // case-insensitive substrings (spec.md §4.1, §6)
	RequireImpactTable bool
	IntegrationHead    func() string
}

// Loop is the Dispatch Loop. All mutable state is guarded by mu except the
// worker slice itself, whose entries are individually goroutine-safe
// (TryReserve/IsBusy use atomics).
type Loop struct {
	cfg      Config
	tr       tracker.Tracker
	bus      *events.Bus
	workers  []*worker.Worker
	mergeQ   *merge.Queue
	valQ     InFlightCounter // nil when quality gates are disabled
	syncer   PendingMainSyncer
	prompts  PromptBuilder
	logRoot  string

	mu        sync.Mutex
	paused    bool
	stopped   bool
	cooldowns map[string]*cooldownState
}

type cooldownState struct {
	until    time.Time
	attempts int
}

// New constructs a Dispatch Loop. valQ may be nil when quality gates are
// disabled — the quiescence sequence then skips the validation in-flight
// check.
func New(cfg Config, tr tracker.Tracker, bus *events.Bus, workers []*worker.Worker, mergeQ *merge.Queue, valQ InFlightCounter, syncer PendingMainSyncer, prompts PromptBuilder, logRoot string) *Loop {
	return &Loop{
		cfg:       cfg,
		tr:        tr,
		bus:       bus,
		workers:   workers,
		mergeQ:    mergeQ,
		valQ:      valQ,
		syncer:    syncer,
		prompts:   prompts,
		logRoot:   logRoot,
		cooldowns: make(map[string]*cooldownState),
	}
}

// Pause halts new dispatch while letting in-flight runs finish naturally.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
	l.bus.Emit(events.Event{Type: events.Paused})
}

// Resume lifts a prior Pause.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	l.bus.Emit(events.Event{Type: events.Resumed})
}

// Stop requests the loop exit at its next idle check.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

func (l *Loop) isPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// IsPaused reports whether the loop is currently pausing new dispatch, so
// callers outside this package (the coordinator's control-file watcher)
// can reconcile external pause/resume requests without duplicating state.
func (l *Loop) IsPaused() bool {
	return l.isPaused()
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Run is the Dispatch Loop's body (spec.md §4.1). It blocks until ctx is
// cancelled or the quiescence sequence determines the run is complete.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if l.isStopped() {
			return
		}
		if l.isPaused() {
			continue
		}

		w := l.findIdleWorker()
		if w == nil {
			if l.quiesce(ctx) {
				return
			}
			continue
		}

		task, ok := l.selectReadyTask()
		if !ok {
			if l.quiesce(ctx) {
				return
			}
			continue
		}

		if !l.claim(w, task.ID) {
			continue
		}

		wg.Add(1)
		go func(w *worker.Worker, t tracker.Task) {
			defer wg.Done()
			l.runTask(ctx, w, t)
		}(w, task)
	}
}

func (l *Loop) findIdleWorker() *worker.Worker {
	for _, w := range l.workers {
		if !w.IsBusy() {
			return w
		}
	}
	return nil
}

// selectReadyTask implements §4.1.1: query the tracker excluding blocked,
// cooled-down and leased tasks, retrying up to maxReadyRetries times against
// the coordinator's own dependency re-check (§4.1.3).
func (l *Loop) selectReadyTask() (tracker.Task, bool) {
	exclude := map[string]bool{}
	for id, cd := range l.snapshotCooldowns() {
		if time.Now().Before(cd.until) {
			exclude[id] = true
		}
	}

	for attempt := 0; attempt < maxReadyRetries; attempt++ {
		task, ok, err := l.tr.NextReadyTask(exclude)
		if err != nil || !ok {
			return tracker.Task{}, false
		}
		if l.dependenciesSatisfied(task) {
			if !l.impactGatePasses(task) {
				exclude[task.ID] = true
				continue
			}
			return task, true
		}
		l.enterCooldown(task.ID)
		exclude[task.ID] = true
	}
	return tracker.Task{}, false
}

// dependenciesSatisfied implements §4.1.3.
func (l *Loop) dependenciesSatisfied(t tracker.Task) bool {
	for _, dep := range t.DependsOn {
		depTask, ok, err := l.tr.GetTask(dep)
		if err != nil || !ok {
			return false
		}
		if depTask.Status != tracker.Completed && depTask.Status != tracker.Cancelled {
			return false
		}
	}
	return true
}

// impactGatePasses implements §4.1.4.
func (l *Loop) impactGatePasses(t tracker.Task) bool {
	if !l.cfg.RequireImpactTable {
		return true
	}
	if len(t.ImpactPlan) > 0 {
		return true
	}
	_ = l.tr.UpdateStatus(t.ID, tracker.Blocked)
	l.bus.Emit(events.Event{Type: events.ImpactMissing, TaskID: t.ID})
	return false
}

func (l *Loop) enterCooldown(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cd, ok := l.cooldowns[taskID]
	if !ok {
		cd = &cooldownState{}
		l.cooldowns[taskID] = cd
	}
	cd.attempts++
	delay := cooldownInitial << uint(cd.attempts-1)
	if delay > cooldownCap || delay <= 0 {
		delay = cooldownCap
	}
	cd.until = time.Now().Add(delay)
}

func (l *Loop) snapshotCooldowns() map[string]*cooldownState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*cooldownState, len(l.cooldowns))
	for k, v := range l.cooldowns {
		out[k] = v
	}
	return out
}

// claim implements §4.1.2: optimistic worker reservation plus a tracker
// claim, rolled back together on either failure.
func (l *Loop) claim(w *worker.Worker, taskID string) bool {
	if !w.TryReserve() {
		return false
	}
	ok, err := l.tr.ClaimTask(taskID, w.ID)
	if err != nil || !ok {
		w.ReleaseReservation()
		return false
	}
	l.bus.Emit(events.Event{Type: events.TaskClaimed, TaskID: taskID, WorkerID: w.ID})
	return true
}

// quiesce implements the idle condition's quiescence sequence (spec.md
// §4.1). It returns true once every phase has nothing left to do, meaning
// the run is complete.
func (l *Loop) quiesce(ctx context.Context) bool {
	for _, w := range l.workers {
		if w.IsBusy() {
			return false
		}
	}

	if l.syncer != nil && l.cfg.IntegrationHead != nil {
		l.syncer.RetryPending(ctx, l.cfg.IntegrationHead())
	}

	if l.mergeQ != nil && l.mergeQ.PendingCount() > 0 {
		return false
	}
	if l.valQ != nil && l.valQ.PendingCount() > 0 {
		return false
	}

	// Safe to pass no active leases: every worker is confirmed idle above,
	// so no in_progress task is genuinely in flight right now.
	_, _ = l.tr.ResetStale(staleAfter, nil)

	if l.syncer != nil && l.syncer.PendingCount() > 0 {
		return false
	}

	tasks, err := l.tr.ListTasks()
	if err != nil {
		return false
	}
	for _, t := range tasks {
		if t.Status == tracker.Open || t.Status == tracker.InProgress {
			return false
		}
	}
	return true
}

// runTask drives one task's run to completion: prompt, execute, collect
// commits, enqueue to merge, and apply failure semantics (spec.md §4.2.1,
// §4.1 "Failure semantics").
func (l *Loop) runTask(ctx context.Context, w *worker.Worker, t tracker.Task) {
	defer func() {
		w.ReleaseReservation()
		l.bus.Emit(events.Event{Type: events.WorkerIdle, WorkerID: w.ID})
	}()

	l.bus.Emit(events.Event{Type: events.TaskStarted, TaskID: t.ID, WorkerID: w.ID})

	var stdoutSegments, stderrSegments int
	hooks := worker.StreamHooks{
		OnStdout: func(seg string) {
			stdoutSegments++
			l.bus.Emit(events.Event{Type: events.TaskOutput, TaskID: t.ID, WorkerID: w.ID, Data: map[string]any{"stream": "stdout", "segment": seg}})
		},
		OnStderr: func(seg string) {
			stderrSegments++
			l.bus.Emit(events.Event{Type: events.TaskOutput, TaskID: t.ID, WorkerID: w.ID, Data: map[string]any{"stream": "stderr", "segment": seg}})
		},
	}
	defer func() {
		l.bus.Emit(events.Event{Type: events.TaskSegments, TaskID: t.ID, WorkerID: w.ID, Data: map[string]any{"stdoutSegments": stdoutSegments, "stderrSegments": stderrSegments}})
	}()

	prompt := l.prompts(t)
	result, err := w.ExecuteTask(ctx, t.ID, t.Title, prompt, hooks)
	if err != nil {
		l.handleRunFailure(t, result, err)
		return
	}

	if creditExhausted(result.Agent.Stdout, result.Agent.Stderr, l.cfg.CreditMarkers) {
		_ = l.tr.UpdateStatus(t.ID, tracker.Blocked)
		l.bus.Emit(events.Event{Type: events.CreditExhausted, TaskID: t.ID, WorkerID: w.ID})
		l.bus.Emit(events.Event{Type: events.TaskReleased, TaskID: t.ID, WorkerID: w.ID})
		l.Pause()
		return
	}

	if !result.Agent.Completed && len(result.Commits) == 0 && !result.NoOp {
		l.handleNonCompletion(t, "agent did not signal completion")
		return
	}

	l.bus.Emit(events.Event{Type: events.TaskFinished, TaskID: t.ID, WorkerID: w.ID, Data: map[string]any{"commits": len(result.Commits), "noOp": result.NoOp}})

	if result.NoOp || len(result.Commits) == 0 {
		_ = l.tr.CompleteTask(t.ID)
		return
	}

	for _, c := range result.Commits {
		l.mergeQ.Enqueue(merge.Entry{
			TaskID:       t.ID,
			WorkerID:     w.ID,
			Commit:       c.Hash,
			FilesChanged: c.FileNames,
		})
	}
}

func (l *Loop) handleRunFailure(t tracker.Task, result worker.RunResult, err error) {
	if creditExhausted(result.Agent.Stdout, result.Agent.Stderr, l.cfg.CreditMarkers) {
		_ = l.tr.UpdateStatus(t.ID, tracker.Blocked)
		l.bus.Emit(events.Event{Type: events.CreditExhausted, TaskID: t.ID})
		l.Pause()
		return
	}
	l.handleNonCompletion(t, err.Error())
}

// handleNonCompletion implements the generic non-completion branch of
// spec.md §4.1's failure semantics: per-task counter, 3 ⇒ block, else
// reopen for another attempt.
func (l *Loop) handleNonCompletion(t tracker.Task, reason string) {
	l.bus.Emit(events.Event{Type: events.TaskReleased, TaskID: t.ID, Data: map[string]any{"reason": reason}})
	count, err := l.tr.IncrementFailure(t.ID)
	if err != nil {
		return
	}
	if count >= maxFailures {
		_ = l.tr.UpdateStatus(t.ID, tracker.Blocked)
		return
	}
	_ = l.tr.UpdateStatus(t.ID, tracker.Open)
}

// creditExhausted implements spec.md §4.1/§6: case-insensitive substring
// match against the configured marker set.
func creditExhausted(stdout, stderr string, markers []string) bool {
	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// DefaultCreditMarkers is the marker set named in spec.md §6 when a run's
// configuration does not override it.
var DefaultCreditMarkers = []string{"insufficient_credit", "account overdue", "non-negative balance"}
