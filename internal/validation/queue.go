package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ralph/internal/events"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

// FixAgent runs the temporary validator-fix worker (spec.md §4.5.6).
// Returns true if the agent signaled completion and left the workspace
// changed.
type FixAgent func(ctx context.Context, workDir, prompt string) (changed bool, err error)

// PostValidationHandler delegates to the post-merge path once a plan
// passes (spec.md §4.5.5): attempt mainline sync, falling back to the
// pending-main map on failure.
type PostValidationHandler func(ctx context.Context, taskIDs []string, commits []string)

// PauseHandler pauses the whole coordinator (spec.md §4.5.7 "pause"
// fallback strategy).
type PauseHandler func(reason string)

// Queue is the single-writer Validation Engine queue.
type Queue struct {
	cfg            Config
	driver         vcs.Driver
	bus            *events.Bus
	tr             tracker.Tracker
	logRoot        string
	integrationDir string
	defaultTimeout time.Duration
	onPass         PostValidationHandler
	onPause        PauseHandler
	fixAgent       FixAgent

	mu      sync.Mutex
	items   []Plan
	waiting chan struct{}
	closed  bool
}

// NewQueue constructs a Validation Engine queue. logRoot is the directory
// under which per-plan log directories are created (spec.md §4.7 "per-plan
// directory"); integrationDir is the long-lived integration workspace the
// fix/fallback paths cherry-pick or revert against. tr may be nil, in which
// case fallback strategies still run but no task status is updated.
func NewQueue(cfg Config, driver vcs.Driver, bus *events.Bus, tr tracker.Tracker, logRoot, integrationDir string, onPass PostValidationHandler, onPause PauseHandler, fixAgent FixAgent) *Queue {
	return &Queue{
		cfg:            cfg,
		driver:         driver,
		bus:            bus,
		tr:             tr,
		logRoot:        logRoot,
		integrationDir: integrationDir,
		defaultTimeout: 5 * time.Minute,
		onPass:         onPass,
		onPause:        onPause,
		fixAgent:       fixAgent,
		waiting:        make(chan struct{}, 1),
	}
}

// Enqueue admits a Plan per the configured queue mode (spec.md §4.5.2).
func (q *Queue) Enqueue(p Plan) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	switch q.cfg.Mode {
	case ModeCoalesce:
		q.items = []Plan{p}
	default: // per-merge and batch-window both append; batching is a drain-time concern
		q.items = append(q.items, p)
	}
	q.bus.Emit(events.Event{Type: events.ValidationQueued, PlanID: p.PlanID, TaskID: firstOf(p.TaskIDs), Data: map[string]any{"checks": checkIDs(p.Checks)}})
	select {
	case q.waiting <- struct{}{}:
	default:
	}
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func checkIDs(cs []CheckConfig) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

// Close stops accepting new plans.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// PendingCount reports how many plans are queued but not yet run.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) drain() []Plan {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Run drives the queue until ctx is cancelled, honoring the configured
// batch window for ModeBatchWindow (spec.md §4.5.2/§4.5.3).
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.waiting:
			if q.cfg.Mode == ModeBatchWindow && q.cfg.BatchWindowMs > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(q.cfg.BatchWindowMs) * time.Millisecond):
				}
			}
			for _, p := range q.drain() {
				q.runPlan(ctx, p)
			}
		}
	}
}

// runPlan implements spec.md §4.5.3 in full.
func (q *Queue) runPlan(ctx context.Context, p Plan) {
	if err := q.driver.ResetHard(ctx, q.cfg.ValidatorDir, headRefOf(p)); err != nil {
		q.bus.Emit(events.Event{Type: events.ValidationBlocked, PlanID: p.PlanID, Data: map[string]any{"reason": "reset --hard failed: " + err.Error()}})
		return
	}
	if q.cfg.CleanBeforeRun {
		_ = q.driver.Clean(ctx, q.cfg.ValidatorDir)
	}

	q.bus.Emit(events.Event{Type: events.ValidationStarted, PlanID: p.PlanID, Data: map[string]any{"checks": checkIDs(p.Checks)}})

	logDir := filepath.Join(q.logRoot, p.PlanID)
	_ = os.MkdirAll(logDir, 0o755)
	writePlanJSON(logDir, p)

	var results []CheckResult
	overallFlaky := false
	var failedCheck *CheckConfig
	for i := range p.Checks {
		c := p.Checks[i]
		q.bus.Emit(events.Event{Type: events.ValidationCheckStart, PlanID: p.PlanID, Data: map[string]any{"checkId": c.ID}})
		res, err := RunCheck(ctx, c, q.cfg.ValidatorDir, logDir, q.defaultTimeout, q.cfg.MaxTestReruns)
		if err != nil {
			res = CheckResult{CheckID: c.ID, Passed: false}
		}
		if res.Flaky {
			overallFlaky = true
		}
		results = append(results, res)
		q.bus.Emit(events.Event{Type: events.ValidationCheckFinish, PlanID: p.PlanID, Data: map[string]any{"checkId": c.ID, "passed": res.Passed, "exitCode": res.ExitCode, "durationMs": res.DurationMs}})
		if !res.Passed && c.Required {
			failedCheck = &c
			break
		}
	}

	writeSummaryJSON(logDir, p, results, overallFlaky, failedCheck != nil)

	if failedCheck == nil {
		status := "passed"
		if overallFlaky {
			status = "flaky"
		}
		q.bus.Emit(events.Event{Type: events.ValidationPassed, PlanID: p.PlanID, Data: map[string]any{"status": status}})
		if q.onPass != nil {
			q.onPass(ctx, p.TaskIDs, p.Commits)
		}
		return
	}

	q.bus.Emit(events.Event{Type: events.ValidationFailed, PlanID: p.PlanID, Data: map[string]any{"failedCheck": failedCheck.ID}})

	if healed, fixCommit := q.attemptFix(ctx, p, *failedCheck, logDir); healed {
		cpResult := q.driver.CherryPick(ctx, q.integrationDir, fixCommit)
		if cpResult.Outcome != vcs.CherryPickSucceeded && cpResult.Outcome != vcs.CherryPickEmpty {
			q.bus.Emit(events.Event{Type: events.ValidationFixFailed, PlanID: p.PlanID, Data: map[string]any{"reason": "cherry-pick of fix commit failed"}})
			q.applyFallback(ctx, p, *failedCheck)
			return
		}
		q.bus.Emit(events.Event{Type: events.ValidationFixSucceed, PlanID: p.PlanID})
		if q.onPass != nil {
			q.onPass(ctx, p.TaskIDs, append(p.Commits, fixCommit))
		}
		return
	}

	q.applyFallback(ctx, p, *failedCheck)
}

// headRefOf returns the integration head commit this plan should reset the
// validator workspace to: the newest commit in the plan.
func headRefOf(p Plan) string {
	if len(p.Commits) == 0 {
		return "HEAD"
	}
	return p.Commits[len(p.Commits)-1]
}

func writePlanJSON(logDir string, p Plan) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(logDir, "plan.json"), data, 0o644)
}

func writeSummaryJSON(logDir string, p Plan, results []CheckResult, flaky, failed bool) {
	summary := map[string]any{
		"planId":  p.PlanID,
		"results": results,
		"flaky":   flaky,
		"failed":  failed,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(logDir, "summary.json"), data, 0o644)
}

// attemptFix implements spec.md §4.5.6.
func (q *Queue) attemptFix(ctx context.Context, p Plan, failed CheckConfig, logDir string) (healed bool, fixCommit string) {
	if q.cfg.MaxFixAttempts <= 0 || q.fixAgent == nil {
		return false, ""
	}
	for attempt := 1; attempt <= q.cfg.MaxFixAttempts; attempt++ {
		q.bus.Emit(events.Event{Type: events.ValidationFixStarted, PlanID: p.PlanID, Data: map[string]any{"attempt": attempt}})
		prompt := fixPrompt(p, failed, attempt, logDir)
		changed, err := q.fixAgent(ctx, q.cfg.ValidatorDir, prompt)
		if err != nil || !changed {
			continue
		}
		subject := fmt.Sprintf("chore(quality-gate): fix %s attempt %d", p.PlanID, attempt)
		if err := q.driver.AddAll(ctx, q.cfg.ValidatorDir); err != nil {
			continue
		}
		if err := q.driver.Commit(ctx, q.cfg.ValidatorDir, subject, ""); err != nil {
			continue
		}
		head, err := q.driver.RevParse(ctx, q.cfg.ValidatorDir, "HEAD")
		if err != nil {
			continue
		}

		allPassed := true
		for _, c := range p.Checks {
			res, err := RunCheck(ctx, c, q.cfg.ValidatorDir, logDir, q.defaultTimeout, q.cfg.MaxTestReruns)
			if err != nil || (!res.Passed && c.Required) {
				allPassed = false
				break
			}
		}
		if allPassed {
			return true, head
		}
	}
	return false, ""
}

func fixPrompt(p Plan, failed CheckConfig, attempt int, logDir string) string {
	return fmt.Sprintf(
		"Validation plan %s failed required check %q (attempt %d).\n"+
			"Impact entries: %v\nCheck log: %s\n"+
			"Fix the failure with minimal edits. Do not switch branches or run VCS commands yourself.",
		p.PlanID, failed.ID, attempt, p.Impact, filepath.Join(logDir, failed.ID+".log"),
	)
}

// applyFallback implements spec.md §4.5.7.
func (q *Queue) applyFallback(ctx context.Context, p Plan, failed CheckConfig) {
	switch q.cfg.FallbackStrategy {
	case FallbackRevert:
		for i := len(p.Commits) - 1; i >= 0; i-- {
			_ = q.driver.Revert(ctx, q.integrationDir, p.Commits[i])
		}
		q.bus.Emit(events.Event{Type: events.ValidationReverted, PlanID: p.PlanID})
		q.blockTasks(p.TaskIDs)
	case FallbackPause:
		if q.onPause != nil {
			q.onPause(fmt.Sprintf("validation plan %s failed required check %s", p.PlanID, failed.ID))
		}
	case FallbackQuarantine:
		q.blockTasks(p.TaskIDs)
	}
}

// blockTasks transitions every task in the plan to tracker.Blocked
// (spec.md §4.5.7 "block the task" for the revert/quarantine strategies).
func (q *Queue) blockTasks(taskIDs []string) {
	if q.tr == nil {
		return
	}
	for _, taskID := range taskIDs {
		_ = q.tr.UpdateStatus(taskID, tracker.Blocked)
	}
}
