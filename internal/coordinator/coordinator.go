// Package coordinator wires every subsystem in the dependency order from
// spec.md §2 (leaves first: Event Bus, Workspace Manager, Worker Pool,
// Merge Queue, Validation Engine, Mainline Sync, Dispatch Loop) into one
// running Parallel Execution Coordinator.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"ralph/internal/cmdutils"
	"ralph/internal/dispatch"
	"ralph/internal/events"
	"ralph/internal/mainline"
	"ralph/internal/merge"
	"ralph/internal/notify"
	"ralph/internal/store"
	"ralph/internal/tracker"
	"ralph/internal/validation"
	"ralph/internal/vcs"
	"ralph/internal/worker"
	"ralph/internal/workspace"
)

// Config is the full set of settings internal/config resolves from
// viper/flags before a run starts (spec.md §6).
type Config struct {
	RepoURL           string
	RepoDir           string // the single shared clone (spec.md §4.3)
	WorkspacesDir     string
	StateDir          string
	TargetBranch      string
	IntegrationBranch string
	MaxWorkers        int

	RequireImpactTable bool

	AgentCommand string

	QualityGates validation.Config

	Store store.Config
}

// Coordinator owns every subsystem for the duration of one run.
type Coordinator struct {
	cfg Config

	driver  vcs.Driver
	bus     *events.Bus
	tracker tracker.Tracker
	wm      *workspace.Manager
	mergeQ  *merge.Queue
	valQ    *validation.Queue
	syncer  *mainline.Syncer
	loop    *dispatch.Loop
	history store.Store
	notify  notify.Notifier

	workers  []*worker.Worker
	mergeDir string

	runID     string
	startedAt time.Time

	mu         sync.Mutex
	pauseCount int
}

// New provisions the shared clone, every workspace, and wires the
// subsystems into a ready-to-run Coordinator. It does not start the
// Dispatch Loop — call Run for that. driver is injected (rather than
// constructed here) the way every other subsystem takes a vcs.Driver, so
// tests can wire a vcs.FakeDriver in its place.
func New(ctx context.Context, cfg Config, driver vcs.Driver, tr tracker.Tracker, n notify.Notifier) (*Coordinator, error) {
	if err := cmdutils.EnsureSharedClone(ctx, driver, cfg.RepoURL, cfg.RepoDir, cfg.TargetBranch); err != nil {
		return nil, fmt.Errorf("ensure shared clone: %w", err)
	}

	bus, err := events.New(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}

	wm := workspace.New(driver, cfg.RepoDir, cfg.WorkspacesDir)
	if err := wm.EnsureRootDir(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("create workspaces root: %w", err)
	}

	hist, err := store.New(cfg.Store)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open history store: %w", err)
	}

	c := &Coordinator{
		cfg:     cfg,
		driver:  driver,
		bus:     bus,
		tracker: tr,
		wm:      wm,
		history: hist,
		notify:  n,
		runID:   strconv.FormatInt(time.Now().UnixNano(), 36),
	}

	if err := c.provision(ctx); err != nil {
		bus.Close()
		hist.Close()
		return nil, err
	}

	c.wireNotifications()
	return c, nil
}

// provision creates the merge/validation workspaces and the per-worker
// workspaces, then builds the Merge Queue, Validation Engine, Mainline
// Sync, and Dispatch Loop on top of them (spec.md §2 dependency order).
func (c *Coordinator) provision(ctx context.Context) error {
	specs := []workspace.Spec{
		{WorkerID: "merge", BranchName: c.cfg.IntegrationBranch, BaseRef: c.cfg.TargetBranch},
	}
	if c.cfg.QualityGates.Enabled {
		specs = append(specs, workspace.Spec{WorkerID: "validator", BranchName: c.cfg.IntegrationBranch + "-validate", BaseRef: c.cfg.IntegrationBranch})
	}
	for i := 0; i < c.cfg.MaxWorkers; i++ {
		specs = append(specs, workspace.Spec{
			WorkerID:   fmt.Sprintf("worker-%d", i),
			BranchName: fmt.Sprintf("ralph/worker-%d", i),
			BaseRef:    c.cfg.IntegrationBranch,
		})
	}

	paths, errs := c.wm.CreateWorkspaces(ctx, specs)
	for owner, err := range errs {
		c.bus.Logf("WARN", "workspace %s failed: %v", owner, err)
	}
	mergeDir, ok := paths["merge"]
	if !ok {
		return fmt.Errorf("provision: merge workspace unavailable: %w", errs["merge"])
	}

	c.mergeDir = mergeDir
	c.mergeQ = merge.New(c.driver, c.bus, c.tracker, mergeDir, c.wm, c.onMerged)

	if c.cfg.QualityGates.Enabled {
		validatorDir := paths["validator"]
		valCfg := c.cfg.QualityGates
		valCfg.ValidatorDir = validatorDir
		c.valQ = validation.NewQueue(valCfg, c.driver, c.bus, c.tracker, filepath.Join(c.cfg.StateDir, "logs", "validation"), mergeDir, c.onValidated, c.pauseForReason, nil)
	}

	c.syncer = mainline.New(c.driver, c.bus, c.tracker, c.cfg.RepoDir, c.cfg.TargetBranch)

	for i := 0; i < c.cfg.MaxWorkers; i++ {
		id := fmt.Sprintf("worker-%d", i)
		path, ok := paths[id]
		if !ok {
			continue
		}
		ag, err := cmdutils.GetAgentClient(ctx, c.cfg.AgentCommand)
		if err != nil {
			return fmt.Errorf("provision worker %s agent: %w", id, err)
		}
		head, _ := c.driver.RevParse(ctx, path, "HEAD")
		c.workers = append(c.workers, worker.New(id, path, fmt.Sprintf("ralph/worker-%d", i), ag, c.driver, head))
	}

	dispatchCfg := dispatch.Config{
		CreditMarkers:      dispatch.DefaultCreditMarkers,
		RequireImpactTable: c.cfg.RequireImpactTable,
		IntegrationHead: func() string {
			head, _ := c.driver.RevParse(context.Background(), c.cfg.RepoDir, c.cfg.IntegrationBranch)
			return head
		},
	}

	var pendingSyncer dispatch.PendingMainSyncer = c.syncer
	var valCounter dispatch.InFlightCounter
	if c.valQ != nil {
		valCounter = c.valQ
	}

	c.loop = dispatch.New(dispatchCfg, c.tracker, c.bus, c.workers, c.mergeQ, valCounter, pendingSyncer, c.buildPrompt, filepath.Join(c.cfg.StateDir, "logs"))
	return nil
}

// buildPrompt composes the agent prompt for a task. Prompt composition is
// the coordinator's responsibility, not the Agent boundary's (spec.md §1).
func (c *Coordinator) buildPrompt(t tracker.Task) string {
	prompt := fmt.Sprintf("Task %s: %s\n", t.ID, t.Title)
	if len(t.ImpactPlan) > 0 {
		prompt += "\nImpact plan:\n"
		for _, e := range t.ImpactPlan {
			prompt += fmt.Sprintf("- %s (%s): %s\n", e.Path, e.Change, e.Purpose)
		}
	}
	return prompt
}

// onMerged is the Merge Queue's PostMergeHandler (spec.md §4.4.4): route
// to the Validation Engine when quality gates are enabled, otherwise
// straight to mainline sync.
func (c *Coordinator) onMerged(ctx context.Context, taskID string, mergedCommits []string) {
	if c.history != nil {
		for _, commit := range mergedCommits {
			_ = c.history.RecordMergeEvent(store.MergeEvent{RunID: c.runID, TaskID: taskID, Commit: commit, Outcome: "landed", CreatedAt: time.Now()})
		}
	}

	if c.valQ == nil {
		c.syncToMainline(ctx, taskID, mergedCommits)
		return
	}

	changedFiles, _ := c.driver.DiffNameOnlyCached(ctx, c.mergeDir)
	plan := validation.BuildPlan(c.cfg.QualityGates, taskID+"@"+strconv.FormatInt(time.Now().UnixNano(), 36), []string{taskID}, mergedCommits, changedFiles, nil)
	c.valQ.Enqueue(plan)
}

// onValidated is the Validation Engine's PostValidationHandler
// (spec.md §4.5.5).
func (c *Coordinator) onValidated(ctx context.Context, taskIDs []string, commits []string) {
	for _, taskID := range taskIDs {
		c.syncToMainline(ctx, taskID, commits)
	}
}

func (c *Coordinator) syncToMainline(ctx context.Context, taskID string, commits []string) {
	head, _ := c.driver.RevParse(ctx, c.cfg.RepoDir, c.cfg.IntegrationBranch)
	if err := c.syncer.Sync(ctx, taskID, commits, head); err != nil {
		c.bus.Logf("WARN", "mainline sync for %s failed: %v", taskID, err)
		return
	}
	if c.history != nil {
		_ = c.history.RecordTaskOutcome(store.TaskOutcome{RunID: c.runID, TaskID: taskID, Status: string(tracker.Completed), FinishedAt: timePtr(time.Now())})
	}
}

// pauseForReason is the Validation Engine's PauseHandler
// (spec.md §4.5.7 "pause" fallback).
func (c *Coordinator) pauseForReason(reason string) {
	c.bus.Logf("WARN", "pausing: %s", reason)
	c.Pause()
}

// wireNotifications forwards the events an operator needs to act on
// (spec.md §12 "Operator notification on pause/alert") to Slack.
func (c *Coordinator) wireNotifications() {
	if c.notify == nil {
		return
	}
	c.bus.On(func(ev events.Event) {
		var eventType, message string
		switch ev.Type {
		case events.Paused:
			eventType, message = notify.EventPaused, "coordinator paused"
		case events.CreditExhausted:
			eventType, message = notify.EventCreditExhausted, fmt.Sprintf("credit exhausted on task %s", ev.TaskID)
		case events.MainSyncAlert:
			eventType, message = notify.EventMainSyncAlert, fmt.Sprintf("mainline sync retries exhausted for task %s", ev.TaskID)
		case events.ValidationReverted:
			eventType, message = notify.EventValidationRevert, fmt.Sprintf("validation plan %s reverted", ev.PlanID)
		default:
			return
		}
		if _, err := c.notify.Notify(context.Background(), eventType, message, ""); err != nil {
			c.bus.Logf("WARN", "notify %s failed: %v", eventType, err)
		}
	})
}

// Run starts the Merge Queue, Validation Engine (if enabled), and Dispatch
// Loop, blocking until the Dispatch Loop reaches quiescence or ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.startedAt = time.Now()
	if c.history != nil {
		_ = c.history.StartRun(store.RunSummary{RunID: c.runID, StartedAt: c.startedAt, TargetBranch: c.cfg.TargetBranch})
	}
	c.bus.Emit(events.Event{Type: events.Started})

	// mergeQ, valQ, and the retry ticker only stop on context cancellation
	// (they have no other way to know the run is over), so they get a
	// context scoped to this Run call: once the Dispatch Loop quiesces,
	// cancelling bgCtx lets wg.Wait() below return instead of blocking
	// forever on subsystems that still think there's more work coming.
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.mergeQ.Run(bgCtx, merge.NewResolver(c.driver, c.wm, c.cfg.IntegrationBranch, nil))
	}()

	if c.valQ != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.valQ.Run(bgCtx)
		}()
	}

	retryTicker := time.NewTicker(30 * time.Second)
	defer retryTicker.Stop()
	retryDone := make(chan struct{})
	go func() {
		defer close(retryDone)
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-retryTicker.C:
				head, _ := c.driver.RevParse(bgCtx, c.cfg.RepoDir, c.cfg.IntegrationBranch)
				c.syncer.RetryPending(bgCtx, head)
			}
		}
	}()

	controlDone := make(chan struct{})
	go func() {
		defer close(controlDone)
		c.watchControlFile(bgCtx)
	}()

	c.loop.Run(ctx)
	cancelBg()

	c.bus.Emit(events.Event{Type: events.Stopped})
	if c.history != nil {
		opened, healed, failed, complete := c.summarizeTasks()
		_ = c.history.FinishRun(c.runID, time.Now(), opened, healed, failed, complete, c.pauseCount)
	}
	wg.Wait()
	<-retryDone
	<-controlDone
	return nil
}

// watchControlFile polls the control file every second so an out-of-process
// `ralph pause`/`ralph resume` invocation reaches this coordinator's
// Dispatch Loop (SPEC_FULL.md §12 "file-based pause/resume control
// surface"). It reconciles toward whatever the file last said rather than
// tracking who wrote it, so it is idempotent against the coordinator's own
// writeControlFile calls.
func (c *Coordinator) watchControlFile(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	path := filepath.Join(c.cfg.StateDir, "control")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			switch string(raw) {
			case "paused":
				if !c.loop.IsPaused() {
					c.Pause()
				}
			case "running":
				if c.loop.IsPaused() {
					c.Resume()
				}
			}
		}
	}
}

func (c *Coordinator) summarizeTasks() (opened, healed, failed, complete int) {
	tasks, err := c.tracker.ListTasks()
	if err != nil {
		return 0, 0, 0, 0
	}
	for _, t := range tasks {
		switch t.Status {
		case tracker.Completed, tracker.PendingMain:
			complete++
		case tracker.Blocked, tracker.Cancelled:
			failed++
		default:
			opened++
		}
		if t.FailureCount > 0 && t.Status != tracker.Blocked {
			healed++
		}
	}
	return opened, healed, failed, complete
}

// Pause stops the Dispatch Loop from claiming new work (spec.md §5, §8 L3).
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.pauseCount++
	c.mu.Unlock()
	c.loop.Pause()
	c.writeControlFile("paused")
}

// Resume clears the pause flag.
func (c *Coordinator) Resume() {
	c.loop.Resume()
	c.writeControlFile("running")
}

// Stop signals the Dispatch Loop to exit after its current poll.
func (c *Coordinator) Stop() {
	c.loop.Stop()
}

// writeControlFile records the coordinator's pause state for the CLI's
// out-of-process pause/resume/status subcommands to read
// (SPEC_FULL.md §12 "Pause/resume control surface").
func (c *Coordinator) writeControlFile(state string) {
	path := filepath.Join(c.cfg.StateDir, "control")
	_ = os.WriteFile(path, []byte(state), 0o644)
}

func timePtr(t time.Time) *time.Time { return &t }
