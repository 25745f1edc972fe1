package validation

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"ralph/internal/events"
	"ralph/internal/vcs"
)

var errResolveStub = errors.New("reset --hard stub failure")

func newTestBus(t *testing.T) *events.Bus {
	b, err := events.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func trueCheckConfig(id string, required bool) CheckConfig {
	return CheckConfig{ID: id, Command: []string{"true"}, Required: required}
}

func falseCheckConfig(id string, required bool) CheckConfig {
	return CheckConfig{ID: id, Command: []string{"false"}, Required: required}
}

func TestRunPlanPassesAndDrivesPostValidation(t *testing.T) {
	fake := &vcs.FakeDriver{}
	bus := newTestBus(t)
	var gotTasks []string
	q := NewQueue(Config{ValidatorDir: t.TempDir()}, fake, bus, nil, t.TempDir(), "/integ",
		func(ctx context.Context, taskIDs, commits []string) { gotTasks = taskIDs },
		nil, nil)

	plan := Plan{PlanID: "P1", TaskIDs: []string{"T1"}, Commits: []string{"c1"}, Checks: []CheckConfig{trueCheckConfig("sanity", true)}}
	q.runPlan(context.Background(), plan)
	require.Equal(t, []string{"T1"}, gotTasks)
}

func TestRunPlanBlocksWhenResetHardFails(t *testing.T) {
	fake := &vcs.FakeDriver{
		ResetHardFunc: func(ctx context.Context, dir, commit string) error { return errResolveStub },
	}
	bus := newTestBus(t)
	var blocked bool
	unsub := bus.On(func(ev events.Event) {
		if ev.Type == events.ValidationBlocked {
			blocked = true
		}
	})
	defer unsub()
	q := NewQueue(Config{ValidatorDir: t.TempDir()}, fake, bus, nil, t.TempDir(), "/integ", nil, nil, nil)
	q.runPlan(context.Background(), Plan{PlanID: "P1", Checks: []CheckConfig{trueCheckConfig("sanity", true)}})
	require.True(t, blocked)
}

func TestRunPlanQuarantinesOnRequiredFailureWithNoFixAgent(t *testing.T) {
	fake := &vcs.FakeDriver{}
	bus := newTestBus(t)
	postCalled := false
	q := NewQueue(Config{ValidatorDir: t.TempDir(), FallbackStrategy: FallbackQuarantine}, fake, bus, nil, t.TempDir(), "/integ",
		func(ctx context.Context, taskIDs, commits []string) { postCalled = true }, nil, nil)

	plan := Plan{PlanID: "P1", TaskIDs: []string{"T1"}, Checks: []CheckConfig{falseCheckConfig("unit", true)}}
	q.runPlan(context.Background(), plan)
	require.False(t, postCalled)
}

func TestRunPlanHealsViaFixAgentAndCherryPicksFixCommit(t *testing.T) {
	dir := t.TempDir()
	marker := dir + "/healed"
	script := dir + "/unit.sh"
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\nif [ -f \""+marker+"\" ]; then exit 0; fi\nexit 1\n"), 0o755))

	fake := &vcs.FakeDriver{
		RevParseFunc: func(ctx context.Context, dir string, ref string) (string, error) { return "fixsha", nil },
		CherryPickFunc: func(ctx context.Context, dir, commit string) vcs.CherryPickResult {
			require.Equal(t, "fixsha", commit)
			return vcs.CherryPickResult{Outcome: vcs.CherryPickSucceeded}
		},
	}
	bus := newTestBus(t)
	var healedTasks []string
	fixAttempt := 0
	fixAgent := func(ctx context.Context, workDir, prompt string) (bool, error) {
		fixAttempt++
		require.NoError(t, os.WriteFile(marker, []byte("done"), 0o644))
		return true, nil
	}
	q := NewQueue(Config{ValidatorDir: dir, MaxFixAttempts: 1, MaxTestReruns: 0, FallbackStrategy: FallbackQuarantine}, fake, bus, nil, t.TempDir(), "/integ",
		func(ctx context.Context, taskIDs, commits []string) { healedTasks = taskIDs }, nil, fixAgent)

	plan := Plan{PlanID: "P1", TaskIDs: []string{"T1"}, Checks: []CheckConfig{
		{ID: "unit", Command: []string{"/bin/sh", script}, Required: true},
	}}
	q.runPlan(context.Background(), plan)
	require.Equal(t, 1, fixAttempt)
	require.Equal(t, []string{"T1"}, healedTasks)
}

func TestEnqueueCoalesceKeepsOnlyNewestPlan(t *testing.T) {
	bus := newTestBus(t)
	q := NewQueue(Config{Mode: ModeCoalesce}, &vcs.FakeDriver{}, bus, nil, t.TempDir(), "/integ", nil, nil, nil)
	q.Enqueue(Plan{PlanID: "P1"})
	q.Enqueue(Plan{PlanID: "P2"})
	items := q.drain()
	require.Len(t, items, 1)
	require.Equal(t, "P2", items[0].PlanID)
}

func TestEnqueueBatchWindowAccumulates(t *testing.T) {
	bus := newTestBus(t)
	q := NewQueue(Config{Mode: ModeBatchWindow, BatchWindowMs: 10}, &vcs.FakeDriver{}, bus, nil, t.TempDir(), "/integ", nil, nil, nil)
	q.Enqueue(Plan{PlanID: "P1"})
	q.Enqueue(Plan{PlanID: "P2"})
	items := q.drain()
	require.Len(t, items, 2)
}
