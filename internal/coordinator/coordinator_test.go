package coordinator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ralph/internal/agent"
	"ralph/internal/cmdutils"
	"ralph/internal/notify"
	"ralph/internal/store"
	"ralph/internal/tracker"
	"ralph/internal/vcs"
)

func fakeAgentClient(t *testing.T) func() {
	t.Helper()
	orig := cmdutils.GetAgentClient
	cmdutils.GetAgentClient = func(ctx context.Context, explicit string) (agent.Agent, error) {
		return &agent.FakeAgent{ExecuteTaskFunc: func(ctx context.Context, prompt, workspacePath string) (agent.Result, error) {
			return agent.Result{Completed: true}, nil
		}}, nil
	}
	return func() { cmdutils.GetAgentClient = orig }
}

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		RepoDir:           filepath.Join(dir, "repo"),
		WorkspacesDir:     filepath.Join(dir, "workspaces"),
		StateDir:          filepath.Join(dir, "state"),
		TargetBranch:      "main",
		IntegrationBranch: "ralph/integration",
		MaxWorkers:        1,
		Store:             store.Config{Type: "sqlite", ConnectionString: filepath.Join(dir, "run.db")},
	}
}

func TestNewWiresSubsystemsAndRunCompletesASimpleTask(t *testing.T) {
	restore := fakeAgentClient(t)
	defer restore()

	tr, err := tracker.NewFileTracker(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)
	require.NoError(t, tr.AddTask(tracker.Task{ID: "T1", Title: "do the thing", Status: tracker.Open}))

	c, err := New(context.Background(), testConfig(t), &vcs.FakeDriver{}, tr, nil)
	require.NoError(t, err)
	require.Len(t, c.workers, 1)
	require.NotNil(t, c.mergeQ)
	require.Nil(t, c.valQ)

	require.NoError(t, c.Run(context.Background()))

	task, _, err := tr.GetTask("T1")
	require.NoError(t, err)
	require.Equal(t, tracker.Completed, task.Status)
}

func TestPauseResumeToggleTheDispatchLoop(t *testing.T) {
	restore := fakeAgentClient(t)
	defer restore()

	tr, err := tracker.NewFileTracker(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	c, err := New(context.Background(), testConfig(t), &vcs.FakeDriver{}, tr, nil)
	require.NoError(t, err)

	c.Pause()
	require.Equal(t, 1, c.pauseCount)
	c.Resume()
}

type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) Start(ctx context.Context) {}
func (r *recordingNotifier) Notify(ctx context.Context, eventType, message, threadTS string) (string, error) {
	r.events = append(r.events, eventType)
	return "", nil
}
func (r *recordingNotifier) AddReaction(ctx context.Context, timestamp, reaction string) error {
	return nil
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func TestPauseForReasonForwardsToNotifier(t *testing.T) {
	restore := fakeAgentClient(t)
	defer restore()

	tr, err := tracker.NewFileTracker(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	rec := &recordingNotifier{}
	c, err := New(context.Background(), testConfig(t), &vcs.FakeDriver{}, tr, rec)
	require.NoError(t, err)

	c.pauseForReason("validator workspace unavailable")
	require.Contains(t, rec.events, notify.EventPaused)
}
