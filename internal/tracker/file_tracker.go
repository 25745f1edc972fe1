package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileTracker is a reference Tracker backed by a single JSON file, loaded
// into memory once at construction and rewritten atomically on every
// mutation. It
// exists to exercise the coordinator end to end without an external task
// store; production deployments plug in their own Tracker.
type FileTracker struct {
	path string

	mu    sync.Mutex
	tasks map[string]Task
}

// NewFileTracker loads tasks from path (creating an empty set if the file
// does not yet exist).
func NewFileTracker(path string) (*FileTracker, error) {
	t := &FileTracker{path: path, tasks: make(map[string]Task)}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *FileTracker) load() error {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tracker file: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("unmarshal tracker file: %w", err)
	}
	for _, task := range tasks {
		t.tasks[task.ID] = task
	}
	return nil
}

// save must be called with t.mu held.
func (t *FileTracker) save() error {
	tasks := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		tasks = append(tasks, task)
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker file: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tracker file: %w", err)
	}
	return os.Rename(tmp, t.path)
}

// AddTask registers a new task, seeding updatedAt if the caller left it
// zero. Used to load a run's task list (e.g. from the CLI's start command)
// into the reference tracker; external Tracker implementations handle
// ingestion their own way.
func (t *FileTracker) AddTask(task Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now()
	}
	t.tasks[task.ID] = task
	return t.save()
}

func (t *FileTracker) ListTasks() ([]Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, task)
	}
	return out, nil
}

func (t *FileTracker) GetTask(id string) (Task, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	return task, ok, nil
}

// dependenciesSatisfied implements the re-check from spec.md §4.1.3: every
// dependsOn id must exist in the tracker with status completed or
// cancelled. Must be called with t.mu held.
func (t *FileTracker) dependenciesSatisfied(task Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := t.tasks[depID]
		if !ok {
			return false
		}
		if dep.Status != Completed && dep.Status != Cancelled {
			return false
		}
	}
	return true
}

func (t *FileTracker) NextReadyTask(excludeIDs map[string]bool) (Task, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, task := range t.tasks {
		if task.Status != Open {
			continue
		}
		if excludeIDs[task.ID] {
			continue
		}
		if !t.dependenciesSatisfied(task) {
			continue
		}
		return task, true, nil
	}
	return Task{}, false, nil
}

func (t *FileTracker) ClaimTask(taskID, workerID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok || task.Status != Open {
		return false, nil
	}
	task.Status = InProgress
	task.UpdatedAt = time.Now()
	t.tasks[taskID] = task
	return true, t.save()
}

func (t *FileTracker) ReleaseTask(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return nil
	}
	task.Status = Open
	task.UpdatedAt = time.Now()
	t.tasks[taskID] = task
	return t.save()
}

func (t *FileTracker) UpdateStatus(taskID string, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	task.Status = status
	task.UpdatedAt = time.Now()
	t.tasks[taskID] = task
	return t.save()
}

func (t *FileTracker) CompleteTask(taskID string) error {
	return t.UpdateStatus(taskID, Completed)
}

func (t *FileTracker) IncrementFailure(taskID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return 0, fmt.Errorf("unknown task %s", taskID)
	}
	task.FailureCount++
	task.UpdatedAt = time.Now()
	t.tasks[taskID] = task
	return task.FailureCount, t.save()
}

func (t *FileTracker) MarkPendingMain(taskID string, count int, commits []string) error {
	return t.UpdateStatus(taskID, PendingMain)
}

func (t *FileTracker) ClearPendingMain(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return nil
	}
	if task.Status == PendingMain {
		task.Status = Completed
		task.UpdatedAt = time.Now()
		t.tasks[taskID] = task
		return t.save()
	}
	return nil
}

// ResetStale reopens every in_progress task whose UpdatedAt is older than
// staleAfter and whose id is not in activeLeases (spec.md §4.1 quiescence
// sequence, §9 "stale in_progress reset uses updatedAt"). Tasks with a
// zero UpdatedAt are never reset, matching the documented source quirk.
func (t *FileTracker) ResetStale(staleAfter time.Duration, activeLeases map[string]bool) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reset []string
	now := time.Now()
	for id, task := range t.tasks {
		if task.Status != InProgress {
			continue
		}
		if activeLeases[id] {
			continue
		}
		if task.UpdatedAt.IsZero() {
			continue
		}
		if now.Sub(task.UpdatedAt) < staleAfter {
			continue
		}
		task.Status = Open
		task.UpdatedAt = now
		t.tasks[id] = task
		reset = append(reset, id)
	}
	if len(reset) > 0 {
		return reset, t.save()
	}
	return reset, nil
}

var _ Tracker = (*FileTracker)(nil)
