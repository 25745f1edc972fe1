package agent

import "context"

// FakeAgent is a configurable-func Agent for tests in consuming packages
// (worker, dispatch), mirroring vcs.FakeDriver's shape.
type FakeAgent struct {
	ExecuteTaskFunc func(ctx context.Context, prompt, workspacePath string) (Result, error)
	CloseFunc       func() error
	Calls           int
}

func (f *FakeAgent) ExecuteTask(ctx context.Context, prompt, workspacePath string) (Result, error) {
	f.Calls++
	if f.ExecuteTaskFunc != nil {
		return f.ExecuteTaskFunc(ctx, prompt, workspacePath)
	}
	return Result{Completed: true}, nil
}

func (f *FakeAgent) Close() error {
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}

var _ Agent = (*FakeAgent)(nil)
