package vcs

import "context"

// FakeDriver is a configurable-func Driver for tests across packages that
// depend on vcs.Driver, mirroring the teacher's docker.MockAPI shape: every
// method has a matching *Func field, defaulting to an innocuous value when
// unset.
type FakeDriver struct {
	WorktreeAddFunc    func(ctx context.Context, repoDir string, spec WorktreeSpec) error
	WorktreeRemoveFunc func(ctx context.Context, repoDir, path string) error
	WorktreePruneFunc  func(ctx context.Context, repoDir string) error

	StatusPorcelainFunc   func(ctx context.Context, dir string) (string, error)
	AddAllFunc            func(ctx context.Context, dir string) error
	ResetPathsFunc        func(ctx context.Context, dir string, paths []string) error
	DiffNameOnlyCachedFunc func(ctx context.Context, dir string) ([]string, error)

	CommitFunc           func(ctx context.Context, dir, subject, trailer string) error
	CommitAmendFunc      func(ctx context.Context, dir, message string) error
	CommitMessageFunc    func(ctx context.Context, dir, ref string) (string, error)
	ShowCommitFunc       func(ctx context.Context, dir, ref string) (CommitMetadata, error)
	RevParseFunc         func(ctx context.Context, dir, ref string) (string, error)
	RevListFunc          func(ctx context.Context, dir, base, head string, reverse bool) ([]string, error)
	DiffTreeNameOnlyFunc func(ctx context.Context, dir, commit string) ([]string, error)

	BranchForceFunc  func(ctx context.Context, dir, name, ref string) error
	TagAnnotatedFunc func(ctx context.Context, dir, name, msg, commit string) error
	UpdateRefFunc    func(ctx context.Context, dir, ref, commit string) error

	CherryPickFunc         func(ctx context.Context, dir, commit string) CherryPickResult
	CherryPickContinueFunc func(ctx context.Context, dir string) CherryPickResult
	CherryPickSkipFunc     func(ctx context.Context, dir string) error
	CherryPickAbortFunc    func(ctx context.Context, dir string) error
	ConflictedPathsFunc    func(ctx context.Context, dir string) ([]string, error)
	CheckoutOursFunc       func(ctx context.Context, dir, file string) error
	CheckoutTheirsFunc     func(ctx context.Context, dir, file string) error
	MergeToolFunc          func(ctx context.Context, dir, file string) error

	MergeFFOnlyFunc     func(ctx context.Context, dir, commit string) error
	ResetHardFunc       func(ctx context.Context, dir, commit string) error
	CleanFunc           func(ctx context.Context, dir string) error
	StashPushFunc       func(ctx context.Context, dir, message string) error
	StashListLatestFunc func(ctx context.Context, dir string) (string, error)
	StashApplyFunc      func(ctx context.Context, dir, ref string) error
	StashDropFunc       func(ctx context.Context, dir, ref string) error
	RevertFunc          func(ctx context.Context, dir, commit string) error

	CloneFunc          func(ctx context.Context, url, dir string) error
	RepoExistsFunc     func(dir string) bool
	ConfigSetFunc      func(ctx context.Context, dir, key, value string) error
	FetchFunc          func(ctx context.Context, dir, remote, ref string) error
	PushFunc           func(ctx context.Context, dir, remote, ref string) error
	CheckoutBranchFunc func(ctx context.Context, dir, branch string) error
}

func (f *FakeDriver) WorktreeAdd(ctx context.Context, repoDir string, spec WorktreeSpec) error {
	if f.WorktreeAddFunc != nil {
		return f.WorktreeAddFunc(ctx, repoDir, spec)
	}
	return nil
}

func (f *FakeDriver) WorktreeRemove(ctx context.Context, repoDir, path string) error {
	if f.WorktreeRemoveFunc != nil {
		return f.WorktreeRemoveFunc(ctx, repoDir, path)
	}
	return nil
}

func (f *FakeDriver) WorktreePrune(ctx context.Context, repoDir string) error {
	if f.WorktreePruneFunc != nil {
		return f.WorktreePruneFunc(ctx, repoDir)
	}
	return nil
}

func (f *FakeDriver) StatusPorcelain(ctx context.Context, dir string) (string, error) {
	if f.StatusPorcelainFunc != nil {
		return f.StatusPorcelainFunc(ctx, dir)
	}
	return "", nil
}

func (f *FakeDriver) AddAll(ctx context.Context, dir string) error {
	if f.AddAllFunc != nil {
		return f.AddAllFunc(ctx, dir)
	}
	return nil
}

func (f *FakeDriver) ResetPaths(ctx context.Context, dir string, paths []string) error {
	if f.ResetPathsFunc != nil {
		return f.ResetPathsFunc(ctx, dir, paths)
	}
	return nil
}

func (f *FakeDriver) DiffNameOnlyCached(ctx context.Context, dir string) ([]string, error) {
	if f.DiffNameOnlyCachedFunc != nil {
		return f.DiffNameOnlyCachedFunc(ctx, dir)
	}
	return nil, nil
}

func (f *FakeDriver) Commit(ctx context.Context, dir, subject, trailer string) error {
	if f.CommitFunc != nil {
		return f.CommitFunc(ctx, dir, subject, trailer)
	}
	return nil
}

func (f *FakeDriver) CommitAmend(ctx context.Context, dir, message string) error {
	if f.CommitAmendFunc != nil {
		return f.CommitAmendFunc(ctx, dir, message)
	}
	return nil
}

func (f *FakeDriver) CommitMessage(ctx context.Context, dir, ref string) (string, error) {
	if f.CommitMessageFunc != nil {
		return f.CommitMessageFunc(ctx, dir, ref)
	}
	return "", nil
}

func (f *FakeDriver) ShowCommit(ctx context.Context, dir, ref string) (CommitMetadata, error) {
	if f.ShowCommitFunc != nil {
		return f.ShowCommitFunc(ctx, dir, ref)
	}
	return CommitMetadata{Hash: ref}, nil
}

func (f *FakeDriver) RevParse(ctx context.Context, dir, ref string) (string, error) {
	if f.RevParseFunc != nil {
		return f.RevParseFunc(ctx, dir, ref)
	}
	return ref, nil
}

func (f *FakeDriver) RevList(ctx context.Context, dir, base, head string, reverse bool) ([]string, error) {
	if f.RevListFunc != nil {
		return f.RevListFunc(ctx, dir, base, head, reverse)
	}
	return nil, nil
}

func (f *FakeDriver) DiffTreeNameOnly(ctx context.Context, dir, commit string) ([]string, error) {
	if f.DiffTreeNameOnlyFunc != nil {
		return f.DiffTreeNameOnlyFunc(ctx, dir, commit)
	}
	return nil, nil
}

func (f *FakeDriver) BranchForce(ctx context.Context, dir, name, ref string) error {
	if f.BranchForceFunc != nil {
		return f.BranchForceFunc(ctx, dir, name, ref)
	}
	return nil
}

func (f *FakeDriver) TagAnnotated(ctx context.Context, dir, name, msg, commit string) error {
	if f.TagAnnotatedFunc != nil {
		return f.TagAnnotatedFunc(ctx, dir, name, msg, commit)
	}
	return nil
}

func (f *FakeDriver) UpdateRef(ctx context.Context, dir, ref, commit string) error {
	if f.UpdateRefFunc != nil {
		return f.UpdateRefFunc(ctx, dir, ref, commit)
	}
	return nil
}

func (f *FakeDriver) CherryPick(ctx context.Context, dir, commit string) CherryPickResult {
	if f.CherryPickFunc != nil {
		return f.CherryPickFunc(ctx, dir, commit)
	}
	return CherryPickResult{Outcome: CherryPickSucceeded}
}

func (f *FakeDriver) CherryPickContinue(ctx context.Context, dir string) CherryPickResult {
	if f.CherryPickContinueFunc != nil {
		return f.CherryPickContinueFunc(ctx, dir)
	}
	return CherryPickResult{Outcome: CherryPickSucceeded}
}

func (f *FakeDriver) CherryPickSkip(ctx context.Context, dir string) error {
	if f.CherryPickSkipFunc != nil {
		return f.CherryPickSkipFunc(ctx, dir)
	}
	return nil
}

func (f *FakeDriver) CherryPickAbort(ctx context.Context, dir string) error {
	if f.CherryPickAbortFunc != nil {
		return f.CherryPickAbortFunc(ctx, dir)
	}
	return nil
}

func (f *FakeDriver) ConflictedPaths(ctx context.Context, dir string) ([]string, error) {
	if f.ConflictedPathsFunc != nil {
		return f.ConflictedPathsFunc(ctx, dir)
	}
	return nil, nil
}

func (f *FakeDriver) CheckoutOurs(ctx context.Context, dir, file string) error {
	if f.CheckoutOursFunc != nil {
		return f.CheckoutOursFunc(ctx, dir, file)
	}
	return nil
}

func (f *FakeDriver) CheckoutTheirs(ctx context.Context, dir, file string) error {
	if f.CheckoutTheirsFunc != nil {
		return f.CheckoutTheirsFunc(ctx, dir, file)
	}
	return nil
}

func (f *FakeDriver) MergeTool(ctx context.Context, dir, file string) error {
	if f.MergeToolFunc != nil {
		return f.MergeToolFunc(ctx, dir, file)
	}
	return nil
}

func (f *FakeDriver) MergeFFOnly(ctx context.Context, dir, commit string) error {
	if f.MergeFFOnlyFunc != nil {
		return f.MergeFFOnlyFunc(ctx, dir, commit)
	}
	return nil
}

func (f *FakeDriver) ResetHard(ctx context.Context, dir, commit string) error {
	if f.ResetHardFunc != nil {
		return f.ResetHardFunc(ctx, dir, commit)
	}
	return nil
}

func (f *FakeDriver) Clean(ctx context.Context, dir string) error {
	if f.CleanFunc != nil {
		return f.CleanFunc(ctx, dir)
	}
	return nil
}

func (f *FakeDriver) StashPush(ctx context.Context, dir, message string) error {
	if f.StashPushFunc != nil {
		return f.StashPushFunc(ctx, dir, message)
	}
	return nil
}

func (f *FakeDriver) StashListLatest(ctx context.Context, dir string) (string, error) {
	if f.StashListLatestFunc != nil {
		return f.StashListLatestFunc(ctx, dir)
	}
	return "", nil
}

func (f *FakeDriver) StashApply(ctx context.Context, dir, ref string) error {
	if f.StashApplyFunc != nil {
		return f.StashApplyFunc(ctx, dir, ref)
	}
	return nil
}

func (f *FakeDriver) StashDrop(ctx context.Context, dir, ref string) error {
	if f.StashDropFunc != nil {
		return f.StashDropFunc(ctx, dir, ref)
	}
	return nil
}

func (f *FakeDriver) Revert(ctx context.Context, dir, commit string) error {
	if f.RevertFunc != nil {
		return f.RevertFunc(ctx, dir, commit)
	}
	return nil
}

func (f *FakeDriver) Clone(ctx context.Context, url, dir string) error {
	if f.CloneFunc != nil {
		return f.CloneFunc(ctx, url, dir)
	}
	return nil
}

func (f *FakeDriver) RepoExists(dir string) bool {
	if f.RepoExistsFunc != nil {
		return f.RepoExistsFunc(dir)
	}
	return true
}

func (f *FakeDriver) ConfigSet(ctx context.Context, dir, key, value string) error {
	if f.ConfigSetFunc != nil {
		return f.ConfigSetFunc(ctx, dir, key, value)
	}
	return nil
}

func (f *FakeDriver) Fetch(ctx context.Context, dir, remote, ref string) error {
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, dir, remote, ref)
	}
	return nil
}

func (f *FakeDriver) Push(ctx context.Context, dir, remote, ref string) error {
	if f.PushFunc != nil {
		return f.PushFunc(ctx, dir, remote, ref)
	}
	return nil
}

func (f *FakeDriver) CheckoutBranch(ctx context.Context, dir, branch string) error {
	if f.CheckoutBranchFunc != nil {
		return f.CheckoutBranchFunc(ctx, dir, branch)
	}
	return nil
}

var _ Driver = (*FakeDriver)(nil)
