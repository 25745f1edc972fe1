package vcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// emptyCherryPickMarkers are substring-matched case-insensitively against
// cherry-pick output to detect a no-op pick (spec.md §6).
var emptyCherryPickMarkers = []string{
	"cherry-pick is now empty",
	"previous cherry-pick is now empty",
}

// ExecDriver implements Driver by shelling out to the git binary, mirroring
// the teacher's masked-output exec.CommandContext approach.
type ExecDriver struct {
	Bin string
}

// NewExecDriver returns a Driver backed by the "git" binary on PATH.
func NewExecDriver() *ExecDriver {
	return &ExecDriver{Bin: "git"}
}

var (
	reGitHubPAT = regexp.MustCompile(`https://[^@:]+@github\.com`)
	reBasicAuth = regexp.MustCompile(`https://[^:/]+:[^@/]+@`)
)

type maskingWriter struct{ w io.Writer }

func (mw *maskingWriter) Write(p []byte) (int, error) {
	s := string(p)
	s = reGitHubPAT.ReplaceAllString(s, "https://[REDACTED]@github.com")
	s = reBasicAuth.ReplaceAllString(s, "https://[REDACTED]@")
	_, err := mw.w.Write([]byte(s))
	return len(p), err
}

// run executes git with the given args in dir, returning combined
// stdout+stderr. Secrets embedded in URLs are masked before they reach any
// persisted buffer.
func (d *ExecDriver) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=/bin/true")

	var buf bytes.Buffer
	cmd.Stdout = &maskingWriter{w: &buf}
	cmd.Stderr = &maskingWriter{w: &buf}

	err := cmd.Run()
	return buf.String(), err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

func (d *ExecDriver) WorktreeAdd(ctx context.Context, repoDir string, spec WorktreeSpec) error {
	ctx, cancel := withTimeout(ctx, 2*time.Minute)
	defer cancel()
	args := []string{"worktree", "add"}
	if spec.Force {
		args = append(args, "-B", spec.BranchName)
	} else {
		args = append(args, "-b", spec.BranchName)
	}
	args = append(args, spec.Path, spec.BaseRef)
	out, err := d.run(ctx, repoDir, args...)
	if err != nil {
		return fmt.Errorf("worktree add %s failed: %w: %s", spec.Path, err, out)
	}
	return nil
}

func (d *ExecDriver) WorktreeRemove(ctx context.Context, repoDir, path string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, repoDir, "worktree", "remove", "--force", path)
	if err != nil {
		return fmt.Errorf("worktree remove %s failed: %w: %s", path, err, out)
	}
	return nil
}

func (d *ExecDriver) WorktreePrune(ctx context.Context, repoDir string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, repoDir, "worktree", "prune")
	if err != nil {
		return fmt.Errorf("worktree prune failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) StatusPorcelain(ctx context.Context, dir string) (string, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("status failed: %w: %s", err, out)
	}
	return out, nil
}

func (d *ExecDriver) AddAll(ctx context.Context, dir string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "add", "-A")
	if err != nil {
		return fmt.Errorf("add -A failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) ResetPaths(ctx context.Context, dir string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	args := append([]string{"reset", "--"}, paths...)
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return fmt.Errorf("reset -- failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) DiffNameOnlyCached(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "diff", "--name-only", "--cached")
	if err != nil {
		return nil, fmt.Errorf("diff --cached failed: %w: %s", err, out)
	}
	return splitLines(out), nil
}

func (d *ExecDriver) Commit(ctx context.Context, dir, subject, trailer string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	args := []string{"commit", "-m", subject}
	if trailer != "" {
		args = append(args, "-m", trailer)
	}
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return fmt.Errorf("commit failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) CommitAmend(ctx context.Context, dir, message string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "commit", "--amend", "-m", message)
	if err != nil {
		return fmt.Errorf("commit --amend failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) CommitMessage(ctx context.Context, dir, ref string) (string, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "log", "-1", "--format=%B", ref)
	if err != nil {
		return "", fmt.Errorf("log -1 --format=%%B failed: %w: %s", err, out)
	}
	return out, nil
}

// commitFieldSep is a control byte unlikely to appear in commit metadata,
// used to delimit fields in a single --format pass.
const commitFieldSep = "\x00"

func (d *ExecDriver) ShowCommit(ctx context.Context, dir, ref string) (CommitMetadata, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	format := strings.Join([]string{
		"%H", "%h", "%s", "%b", "%an", "%ae", "%aI", "%cn", "%ce", "%cI", "%P", "%T",
	}, commitFieldSep)
	out, err := d.run(ctx, dir, "log", "-1", "--format="+format, ref)
	if err != nil {
		return CommitMetadata{}, fmt.Errorf("log -1 --format=<fields> failed: %w: %s", err, out)
	}
	fields := strings.Split(strings.TrimRight(out, "\n"), commitFieldSep)
	for len(fields) < 12 {
		fields = append(fields, "")
	}
	meta := CommitMetadata{
		Hash:      fields[0],
		ShortHash: fields[1],
		Subject:   fields[2],
		Body:      fields[3],
		Author:    Person{Name: fields[4], Email: fields[5], Date: parseRFC3339(fields[6])},
		Committer: Person{Name: fields[7], Email: fields[8], Date: parseRFC3339(fields[9])},
		Tree:      fields[11],
	}
	if fields[10] != "" {
		meta.Parents = strings.Fields(fields[10])
	}

	names, err := d.DiffTreeNameOnly(ctx, dir, ref)
	if err == nil {
		meta.FileNames = names
		meta.FilesChanged = len(names)
	}
	ins, del, err := d.diffTreeStat(ctx, dir, ref)
	if err == nil {
		meta.Insertions = ins
		meta.Deletions = del
	}
	return meta, nil
}

func parseRFC3339(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func (d *ExecDriver) RevParse(ctx context.Context, dir, ref string) (string, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("rev-parse %s failed: %w: %s", ref, err, out)
	}
	return strings.TrimSpace(out), nil
}

func (d *ExecDriver) RevList(ctx context.Context, dir, base, head string, reverse bool) ([]string, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	args := []string{"rev-list"}
	if reverse {
		args = append(args, "--reverse")
	}
	args = append(args, fmt.Sprintf("%s..%s", base, head))
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return nil, fmt.Errorf("rev-list %s..%s failed: %w: %s", base, head, err, out)
	}
	return splitLines(out), nil
}

func (d *ExecDriver) DiffTreeNameOnly(ctx context.Context, dir, commit string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "diff-tree", "--no-commit-id", "--name-only", "-r", commit)
	if err != nil {
		return nil, fmt.Errorf("diff-tree --name-only failed: %w: %s", err, out)
	}
	return splitLines(out), nil
}

var statLineRe = regexp.MustCompile(`(\d+) insertions?\(\+\)|(\d+) deletions?\(-\)`)

func (d *ExecDriver) diffTreeStat(ctx context.Context, dir, commit string) (insertions, deletions int, err error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "diff-tree", "--no-commit-id", "-r", "--stat", commit)
	if err != nil {
		return 0, 0, fmt.Errorf("diff-tree --stat failed: %w: %s", err, out)
	}
	for _, m := range statLineRe.FindAllStringSubmatch(out, -1) {
		if m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			insertions += n
		}
		if m[2] != "" {
			n, _ := strconv.Atoi(m[2])
			deletions += n
		}
	}
	return insertions, deletions, nil
}

func (d *ExecDriver) BranchForce(ctx context.Context, dir, name, ref string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "branch", "-f", name, ref)
	if err != nil {
		return fmt.Errorf("branch -f %s failed: %w: %s", name, err, out)
	}
	return nil
}

func (d *ExecDriver) TagAnnotated(ctx context.Context, dir, name, msg, commit string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "tag", "-a", name, "-m", msg, commit)
	if err != nil {
		return fmt.Errorf("tag -a %s failed: %w: %s", name, err, out)
	}
	return nil
}

func (d *ExecDriver) UpdateRef(ctx context.Context, dir, ref, commit string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "update-ref", ref, commit)
	if err != nil {
		return fmt.Errorf("update-ref %s failed: %w: %s", ref, err, out)
	}
	return nil
}

func classifyCherryPick(out string, err error) CherryPickResult {
	lower := strings.ToLower(out)
	if err == nil {
		return CherryPickResult{Outcome: CherryPickSucceeded, Output: out}
	}
	for _, marker := range emptyCherryPickMarkers {
		if strings.Contains(lower, marker) {
			return CherryPickResult{Outcome: CherryPickEmpty, Output: out, Err: err}
		}
	}
	return CherryPickResult{Outcome: CherryPickConflict, Output: out, Err: err}
}

func (d *ExecDriver) CherryPick(ctx context.Context, dir, commit string) CherryPickResult {
	ctx, cancel := withTimeout(ctx, 2*time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "cherry-pick", commit)
	return classifyCherryPick(out, err)
}

func (d *ExecDriver) CherryPickContinue(ctx context.Context, dir string) CherryPickResult {
	ctx, cancel := withTimeout(ctx, 2*time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "cherry-pick", "--continue")
	return classifyCherryPick(out, err)
}

func (d *ExecDriver) CherryPickSkip(ctx context.Context, dir string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "cherry-pick", "--skip")
	if err != nil {
		return fmt.Errorf("cherry-pick --skip failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) CherryPickAbort(ctx context.Context, dir string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "cherry-pick", "--abort")
	if err != nil {
		return fmt.Errorf("cherry-pick --abort failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) ConflictedPaths(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("diff --diff-filter=U failed: %w: %s", err, out)
	}
	return splitLines(out), nil
}

func (d *ExecDriver) CheckoutOurs(ctx context.Context, dir, file string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "checkout", "--ours", file)
	if err != nil {
		return fmt.Errorf("checkout --ours %s failed: %w: %s", file, err, out)
	}
	return nil
}

func (d *ExecDriver) CheckoutTheirs(ctx context.Context, dir, file string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "checkout", "--theirs", file)
	if err != nil {
		return fmt.Errorf("checkout --theirs %s failed: %w: %s", file, err, out)
	}
	return nil
}

func (d *ExecDriver) MergeTool(ctx context.Context, dir, file string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "mergetool", "--no-prompt", file)
	if err != nil {
		return fmt.Errorf("mergetool %s failed: %w: %s", file, err, out)
	}
	return nil
}

func (d *ExecDriver) MergeFFOnly(ctx context.Context, dir, commit string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "merge", "--ff-only", commit)
	if err != nil {
		return fmt.Errorf("merge --ff-only failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) ResetHard(ctx context.Context, dir, commit string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "reset", "--hard", commit)
	if err != nil {
		return fmt.Errorf("reset --hard failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) Clean(ctx context.Context, dir string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "clean", "-fdx")
	if err != nil {
		return fmt.Errorf("clean -fdx failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) StashPush(ctx context.Context, dir, message string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "stash", "push", "-u", "-m", message)
	if err != nil {
		return fmt.Errorf("stash push failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) StashListLatest(ctx context.Context, dir string) (string, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "stash", "list", "-n", "1", "--format=%gd")
	if err != nil {
		return "", fmt.Errorf("stash list failed: %w: %s", err, out)
	}
	return strings.TrimSpace(out), nil
}

func (d *ExecDriver) StashApply(ctx context.Context, dir, ref string) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	args := []string{"stash", "apply"}
	if ref != "" {
		args = append(args, ref)
	}
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return fmt.Errorf("stash apply failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) StashDrop(ctx context.Context, dir, ref string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	args := []string{"stash", "drop"}
	if ref != "" {
		args = append(args, ref)
	}
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return fmt.Errorf("stash drop failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) Revert(ctx context.Context, dir, commit string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "revert", "--no-edit", commit)
	if err != nil {
		return fmt.Errorf("revert --no-edit failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) Clone(ctx context.Context, url, dir string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Minute)
	defer cancel()
	out, err := d.run(ctx, "", "clone", url, dir)
	if err != nil {
		return fmt.Errorf("clone failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) RepoExists(dir string) bool {
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	ctx, cancel := withTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := d.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (d *ExecDriver) ConfigSet(ctx context.Context, dir, key, value string) error {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := d.run(ctx, dir, "config", key, value)
	if err != nil {
		return fmt.Errorf("config %s failed: %w: %s", key, err, out)
	}
	return nil
}

func (d *ExecDriver) Fetch(ctx context.Context, dir, remote, ref string) error {
	ctx, cancel := withTimeout(ctx, 5*time.Minute)
	defer cancel()
	args := []string{"fetch", remote}
	if ref != "" {
		args = append(args, ref)
	}
	out, err := d.run(ctx, dir, args...)
	if err != nil {
		return fmt.Errorf("fetch failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) Push(ctx context.Context, dir, remote, ref string) error {
	ctx, cancel := withTimeout(ctx, 2*time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "push", remote, ref)
	if err != nil {
		return fmt.Errorf("push failed: %w: %s", err, out)
	}
	return nil
}

func (d *ExecDriver) CheckoutBranch(ctx context.Context, dir, branch string) error {
	ctx, cancel := withTimeout(ctx, time.Minute)
	defer cancel()
	out, err := d.run(ctx, dir, "checkout", branch)
	if err != nil {
		return fmt.Errorf("checkout %s failed: %w: %s", branch, err, out)
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

var _ Driver = (*ExecDriver)(nil)
