// Package agent defines the coordinator's boundary onto the external
// code-generation agent (spec.md §1 "Agent" — executes a prompt inside a
// workspace, treated as an opaque subprocess; prompt composition and agent
// protocol are explicit Non-goals).
package agent

import (
	"context"
	"time"
)

// Result is the outcome of one executeTask call.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	Completed  bool
	DurationMs int64
}

// Agent executes a single prompt against a workspace and returns its raw
// output. Implementations own the process boundary (local subprocess,
// containerized, or otherwise) — the coordinator never parses agent output
// beyond this boundary.
type Agent interface {
	ExecuteTask(ctx context.Context, prompt, workspacePath string) (Result, error)
	Close() error
}

// elapsedMs lets ExecuteTask implementations measure duration without a
// direct time.Now dependency scattered through the package.
func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
