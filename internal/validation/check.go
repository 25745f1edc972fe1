package validation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// CheckResult is the outcome of running one check (spec.md §4.5.4).
type CheckResult struct {
	CheckID    string
	ExitCode   int
	DurationMs int64
	OutputPath string
	Passed     bool
	Flaky      bool
}

// RunCheck spawns cfg's command under its configured timeout (falling back
// to defaultTimeout when unset), capturing ANSI-stripped combined output to
// <logDir>/<checkId>.log, then reruns up to cfg.MaxReruns (or
// defaultMaxReruns when cfg.MaxReruns is zero and RetryOnFailure is set) on
// failure.
func RunCheck(ctx context.Context, cfg CheckConfig, workDir, logDir string, defaultTimeout time.Duration, defaultMaxReruns int) (CheckResult, error) {
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	maxReruns := defaultMaxReruns
	if cfg.MaxReruns > 0 {
		maxReruns = cfg.MaxReruns
	}

	outputPath := filepath.Join(logDir, cfg.ID+".log")
	result, err := runOnce(ctx, cfg, workDir, outputPath, timeout)
	if err != nil {
		return result, err
	}
	if result.Passed || !cfg.RetryOnFailure {
		return result, nil
	}

	for attempt := 1; attempt <= maxReruns; attempt++ {
		rerunPath := filepath.Join(logDir, fmt.Sprintf("%s-rerun-%d.log", cfg.ID, attempt))
		rerun, err := runOnce(ctx, cfg, workDir, rerunPath, timeout)
		if err != nil {
			return rerun, err
		}
		if rerun.Passed {
			rerun.Flaky = true
			return rerun, nil
		}
	}
	return result, nil
}

func runOnce(ctx context.Context, cfg CheckConfig, workDir, outputPath string, timeout time.Duration) (CheckResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var combined bytes.Buffer
	if len(cfg.Command) == 0 {
		return CheckResult{}, fmt.Errorf("check %s has no command configured", cfg.ID)
	}
	cmd := exec.CommandContext(runCtx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return CheckResult{}, fmt.Errorf("create log dir: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(ansi.Strip(combined.String())), 0o644); err != nil {
		return CheckResult{}, fmt.Errorf("write check log: %w", err)
	}

	exitCode := 0
	passed := true
	if runErr != nil {
		passed = false
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return CheckResult{
		CheckID:    cfg.ID,
		ExitCode:   exitCode,
		DurationMs: duration,
		OutputPath: outputPath,
		Passed:     passed,
	}, nil
}
