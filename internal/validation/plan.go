// Package validation implements the Validation Engine (spec.md §4.5): plan
// construction from configured checks and path rules, queued runs against
// a dedicated validator workspace, check execution with rerun/flaky
// tracking, a fix-agent escalation path, and fallback strategies.
package validation

import (
	"fmt"
	"strings"
	"time"

	"ralph/internal/tracker"
)

// CheckConfig describes one configured check (spec.md §6 `checks` map).
type CheckConfig struct {
	ID             string
	Command        []string
	Required       bool
	TimeoutMs      int
	RetryOnFailure bool
	MaxReruns      int
}

// Config is the subset of coordinator configuration the Validation Engine
// needs (spec.md §6 qualityGates.*).
type Config struct {
	Enabled          bool
	ValidatorDir     string
	CleanBeforeRun   bool
	Mode             QueueMode
	BatchWindowMs    int
	MaxFixAttempts   int
	MaxTestReruns    int
	Checks           map[string]CheckConfig // insertion order tracked separately
	CheckOrder       []string
	Rules            map[string][]string // path prefix -> check ids
	FallbackStrategy FallbackStrategy
}

// QueueMode is one of the three draining strategies (spec.md §4.5.2).
type QueueMode string

const (
	ModePerMerge    QueueMode = "per-merge"
	ModeCoalesce    QueueMode = "coalesce"
	ModeBatchWindow QueueMode = "batch-window"
)

// FallbackStrategy is applied when a plan's required checks fail and the
// fix-agent (if enabled) could not heal it (spec.md §4.5.7).
type FallbackStrategy string

const (
	FallbackRevert     FallbackStrategy = "revert"
	FallbackQuarantine FallbackStrategy = "quarantine"
	FallbackPause      FallbackStrategy = "pause"
)

// Plan is a ValidationPlan (spec.md §3): immutable after construction.
type Plan struct {
	PlanID    string
	TaskIDs   []string
	Commits   []string
	Checks    []CheckConfig
	Impact    []tracker.ImpactEntry
	Rationale string
	CreatedAt time.Time
}

// BuildPlan implements spec.md §4.5.1: select the candidate check set,
// always including required checks and "sanity" if configured, then union
// in every rule-matched check for each changed path, falling back to the
// full check set if nothing matched and no required check was selected.
func BuildPlan(cfg Config, planID string, taskIDs, commits, changedFiles []string, impact []tracker.ImpactEntry) Plan {
	selected := make(map[string]bool)
	var order []string
	add := func(id string) {
		if _, ok := cfg.Checks[id]; !ok {
			return
		}
		if !selected[id] {
			selected[id] = true
			order = append(order, id)
		}
	}

	for _, id := range cfg.CheckOrder {
		if cfg.Checks[id].Required {
			add(id)
		}
	}
	hadRequired := len(order) > 0
	add("sanity")

	var contributingPaths []string
	for _, path := range changedFiles {
		for prefix, ids := range cfg.Rules {
			if strings.HasPrefix(path, prefix) {
				for _, id := range ids {
					add(id)
				}
				contributingPaths = append(contributingPaths, path)
			}
		}
	}

	if len(order) == 0 && !hadRequired {
		for _, id := range cfg.CheckOrder {
			add(id)
		}
	}

	checks := make([]CheckConfig, 0, len(order))
	for _, id := range order {
		checks = append(checks, cfg.Checks[id])
	}

	rationale := fmt.Sprintf("selected checks [%s] via paths [%s]", strings.Join(order, ", "), strings.Join(contributingPaths, ", "))

	return Plan{
		PlanID:    planID,
		TaskIDs:   taskIDs,
		Commits:   commits,
		Checks:    checks,
		Impact:    impact,
		Rationale: rationale,
		CreatedAt: time.Now(),
	}
}
