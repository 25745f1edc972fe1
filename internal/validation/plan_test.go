package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		CheckOrder: []string{"sanity", "unit", "lint"},
		Checks: map[string]CheckConfig{
			"sanity": {ID: "sanity", Command: []string{"true"}},
			"unit":   {ID: "unit", Command: []string{"true"}, Required: true},
			"lint":   {ID: "lint", Command: []string{"true"}},
		},
		Rules: map[string][]string{
			"internal/": {"lint"},
		},
	}
}

func TestBuildPlanAlwaysIncludesRequiredAndSanity(t *testing.T) {
	p := BuildPlan(baseConfig(), "P1", []string{"T1"}, []string{"c1"}, []string{"README.md"}, nil)
	ids := checkIDs(p.Checks)
	require.Contains(t, ids, "unit")
	require.Contains(t, ids, "sanity")
	require.NotContains(t, ids, "lint")
}

func TestBuildPlanUnionsRuleMatchedChecks(t *testing.T) {
	p := BuildPlan(baseConfig(), "P1", []string{"T1"}, []string{"c1"}, []string{"internal/foo.go"}, nil)
	ids := checkIDs(p.Checks)
	require.Contains(t, ids, "lint")
	require.Contains(t, ids, "unit")
}

func TestBuildPlanFallsBackToAllChecksWhenNothingMatches(t *testing.T) {
	cfg := Config{
		CheckOrder: []string{"a", "b"},
		Checks: map[string]CheckConfig{
			"a": {ID: "a", Command: []string{"true"}},
			"b": {ID: "b", Command: []string{"true"}},
		},
	}
	p := BuildPlan(cfg, "P1", []string{"T1"}, []string{"c1"}, []string{"unmatched.go"}, nil)
	ids := checkIDs(p.Checks)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}
