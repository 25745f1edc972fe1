package commitpolicy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubjectTruncatesAt60Runes(t *testing.T) {
	long := strings.Repeat("x", 80)
	subj := Subject("T1", long)
	require.True(t, strings.HasSuffix(subj, "…"))
	require.Equal(t, "T1: "+strings.Repeat("x", 60)+"…", subj)
}

func TestSubjectNoTruncationUnderLimit(t *testing.T) {
	subj := Subject("T1", "short title")
	require.Equal(t, "T1: short title", subj)
}

func TestAcceptsStrictOnPrefixOrTrailer(t *testing.T) {
	ok, strict := Accepts("T1: fix bug", "", "T1")
	require.True(t, ok)
	require.True(t, strict)

	ok, strict = Accepts("unrelated subject", "body\nRalph-Task: T1\n", "T1")
	require.True(t, ok)
	require.True(t, strict)
}

func TestAcceptsLenientContainsOnly(t *testing.T) {
	ok, strict := Accepts("fix something for T1 today", "", "T1")
	require.True(t, ok)
	require.False(t, strict)
}

func TestRejectsUnrelatedCommit(t *testing.T) {
	ok, _ := Accepts("unrelated change", "no trailer here", "T1")
	require.False(t, ok)
}
