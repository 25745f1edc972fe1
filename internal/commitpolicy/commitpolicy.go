// Package commitpolicy implements the commit message contract shared by
// the Worker Pool's commit collection (spec.md §4.2.2) and the Merge
// Queue's acceptance check (spec.md §3 invariant I2): subject
// "<taskId>: <title>" and/or trailer "Ralph-Task: <taskId>".
package commitpolicy

import (
	"fmt"
	"strings"
)

const trailerKey = "Ralph-Task"

const maxTitleLen = 60

// Subject renders the commit subject line, truncating title to 60 chars
// with a trailing "…" when truncated (spec.md §6, bit-exact).
func Subject(taskID, title string) string {
	t := title
	if len([]rune(t)) > maxTitleLen {
		runes := []rune(t)
		t = string(runes[:maxTitleLen]) + "…"
	}
	return fmt.Sprintf("%s: %s", taskID, t)
}

// Trailer renders the "Ralph-Task: <taskId>" trailer line.
func Trailer(taskID string) string {
	return fmt.Sprintf("%s: %s", trailerKey, taskID)
}

// HasSubjectPrefix reports whether subject starts with "<taskId>:".
func HasSubjectPrefix(subject, taskID string) bool {
	return strings.HasPrefix(subject, taskID+":")
}

// HasTrailer reports whether body contains the "Ralph-Task: <taskId>"
// trailer line.
func HasTrailer(body, taskID string) bool {
	want := Trailer(taskID)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

// ContainsTaskID reports whether the subject merely contains the task id
// anywhere — the lenient, warned-but-tolerated acceptance path
// (spec.md §9 "Open questions").
func ContainsTaskID(subject, taskID string) bool {
	return strings.Contains(subject, taskID)
}

// Accepts implements spec.md §3 invariant I2 / §8 P5: a commit is accepted
// if its subject has the task-id prefix OR its message contains the
// trailer. ContainsTaskID alone is accepted too, but only with a warning —
// callers should log when Strict is false and the prefix/trailer test
// failed.
func Accepts(subject, body, taskID string) (accepted bool, strict bool) {
	if HasSubjectPrefix(subject, taskID) || HasTrailer(body, taskID) {
		return true, true
	}
	if ContainsTaskID(subject, taskID) {
		return true, false
	}
	return false, false
}
