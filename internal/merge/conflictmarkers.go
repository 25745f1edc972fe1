package merge

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	conflictStart  = "<<<<<<<"
	conflictMiddle = "======="
	conflictEnd    = ">>>>>>>"
)

// resolveSimpleMarker implements spec.md §4.4.2 step 2's "simple marker"
// strategy: a file qualifies only if it has exactly one conflict region,
// and only if the "ours" and "theirs" regions are whitespace-equivalent
// (same content once all whitespace is collapsed) — in which case "theirs"
// is kept and the markers are stripped. Returns false (leaving the file
// untouched) for anything that doesn't match, including actual content
// conflicts and files with more than one conflict region.
func resolveSimpleMarker(workDir, relPath string) bool {
	full := filepath.Join(workDir, relPath)
	raw, err := os.ReadFile(full)
	if err != nil {
		return false
	}
	lines := strings.Split(string(raw), "\n")

	start, mid, end := -1, -1, -1
	regions := 0
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, conflictStart):
			if regions > 0 {
				return false // more than one region
			}
			start = i
		case strings.HasPrefix(line, conflictMiddle) && start != -1 && mid == -1:
			mid = i
		case strings.HasPrefix(line, conflictEnd) && start != -1 && mid != -1:
			end = i
			regions++
		}
	}
	if start == -1 || mid == -1 || end == -1 || regions != 1 {
		return false
	}

	ours := strings.Join(lines[start+1:mid], "\n")
	theirs := strings.Join(lines[mid+1:end], "\n")
	if collapseWhitespace(ours) != collapseWhitespace(theirs) {
		return false
	}

	var out []string
	out = append(out, lines[:start]...)
	out = append(out, lines[mid+1:end]...)
	out = append(out, lines[end+1:]...)
	if err := os.WriteFile(full, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return false
	}
	return true
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
