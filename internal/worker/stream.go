package worker

import "github.com/charmbracelet/x/ansi"

// stripANSI removes escape sequences from agent output before it reaches
// the Event Bus or the per-task log file (spec.md §4.2.1: "streamed output
// is stripped of ANSI sequences"). charmbracelet/x/ansi is already pulled
// in transitively for the TUI; promoting it here avoids a second
// hand-rolled regexp doing the same job.
func stripANSI(s string) string {
	return ansi.Strip(s)
}
