// Package tui renders a live dashboard over a running Coordinator: task
// status counts, worker/merge/validation event totals, and an uptime
// clock, in the teacher's bubbletea/lipgloss style (spec.md is silent on
// presentation; SPEC_FULL.md §11 keeps the teacher's TUI stack for it).
//
// The dashboard runs as its own process (the tui subcommand), separate
// from the coordinator it watches, so it reads state off disk — the
// events log and the control file — rather than sharing a live Bus.
package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ralph/internal/events"
	"ralph/internal/tracker"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF")).
			Background(lipgloss.Color("#6124DF")).
			Padding(0, 1).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true).
			MarginTop(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666")).
			MarginTop(1)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)
)

type tickMsg time.Time

// Model polls a Tracker, the events log, and the control file on an
// interval. Pressing "p" toggles the control file the same way `ralph
// pause`/`ralph resume` do; it does not talk to the coordinator process
// directly.
type Model struct {
	tr           tracker.Tracker
	stateDir     string
	controlPath  string
	pollInterval time.Duration

	tasks   []tracker.Task
	counts  map[events.Type]int
	started time.Time
	paused  bool
	err     error
	quit    bool
}

// New builds a dashboard Model watching tr and stateDir's event log,
// polling every interval and writing pause/resume requests to controlPath.
func New(tr tracker.Tracker, stateDir, controlPath string, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{tr: tr, stateDir: stateDir, controlPath: controlPath, pollInterval: interval}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.pollInterval), m.refresh)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type refreshMsg struct {
	tasks   []tracker.Task
	counts  map[events.Type]int
	started time.Time
	paused  bool
	err     error
}

func (m Model) refresh() tea.Msg {
	tasks, err := m.tr.ListTasks()

	log, logErr := events.ReadEventLog(m.stateDir)
	if err == nil {
		err = logErr
	}
	counts := make(map[events.Type]int, len(log))
	var started time.Time
	for _, ev := range log {
		counts[ev.Type]++
		if ev.Type == events.Started {
			started = ev.Timestamp
		}
	}

	paused := false
	if raw, readErr := os.ReadFile(m.controlPath); readErr == nil {
		paused = string(raw) == "paused"
	}

	return refreshMsg{tasks: tasks, counts: counts, started: started, paused: paused, err: err}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			writeControl(m.controlPath, m.paused)
			return m, nil
		}
	case tickMsg:
		return m, tea.Batch(tick(m.pollInterval), m.refresh)
	case refreshMsg:
		m.tasks = msg.tasks
		m.counts = msg.counts
		m.paused = msg.paused
		m.err = msg.err
		if !msg.started.IsZero() {
			m.started = msg.started
		}
	}
	return m, nil
}

// writeControl mirrors Coordinator.writeControlFile so the dashboard's
// pause key takes effect the same way the CLI's pause subcommand does.
func writeControl(path string, paused bool) {
	if path == "" {
		return
	}
	state := "running"
	if paused {
		state = "paused"
	}
	_ = os.WriteFile(path, []byte(state), 0o644)
}

// Run starts the dashboard as a full-screen bubbletea program and blocks
// until the user quits.
func Run(tr tracker.Tracker, stateDir, controlPath string, interval time.Duration) error {
	_, err := tea.NewProgram(New(tr, stateDir, controlPath, interval), tea.WithAltScreen()).Run()
	return err
}

func (m Model) View() string {
	if m.quit {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("ralph — parallel execution coordinator"))
	b.WriteString("\n")
	if !m.started.IsZero() {
		fmt.Fprintf(&b, "uptime: %s\n", time.Since(m.started).Round(time.Second))
	}
	if m.paused {
		b.WriteString(pausedStyle.Render("PAUSED") + "\n")
	}

	b.WriteString(sectionStyle.Render("Tasks"))
	b.WriteString("\n")
	statusCounts := map[tracker.Status]int{}
	for _, t := range m.tasks {
		statusCounts[t.Status]++
	}
	for _, s := range []tracker.Status{tracker.Open, tracker.InProgress, tracker.Blocked, tracker.PendingMain, tracker.Completed, tracker.Cancelled} {
		fmt.Fprintf(&b, "  %-14s %d\n", s, statusCounts[s])
	}

	b.WriteString(sectionStyle.Render("Events"))
	b.WriteString("\n")
	for _, et := range []events.Type{events.MergeSucceeded, events.MergeFailed, events.ValidationPassed, events.ValidationFailed, events.MainSyncSucceeded, events.MainSyncFailed, events.CreditExhausted} {
		fmt.Fprintf(&b, "  %-20s %d\n", et, m.counts[et])
	}

	if m.err != nil {
		fmt.Fprintf(&b, "\nerror: %v\n", m.err)
	}
	b.WriteString(helpStyle.Render("p pause/resume · q quit"))
	return b.String()
}
