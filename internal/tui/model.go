package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/tui/components"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

// ResourceStartMsg indicates a path has started reconciling.
type ResourceStartMsg struct {
	Path string
}

// ResourceDoneMsg reports a finished reconciliation.
type ResourceDoneMsg struct {
	Path   string
	Result vcsrepo.Result
	Err    error
}

type tickMsg struct{}

// Model is the bubbletea state for an apply run.
type Model struct {
	title     string
	dryRun    bool
	entries   map[string]components.Entry
	order     []string
	total     int
	completed int
	failed    int
	finished  bool
	cancelled bool
}

// NewModel tracks paths in the order given.
func NewModel(title string, paths []string, dryRun bool) Model {
	m := Model{
		title:   title,
		dryRun:  dryRun,
		entries: make(map[string]components.Entry, len(paths)),
		order:   make([]string, 0, len(paths)),
	}
	for _, path := range paths {
		m.ensure(path)
	}
	return m
}

// Init starts the program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// Total is the number of tracked resources.
func (m Model) Total() int { return m.total }

// Completed is the number of resources with a final status.
func (m Model) Completed() int { return m.completed }

// Failed is the number of failed resources.
func (m Model) Failed() int { return m.failed }

// IsFinished reports whether the run is over.
func (m Model) IsFinished() bool { return m.finished }

// Cancelled reports whether the user interrupted the run.
func (m Model) Cancelled() bool { return m.cancelled }

// Entry returns the row for path.
func (m Model) Entry(path string) (components.Entry, bool) {
	e, ok := m.entries[path]
	return e, ok
}

func (m *Model) ensure(path string) {
	if path == "" {
		return
	}
	if _, ok := m.entries[path]; ok {
		return
	}
	m.entries[path] = components.Entry{Path: path, Status: components.StatusPending}
	m.order = append(m.order, path)
	m.total++
}

func (m *Model) markFinishedIfComplete() {
	if m.total > 0 && m.completed >= m.total {
		m.finished = true
	}
}
