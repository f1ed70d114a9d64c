package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/tui/components"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

// Update handles bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case ResourceStartMsg:
		m.ensure(msg.Path)
		e := m.entries[msg.Path]
		if !e.Status.Done() {
			e.Status = components.StatusRunning
			m.entries[msg.Path] = e
		}
		return m, nil
	case ResourceDoneMsg:
		if msg.Path == "" {
			return m, nil
		}
		m.ensure(msg.Path)
		previous := m.entries[msg.Path]
		next := entryFor(msg, m.dryRun)
		m.entries[msg.Path] = next
		if !previous.Status.Done() {
			m.completed++
		}
		if previous.Status == components.StatusFailed {
			m.failed--
		}
		if next.Status == components.StatusFailed {
			m.failed++
		}
		m.markFinishedIfComplete()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}
	return m, nil
}

func entryFor(msg ResourceDoneMsg, dryRun bool) components.Entry {
	e := components.Entry{
		Path:     msg.Path,
		Notices:  msg.Result.Notices,
		Duration: msg.Result.Elapsed,
	}
	switch {
	case msg.Err != nil:
		e.Status = components.StatusFailed
		e.Detail = failureDetail(msg.Err)
	case !msg.Result.Changed:
		e.Status = components.StatusUnchanged
	case dryRun || msg.Result.DryRun:
		e.Status = components.StatusPlanned
		e.Detail = actionSummary(msg.Result.Actions)
	default:
		e.Status = components.StatusChanged
		e.Detail = actionSummary(msg.Result.Actions)
	}
	return e
}

func failureDetail(err error) string {
	if code := vcsrepo.CodeOf(err); code != "" {
		return fmt.Sprintf("[%s] %v", code, err)
	}
	return err.Error()
}

func actionSummary(actions []vcsrepo.Action) string {
	kinds := make([]string, 0, len(actions))
	for _, a := range actions {
		kinds = append(kinds, string(a.Kind()))
	}
	return strings.Join(kinds, ", ")
}
