package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/tui/components"
)

// View renders the current state of the run.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("vcsrepo • %s", m.heading())))
	sections = append(sections, sectionStyle.Render("Progress"), components.NewProgress(m.total).View(m.completed))

	list := components.NewResourceList(m.order, m.entries)
	if entries := list.Entries(); len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Resources"), renderEntries(entries))
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     m.total,
		Unchanged: list.Count(components.StatusUnchanged),
		Changed:   list.Count(components.StatusChanged),
		Planned:   list.Count(components.StatusPlanned),
		Failed:    list.Count(components.StatusFailed),
		Finished:  m.finished,
		Cancelled: m.cancelled,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderEntries(entries []components.Entry) string {
	var lines []string
	for _, e := range entries {
		line := fmt.Sprintf(" %s %s", StatusIcon(e.Status), e.Path)
		if strings.TrimSpace(e.Detail) != "" {
			line = fmt.Sprintf("%s: %s", line, e.Detail)
		}
		if e.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, e.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
		for _, n := range e.Notices {
			lines = append(lines, noticeStyle.Render("     ! "+n))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) heading() string {
	title := strings.TrimSpace(m.title)
	if title == "" {
		title = "apply"
	}
	if m.dryRun {
		title += " (dry run)"
	}
	return title
}

// StatusIcon returns the glyph for a resource status.
func StatusIcon(status components.Status) string {
	switch status {
	case components.StatusChanged:
		return changedStyle.Render("✓")
	case components.StatusUnchanged:
		return unchangedStyle.Render("=")
	case components.StatusRunning:
		return runningStyle.Render("⏳")
	case components.StatusFailed:
		return failureStyle.Render("✗")
	case components.StatusPlanned:
		return plannedStyle.Render("↻")
	default:
		return pendingStyle.Render("…")
	}
}
