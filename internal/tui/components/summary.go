package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates counts for the closing summary.
type SummaryData struct {
	Total     int
	Unchanged int
	Changed   int
	Planned   int
	Failed    int
	Finished  bool
	Cancelled bool
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// Done is the number of resources with a final status.
func (d SummaryData) Done() int {
	return d.Unchanged + d.Changed + d.Planned + d.Failed
}

// View renders the summary, or nothing for an empty run.
func (s Summary) View() string {
	d := s.data
	if d.Total == 0 {
		return ""
	}

	counts := []string{fmt.Sprintf("%d unchanged", d.Unchanged), fmt.Sprintf("%d changed", d.Changed)}
	if d.Planned > 0 {
		counts = append(counts, fmt.Sprintf("%d would change", d.Planned))
	}
	counts = append(counts, fmt.Sprintf("%d failed", d.Failed))
	lines := []string{fmt.Sprintf("Resources: %d/%d done (%s)", d.Done(), d.Total, strings.Join(counts, ", "))}

	switch {
	case d.Cancelled:
		lines = append(lines, "Run cancelled")
	case !d.Finished:
	case d.Failed > 0:
		lines = append(lines, "Run finished with failures")
	case d.Done() < d.Total:
		lines = append(lines, "Run finished with pending resources")
	default:
		lines = append(lines, "Run finished successfully")
	}
	return strings.Join(lines, "\n")
}
