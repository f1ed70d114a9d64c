package components

import "time"

// Status is the display state of one resource.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
	StatusPlanned   Status = "planned"
	StatusFailed    Status = "failed"
)

// Done reports whether the resource has finished reconciling.
func (s Status) Done() bool {
	switch s {
	case StatusUnchanged, StatusChanged, StatusPlanned, StatusFailed:
		return true
	}
	return false
}

// Entry is one row of the resource list.
type Entry struct {
	Path     string
	Status   Status
	Detail   string
	Notices  []string
	Duration time.Duration
}

// ResourceList keeps entries in manifest order.
type ResourceList struct {
	entries []Entry
}

// NewResourceList builds a list from paths in order and their entries.
func NewResourceList(order []string, entries map[string]Entry) ResourceList {
	out := make([]Entry, 0, len(order))
	for _, path := range order {
		e := entries[path]
		e.Path = path
		out = append(out, e)
	}
	return ResourceList{entries: out}
}

// Entries returns a copy of the ordered entries.
func (l ResourceList) Entries() []Entry {
	clone := make([]Entry, len(l.entries))
	copy(clone, l.entries)
	return clone
}

// Count returns how many entries have status s.
func (l ResourceList) Count(s Status) int {
	n := 0
	for _, e := range l.entries {
		if e.Status == s {
			n++
		}
	}
	return n
}
