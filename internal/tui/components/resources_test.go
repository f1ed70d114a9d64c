package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceListKeepsOrder(t *testing.T) {
	t.Parallel()

	list := NewResourceList([]string{"/srv/b", "/srv/a", "/srv/c"}, map[string]Entry{
		"/srv/a": {Status: StatusChanged},
		"/srv/b": {Status: StatusFailed, Detail: "boom"},
	})

	entries := list.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "/srv/b", entries[0].Path)
	require.Equal(t, "boom", entries[0].Detail)
	require.Equal(t, "/srv/a", entries[1].Path)
	require.Equal(t, Status(""), entries[2].Status)

	entries[0].Path = "mutated"
	require.Equal(t, "/srv/b", list.Entries()[0].Path)

	require.Equal(t, 1, list.Count(StatusFailed))
	require.Equal(t, 0, list.Count(StatusPlanned))
}

func TestStatusDone(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusUnchanged, StatusChanged, StatusPlanned, StatusFailed} {
		require.True(t, s.Done(), s)
	}
	for _, s := range []Status{StatusPending, StatusRunning, ""} {
		require.False(t, s.Done(), s)
	}
}
