package vcsrepo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listing() RefListing {
	return RefListing{
		DefaultBranch: "main",
		Branches: map[string]string{
			"main":    shaMain,
			"next":    shaNext,
			"release": shaTag,
		},
		Tags: map[string]string{
			"v1.0.0":  shaTag,
			"release": shaNext,
		},
	}
}

func TestResolveRevision(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  Resolved
	}{
		{"unset selects default branch", "", branch("main", shaMain, true)},
		{"branch", "next", branch("next", shaNext, false)},
		{"default branch by name", "main", branch("main", shaMain, true)},
		{"tag", "v1.0.0", tag("v1.0.0", shaTag)},
		{"branch wins over tag", "release", branch("release", shaTag, false)},
		{"qualified tag", "refs/tags/release", tag("release", shaNext)},
		{"qualified branch", "refs/heads/release", branch("release", shaTag, false)},
		{"full commit", strings.ToUpper(shaNext), Resolved{Commit: shaNext, Kind: KindSha}},
		{"sha256 commit", strings.Repeat("d", 64), Resolved{Commit: strings.Repeat("d", 64), Kind: KindSha}},
		{"abbreviated tip", "bbbb", Resolved{Commit: shaNext, Kind: KindSha}},
		{"surrounding whitespace", "  next\n", branch("next", shaNext, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRevision(context.Background(), listing(), tt.token, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRevision_NotFound(t *testing.T) {
	refs := listing()
	refs.Branches["ambiguous-1"] = "abcd" + strings.Repeat("1", 36)
	refs.Branches["ambiguous-2"] = "abcd" + strings.Repeat("2", 36)

	for _, token := range []string{
		"missing",
		"refs/heads/v1.0.0",
		"refs/tags/next",
		"abcd",
		"abc",
	} {
		t.Run(token, func(t *testing.T) {
			_, err := ResolveRevision(context.Background(), refs, token, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRevisionNotFound)
			assert.False(t, Retryable(err))
		})
	}
}

func TestResolveRevision_DefersUnknownPrefix(t *testing.T) {
	miss := func(context.Context, string) (string, bool, error) { return "", false, nil }

	for name, lookup := range map[string]CommitLookup{"no local store": nil, "local miss": miss} {
		t.Run(name, func(t *testing.T) {
			got, err := ResolveRevision(context.Background(), listing(), "EEEE5", lookup)
			require.NoError(t, err)
			assert.Equal(t, Resolved{Commit: "eeee5", Kind: KindSha, Abbrev: true}, got)
			assert.True(t, got.Matches("eeee5"+strings.Repeat("0", 35)))
			assert.False(t, got.Matches(shaMain))
			assert.False(t, got.Matches(""))
		})
	}
}

func TestResolveRevision_LocalLookup(t *testing.T) {
	local := strings.Repeat("e", 40)
	var asked []string
	lookup := func(_ context.Context, prefix string) (string, bool, error) {
		asked = append(asked, prefix)
		if strings.HasPrefix(local, prefix) {
			return local, true, nil
		}
		return "", false, nil
	}

	got, err := ResolveRevision(context.Background(), listing(), "EEEEEEE", lookup)
	require.NoError(t, err)
	assert.Equal(t, Resolved{Commit: local, Kind: KindSha}, got)
	assert.Equal(t, []string{"eeeeeee"}, asked)

	got, err = ResolveRevision(context.Background(), listing(), "aaaa", lookup)
	require.NoError(t, err)
	assert.Equal(t, shaMain, got.Commit, "tips are searched when the local store misses")

	boom := errors.New("boom")
	_, err = ResolveRevision(context.Background(), listing(), "ffff", func(context.Context, string) (string, bool, error) {
		return "", false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestResolveRevision_EmptyRemote(t *testing.T) {
	got, err := ResolveRevision(context.Background(), RefListing{}, "", nil)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = ResolveRevision(context.Background(), RefListing{}, "main", nil)
	assert.ErrorIs(t, err, ErrRevisionNotFound)
}

func TestResolveRevision_NoDefaultBranch(t *testing.T) {
	refs := listing()
	refs.DefaultBranch = ""
	_, err := ResolveRevision(context.Background(), refs, "", nil)
	assert.ErrorIs(t, err, ErrRevisionNotFound)
}

func TestCurrentRevision(t *testing.T) {
	c := workingCopy(shaMain)
	assert.Equal(t, branch("main", shaMain, false), currentRevision(c))

	c.HeadRef = HeadDetached
	assert.Equal(t, Resolved{Commit: shaMain, Kind: KindDetached}, currentRevision(c))
}
