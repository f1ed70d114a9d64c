package vcsrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitEnv(t *testing.T) {
	env, unset := gitEnv(DesiredState{})
	assert.Equal(t, map[string]string{"GIT_TERMINAL_PROMPT": "0", "LC_ALL": "C"}, env)
	assert.Subset(t, unset, []string{"GIT_DIR", "GIT_WORK_TREE", "GIT_INDEX_FILE"})
	assert.NotContains(t, unset, "GIT_SSH")

	env, unset = gitEnv(DesiredState{Identity: "/keys/deploy key", Trust: true})
	assert.Equal(t,
		"ssh -i '/keys/deploy key' -o IdentitiesOnly=yes -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",
		env["GIT_SSH_COMMAND"])
	assert.Contains(t, unset, "GIT_SSH")
}

func TestSSHCommand(t *testing.T) {
	assert.Empty(t, sshCommand("", false))
	assert.Equal(t, "ssh -i '/k' -o IdentitiesOnly=yes", sshCommand("/k", false))
	assert.Equal(t, "ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null", sshCommand("", true))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestCheckRemovable(t *testing.T) {
	managed := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, checkRemovable(managed, managed))
	require.NoError(t, checkRemovable(managed+"/", managed+"/./"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for name, tc := range map[string]struct{ managed, target string }{
		"relative":      {"repo", "repo"},
		"other path":    {managed, filepath.Dir(managed)},
		"root":          {"/", "/"},
		"home":          {home, home},
		"escapes above": {managed, managed + "/.."},
	} {
		t.Run(name, func(t *testing.T) {
			err := checkRemovable(tc.managed, tc.target)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafePath)
		})
	}
}
