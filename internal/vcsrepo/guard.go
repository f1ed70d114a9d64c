package vcsrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// scrubbedEnv are inherited variables that would redirect git away from the
// managed path. They are removed from every git process.
var scrubbedEnv = []string{
	"GIT_DIR",
	"GIT_WORK_TREE",
	"GIT_INDEX_FILE",
	"GIT_OBJECT_DIRECTORY",
	"GIT_ALTERNATE_OBJECT_DIRECTORIES",
	"GIT_COMMON_DIR",
	"GIT_NAMESPACE",
}

// gitEnv computes the per-process environment for one desired state.
// Nothing here touches the parent process environment.
func gitEnv(d DesiredState) (map[string]string, []string) {
	env := map[string]string{
		"GIT_TERMINAL_PROMPT": "0",
		"LC_ALL":              "C",
	}
	unset := append([]string(nil), scrubbedEnv...)

	if ssh := sshCommand(d.Identity, d.Trust); ssh != "" {
		env["GIT_SSH_COMMAND"] = ssh
		unset = append(unset, "GIT_SSH")
	}
	return env, unset
}

func sshCommand(identity string, trust bool) string {
	if identity == "" && !trust {
		return ""
	}
	parts := []string{"ssh"}
	if identity != "" {
		parts = append(parts, "-i", shellQuote(identity), "-o", "IdentitiesOnly=yes")
	}
	if trust {
		parts = append(parts, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
	}
	return strings.Join(parts, " ")
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// checkRemovable refuses to delete anything but a concrete managed path.
func checkRemovable(managed, target string) error {
	unsafe := func(reason string) error {
		return &Error{Code: CodeUnsafePath, Path: target, Action: string(ActionRemoveAll), Err: fmt.Errorf("refusing to remove: %s", reason)}
	}

	if !filepath.IsAbs(target) {
		return unsafe("path is not absolute")
	}
	cleaned := filepath.Clean(target)
	if cleaned != filepath.Clean(managed) {
		return unsafe(fmt.Sprintf("path is outside the managed path %s", managed))
	}
	if cleaned == filepath.VolumeName(cleaned)+string(filepath.Separator) {
		return unsafe("path is a filesystem root")
	}
	if home, err := os.UserHomeDir(); err == nil && cleaned == filepath.Clean(home) {
		return unsafe("path is the home directory")
	}
	return nil
}
