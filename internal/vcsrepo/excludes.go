package vcsrepo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const excludeFileMode os.FileMode = 0o644

// excludeFile is the ignore-list path for a repository at path.
func excludeFile(path string, bare bool) string {
	if bare {
		return filepath.Join(path, "info", "exclude")
	}
	return filepath.Join(path, ".git", "info", "exclude")
}

// metadataExcludeFile is the ignore list read for a git directory. Linked
// worktrees share the one in their common directory.
func metadataExcludeFile(metaDir string) string {
	dir := metaDir
	if data, err := os.ReadFile(filepath.Join(metaDir, "commondir")); err == nil {
		if common := strings.TrimSpace(string(data)); common != "" {
			if !filepath.IsAbs(common) {
				common = filepath.Join(metaDir, common)
			}
			dir = filepath.Clean(common)
		}
	}
	return filepath.Join(dir, "info", "exclude")
}

type excludeState struct {
	exists   bool
	perm     os.FileMode
	lines    []string
	trailing bool
}

func readExcludeState(file string) (excludeState, error) {
	info, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return excludeState{perm: excludeFileMode}, nil
		}
		return excludeState{}, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return excludeState{}, err
	}
	lines, trailing := splitLines(string(data))
	return excludeState{exists: true, perm: info.Mode().Perm(), lines: lines, trailing: trailing}, nil
}

// readExcludes returns the lines of an ignore-list file, nil if missing.
func readExcludes(file string) ([]string, error) {
	state, err := readExcludeState(file)
	if err != nil {
		return nil, err
	}
	return state.lines, nil
}

// missingExcludes returns the wanted lines not yet present, in wanted
// order and without duplicates. Comparison ignores trailing whitespace.
func missingExcludes(current, wanted []string) []string {
	have := make(map[string]struct{}, len(current))
	for _, line := range current {
		have[strings.TrimRight(line, " \t\r")] = struct{}{}
	}
	var missing []string
	for _, line := range wanted {
		key := strings.TrimRight(line, " \t\r")
		if key == "" {
			continue
		}
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = struct{}{}
		missing = append(missing, key)
	}
	return missing
}

// excludesDiff renders the change appending add to current as a unified diff.
func excludesDiff(current, add []string) string {
	if len(add) == 0 {
		return ""
	}
	modified := append(append([]string(nil), current...), add...)
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(joinLines(current, true)),
		B:        difflib.SplitLines(joinLines(modified, true)),
		FromFile: "info/exclude",
		ToFile:   "info/exclude",
		Context:  2,
	}
	diff, _ := difflib.GetUnifiedDiffString(ud)
	return strings.TrimSpace(diff)
}

// appendExcludes adds the missing wanted lines to file, creating it when
// absent. Existing content and formatting are kept; it reports whether the
// file changed.
func appendExcludes(file string, wanted []string) (bool, error) {
	state, err := readExcludeState(file)
	if err != nil {
		return false, err
	}
	add := missingExcludes(state.lines, wanted)
	if len(add) == 0 {
		return false, nil
	}
	lines := append(state.lines, add...)
	return true, writeFileAtomic(file, []byte(joinLines(lines, true)), state.perm)
}

func splitLines(content string) ([]string, bool) {
	if content == "" {
		return []string{}, false
	}
	trailing := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")
	if trimmed == "" {
		return []string{""}, trailing
	}
	return strings.Split(trimmed, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	if len(lines) == 0 {
		return ""
	}
	joined := strings.Join(lines, "\n")
	if trailing {
		return joined + "\n"
	}
	return joined
}

// writeFileAtomic replaces path via a temp file and rename so readers never
// observe a partial ignore list.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".exclude-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
