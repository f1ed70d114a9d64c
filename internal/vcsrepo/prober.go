package vcsrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

const mirrorRefspec = "+refs/*:refs/*"

// Probe classifies the managed path of d without modifying anything.
func (g *Git) Probe(ctx context.Context, d DesiredState) (CurrentState, error) {
	s, err := g.session(d)
	if err != nil {
		return CurrentState{}, err
	}
	return s.probe(ctx)
}

func (s *session) probe(ctx context.Context) (CurrentState, error) {
	c := CurrentState{Path: s.path, UID: -1, GID: -1}
	c.SafeDirectories = globalSafeDirectories()

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return c, &Error{Code: CodeCommandFailure, Path: s.path, Action: "probe", Err: err}
	}
	c.Exists = true
	c.UID, c.GID = fileOwnerIDs(info)

	if !info.IsDir() {
		return c, nil
	}

	metaDir, bare := locateMetadata(s.path)
	if metaDir == "" {
		entries, err := os.ReadDir(s.path)
		// An unreadable directory is treated as occupied.
		c.IsEmptyDir = err == nil && len(entries) == 0
		return c, nil
	}

	c.IsRepo = true
	c.MetadataDir = metaDir
	c.IsBare = bare

	repo, err := git.PlainOpen(s.path)
	if err != nil {
		s.probeFallback(ctx, &c)
		return c, nil
	}
	if err := readRepository(repo, &c); err != nil {
		s.probeFallback(ctx, &c)
		return c, nil
	}

	if lines, err := readExcludes(metadataExcludeFile(metaDir)); err == nil {
		c.Excludes = lines
	}
	if _, err := os.Stat(filepath.Join(metaDir, "shallow")); err == nil {
		c.IsShallow = true
	}

	if !c.IsBare {
		dirty, err := s.dirty(ctx)
		// When status cannot be read, assume modifications exist.
		c.HasUncommittedChanges = dirty || err != nil
	}
	return c, nil
}

// locateMetadata finds the git directory for path: path/.git for working
// copies, path itself for bare repositories.
func locateMetadata(path string) (string, bool) {
	dotGit := filepath.Join(path, ".git")
	if info, err := os.Stat(dotGit); err == nil {
		if info.IsDir() {
			return dotGit, false
		}
		if target := readGitFile(dotGit); target != "" {
			return target, false
		}
		return dotGit, false
	} else if errors.Is(err, fs.ErrPermission) {
		return dotGit, false
	}
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return "", false
		}
	}
	return path, true
}

// readGitFile follows a "gitdir: <path>" indirection file.
func readGitFile(file string) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir: ")
	if !ok {
		return ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file), target)
	}
	return filepath.Clean(target)
}

func readRepository(repo *git.Repository, c *CurrentState) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	c.IsBare = cfg.Core.IsBare
	c.HooksPath = cfg.Raw.Section("core").Option("hooksPath")

	c.Remotes = make(map[string]string, len(cfg.Remotes))
	for name, remote := range cfg.Remotes {
		if len(remote.URLs) > 0 {
			c.Remotes[name] = remote.URLs[0]
		}
		if remote.Mirror || hasMirrorRefspec(remote) {
			c.IsMirror = true
		}
	}

	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return err
	}
	if head.Type() == plumbing.SymbolicReference {
		c.HeadRef = head.Target().String()
	} else {
		c.HeadRef = HeadDetached
	}

	resolved, err := repo.Head()
	switch {
	case err == nil:
		c.HeadCommit = resolved.Hash().String()
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Unborn branch: nothing committed or fetched yet.
	default:
		return err
	}
	return nil
}

func hasMirrorRefspec(remote *gitconfig.RemoteConfig) bool {
	for _, spec := range remote.Fetch {
		if string(spec) == mirrorRefspec {
			return true
		}
	}
	return false
}

// probeFallback asks the git binary for the essentials when the metadata
// cannot be opened directly, e.g. because it belongs to the run-as user.
func (s *session) probeFallback(ctx context.Context, c *CurrentState) {
	c.Unreadable = true

	res, err := s.try(ctx, s.path, "rev-parse", "--is-bare-repository")
	if err != nil || !res.Success() {
		return
	}
	c.IsBare = res.Stdout == "true"

	if res, err := s.try(ctx, s.path, "symbolic-ref", "--quiet", "HEAD"); err == nil {
		if res.Success() {
			c.HeadRef = res.Stdout
		} else {
			c.HeadRef = HeadDetached
		}
	}
	if res, err := s.try(ctx, s.path, "rev-parse", "--verify", "--quiet", "HEAD"); err == nil && res.Success() {
		c.HeadCommit = strings.ToLower(res.Stdout)
	}
	if res, err := s.try(ctx, s.path, "config", "--local", "--get", "core.hooksPath"); err == nil && res.Success() {
		c.HooksPath = res.Stdout
	}

	res, err = s.try(ctx, s.path, "config", "--local", "--get-regexp", `^remote\..*\.(url|mirror|fetch)$`)
	if err != nil || !res.Success() {
		c.Unreadable = c.HeadRef == ""
		return
	}
	c.Remotes = parseRemoteConfig(res.Stdout, c)
	if !c.IsBare {
		dirty, err := s.dirty(ctx)
		c.HasUncommittedChanges = dirty || err != nil
	}
	c.Unreadable = false
}

func parseRemoteConfig(out string, c *CurrentState) map[string]string {
	remotes := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		rest := strings.TrimPrefix(key, "remote.")
		dot := strings.LastIndex(rest, ".")
		if dot < 0 {
			continue
		}
		name, field := rest[:dot], rest[dot+1:]
		switch field {
		case "url":
			if _, seen := remotes[name]; !seen {
				remotes[name] = value
			}
		case "mirror":
			if value == "true" {
				c.IsMirror = true
			}
		case "fetch":
			if value == mirrorRefspec {
				c.IsMirror = true
			}
		}
	}
	return remotes
}

// globalSafeDirectories reads safe.directory from the global git config.
func globalSafeDirectories() []string {
	cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope)
	if err != nil || cfg == nil || cfg.Raw == nil {
		return nil
	}
	values := cfg.Raw.Section("safe").Options.GetAll("directory")
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// Describe renders a one-line summary of the state.
func (c CurrentState) Describe() string {
	switch c.Shape() {
	case ShapeWorking, ShapeBare, ShapeMirror:
		head := c.HeadRef
		if name, ok := strings.CutPrefix(head, "refs/heads/"); ok {
			head = name
		}
		return fmt.Sprintf("%s on %s at %s", c.Shape(), head, shortSHA(c.HeadCommit))
	default:
		return c.Shape().String()
	}
}
