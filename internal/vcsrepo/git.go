package vcsrepo

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/gitexec"
)

// DefaultNetworkTimeout bounds clone, fetch and ls-remote when no timeout
// is configured.
const DefaultNetworkTimeout = 10 * time.Minute

// Git invokes the git binary through a gitexec.Runner.
type Git struct {
	Binary string
	Runner gitexec.Runner
	// Timeout bounds network-facing invocations. Zero uses
	// DefaultNetworkTimeout; negative disables the bound.
	Timeout time.Duration
	// LookupCredential resolves run-as identities. Nil uses
	// gitexec.LookupCredential.
	LookupCredential func(user, group string) (*gitexec.Credential, error)
}

// NewGit returns a Git using the os/exec runner.
func NewGit(binary string, timeout time.Duration) *Git {
	if binary == "" {
		binary = "git"
	}
	return &Git{Binary: binary, Runner: &gitexec.ExecRunner{}, Timeout: timeout}
}

// session binds the driver to one desired state: its path, credentials and
// run-as identity. Every invocation made during a reconciliation goes
// through the same session.
type session struct {
	git    *Git
	runner gitexec.Runner
	path   string
	// cred is the run-as identity, nil when git runs as this process.
	cred   *gitexec.Credential
	env    map[string]string
	unset  []string
	config []string
}

func (g *Git) session(d DesiredState) (*session, error) {
	runner := g.Runner
	var cred *gitexec.Credential
	if runAs := d.RunAs(); runAs != "" {
		lookup := g.LookupCredential
		if lookup == nil {
			lookup = gitexec.LookupCredential
		}
		var err error
		cred, err = lookup(runAs, d.Group)
		if err != nil {
			return nil, &Error{Code: CodeInvalidDesiredState, Path: d.Path, Err: err}
		}
		if imp, ok := runner.(gitexec.Impersonator); ok {
			runner = imp.WithCredential(cred)
		} else {
			cred = nil
		}
	}

	env, unset := gitEnv(d)
	s := &session{
		git:    g,
		runner: runner,
		path:   filepath.Clean(d.Path),
		cred:   cred,
		env:    env,
		unset:  unset,
	}
	if d.SafeDirectory || d.RunAs() != "" {
		s.config = []string{"-c", "safe.directory=" + s.path}
	}
	return s, nil
}

func (s *session) command(dir string, args ...string) gitexec.Command {
	binary := s.git.Binary
	if binary == "" {
		binary = "git"
	}
	argv := make([]string, 0, len(args)+len(s.config)+1)
	argv = append(argv, binary)
	argv = append(argv, s.config...)
	argv = append(argv, args...)
	return gitexec.Command{Args: argv, Dir: dir, Env: s.env, Unset: s.unset}
}

// exec runs git and returns the raw result; non-zero exits are not errors.
func (s *session) exec(ctx context.Context, network bool, dir string, args ...string) (gitexec.Command, gitexec.Result, error) {
	if network {
		timeout := s.git.Timeout
		if timeout == 0 {
			timeout = DefaultNetworkTimeout
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}
	cmd := s.command(dir, args...)
	res, err := s.runner.Run(ctx, cmd)
	return cmd, res, err
}

// run executes git and classifies any failure against the given action.
func (s *session) run(ctx context.Context, action ActionKind, network bool, dir string, args ...string) (string, error) {
	cmd, res, err := s.exec(ctx, network, dir, args...)
	if err != nil || !res.Success() {
		return "", classify(s.path, string(action), cmd, res, err)
	}
	return res.Stdout, nil
}

// try runs a query whose non-zero exit is an expected answer.
func (s *session) try(ctx context.Context, dir string, args ...string) (gitexec.Result, error) {
	cmd, res, err := s.exec(ctx, false, dir, args...)
	if err != nil {
		return res, classify(s.path, "probe", cmd, res, err)
	}
	return res, nil
}

func (s *session) clone(ctx context.Context, a Clone) error {
	args := []string{"clone", "--origin", a.Remote}
	if a.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(a.Depth))
	}
	if a.Branch != "" {
		args = append(args, "--branch", a.Branch)
	}
	args = append(args, "--", a.URL, a.Path)
	_, err := s.run(ctx, ActionClone, true, filepath.Dir(a.Path), args...)
	return err
}

func (s *session) initBare(ctx context.Context, path string) error {
	_, err := s.run(ctx, ActionInitBare, false, filepath.Dir(path), "init", "--bare", "--quiet", "--", path)
	return err
}

func (s *session) addRemote(ctx context.Context, a AddRemote) error {
	args := []string{"remote", "add"}
	if a.Mirror {
		args = append(args, "--mirror=fetch")
	}
	args = append(args, "--", a.Name, a.URL)
	if _, err := s.run(ctx, ActionAddRemote, false, s.path, args...); err != nil {
		return err
	}
	switch {
	case a.Mirror:
		return s.setConfig(ctx, ActionAddRemote, "remote."+a.Name+".mirror", "true")
	case a.Bare:
		return s.setConfig(ctx, ActionAddRemote, "remote."+a.Name+".fetch", "+refs/heads/*:refs/heads/*")
	}
	return nil
}

func (s *session) setRemoteURL(ctx context.Context, name, url string) error {
	_, err := s.run(ctx, ActionSetRemoteURL, false, s.path, "remote", "set-url", "--", name, url)
	return err
}

func (s *session) fetch(ctx context.Context, a Fetch) error {
	args := []string{"fetch", "--quiet"}
	if a.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(a.Depth))
	}
	if a.Prune {
		args = append(args, "--prune")
	}
	if a.Tags {
		args = append(args, "--tags")
	}
	args = append(args, "--", a.Remote)
	if a.Refspec != "" {
		args = append(args, a.Refspec)
	}
	_, err := s.run(ctx, ActionFetch, true, s.path, args...)
	return err
}

func (s *session) setHead(ctx context.Context, ref string) error {
	_, err := s.run(ctx, ActionSetHead, false, s.path, "symbolic-ref", "HEAD", ref)
	return err
}

func (s *session) hasCommit(ctx context.Context, commit string) (bool, error) {
	res, err := s.try(ctx, s.path, "cat-file", "-e", commit+"^{commit}")
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// revParse resolves an expression to a full commit id in the local object
// store; ok is false when it does not name a commit.
func (s *session) revParse(ctx context.Context, expr string) (string, bool, error) {
	res, err := s.try(ctx, s.path, "rev-parse", "--verify", "--quiet", expr+"^{commit}")
	if err != nil {
		return "", false, err
	}
	if !res.Success() || res.Stdout == "" {
		return "", false, nil
	}
	return strings.ToLower(res.Stdout), true, nil
}

func (s *session) checkout(ctx context.Context, a Checkout) error {
	commit := a.Target.Commit
	var found bool
	var err error
	if a.Target.Abbrev {
		// The fetch has run, so the prefix can be matched locally.
		commit, found, err = s.revParse(ctx, a.Target.Commit)
	} else {
		found, err = s.hasCommit(ctx, commit)
	}
	if err != nil {
		return err
	}
	if !found {
		return &Error{
			Code:   CodeRevisionNotFound,
			Path:   s.path,
			Action: string(ActionCheckout),
			Err:    fmt.Errorf("commit %s is not available after fetch", a.Target.Commit),
		}
	}

	args := []string{"checkout", "--quiet"}
	if a.Force {
		args = append(args, "--force")
	}
	if a.Target.Kind == KindBranch {
		args = append(args, "-B", a.Target.Name, commit)
	} else {
		args = append(args, "--detach", commit)
	}
	if _, err := s.run(ctx, ActionCheckout, false, s.path, args...); err != nil {
		return err
	}

	if a.Target.Kind == KindBranch && a.Remote != "" {
		upstream := a.Remote + "/" + a.Target.Name
		if _, ok, _ := s.revParse(ctx, "refs/remotes/"+upstream); ok {
			// Tracking is cosmetic; a failure here leaves the checkout valid.
			_, _ = s.try(ctx, s.path, "branch", "--quiet", "--set-upstream-to="+upstream, a.Target.Name)
		}
	}
	return nil
}

func (s *session) reset(ctx context.Context) error {
	_, err := s.run(ctx, ActionReset, false, s.path, "reset", "--hard", "--quiet")
	return err
}

func (s *session) clean(ctx context.Context) error {
	_, err := s.run(ctx, ActionClean, false, s.path, "clean", "-f", "-d", "--quiet")
	return err
}

func (s *session) updateSubmodules(ctx context.Context) error {
	_, err := s.run(ctx, ActionUpdateSubmodules, true, s.path, "submodule", "update", "--init", "--recursive", "--quiet")
	return err
}

func (s *session) setConfig(ctx context.Context, action ActionKind, key, value string) error {
	_, err := s.run(ctx, action, false, s.path, "config", "--local", key, value)
	return err
}

func (s *session) unsetConfig(ctx context.Context, action ActionKind, key string) error {
	cmd, res, err := s.exec(ctx, false, s.path, "config", "--local", "--unset-all", key)
	// Exit status 5 means the key was already absent.
	if err == nil && (res.Success() || res.ExitCode == 5) {
		return nil
	}
	return classify(s.path, string(action), cmd, res, err)
}

func (s *session) addSafeDirectory(ctx context.Context, path string) error {
	_, err := s.run(ctx, ActionAddSafeDirectory, false, "", "config", "--global", "--add", "safe.directory", path)
	return err
}

func (s *session) removeSafeDirectory(ctx context.Context, path string) error {
	cmd, res, err := s.exec(ctx, false, "", "config", "--global", "--fixed-value", "--unset-all", "safe.directory", path)
	if err == nil && (res.Success() || res.ExitCode == 5) {
		return nil
	}
	return classify(s.path, string(ActionRemoveSafeDirectory), cmd, res, err)
}

// dirty reports uncommitted or untracked changes in a working copy.
func (s *session) dirty(ctx context.Context) (bool, error) {
	cmd, res, err := s.exec(ctx, false, s.path, "status", "--porcelain")
	if err != nil || !res.Success() {
		return false, classify(s.path, "probe", cmd, res, err)
	}
	return res.Stdout != "", nil
}

// lsRemote lists the refs advertised by url.
func (s *session) lsRemote(ctx context.Context, url string) (RefListing, error) {
	cmd, res, err := s.exec(ctx, true, "", "ls-remote", "--symref", "--", url)
	if err != nil || !res.Success() {
		return RefListing{}, classify(s.path, "resolve", cmd, res, err)
	}
	return ParseLsRemote(res.Stdout)
}
