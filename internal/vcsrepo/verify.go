package vcsrepo

import (
	"fmt"
	"slices"
	"strings"
)

// verify compares a fresh probe with the state the plan aimed for.
func verify(d DesiredState, p Plan, c CurrentState) error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if d.Ensure == EnsureAbsent {
		if c.Exists {
			fail("path still exists")
		}
		return verificationError(d.Path, problems)
	}

	if got, want := c.Shape(), shapeFor(d.Ensure); got != want {
		fail("path is a %s, want a %s", got, want)
		return verificationError(d.Path, problems)
	}

	if !c.Unreadable || c.Remotes != nil {
		for _, name := range d.RemoteNames() {
			if got := c.Remotes[name]; got != d.Sources[name] {
				fail("remote %s is %q, want %q", name, got, d.Sources[name])
			}
		}
	}

	r := p.Resolved
	if d.Ensure.WorkingCopy() && !r.IsZero() && r.Kind != KindDetached {
		if !r.Matches(c.HeadCommit) {
			fail("HEAD is at %s, want %s", shortSHA(c.HeadCommit), r)
		}
		if r.Kind == KindBranch && c.HeadRef != r.Ref {
			fail("HEAD is %s, want %s", c.HeadRef, r.Ref)
		}
	}

	if d.Ensure.WorkingCopy() {
		if missing := missingExcludes(c.Excludes, d.Excludes); len(missing) > 0 {
			fail("excludes missing %s", strings.Join(missing, ", "))
		}
	}

	switch disabled := c.HooksPath == DisabledHooksPath; {
	case d.SkipHooks && !disabled:
		fail("hooks are not disabled")
	case !d.SkipHooks && disabled:
		fail("hooks are still disabled")
	}

	if trusted := slices.Contains(c.SafeDirectories, d.Path); trusted != d.SafeDirectory {
		fail("safe.directory entry present=%t, want %t", trusted, d.SafeDirectory)
	}

	if d.ids != nil {
		if d.ids.uid >= 0 && c.UID != d.ids.uid {
			fail("owner uid is %d, want %d", c.UID, d.ids.uid)
		}
		if d.ids.gid >= 0 && c.GID != d.ids.gid {
			fail("owner gid is %d, want %d", c.GID, d.ids.gid)
		}
	}

	return verificationError(d.Path, problems)
}

// settle pins the resolution to what execution actually produced where the
// plan left the choice to git: a prefix matched after the fetch, or a branch
// cloned by name whose tip may have moved since ls-remote.
func settle(p Plan, c CurrentState) Resolved {
	r := p.Resolved
	switch {
	case c.HeadCommit == "":
	case r.Abbrev && r.Matches(c.HeadCommit):
		r.Commit, r.Abbrev = c.HeadCommit, false
	case r.Kind == KindBranch && p.Has(ActionClone) && !p.Has(ActionCheckout) && c.HeadRef == r.Ref:
		r.Commit = c.HeadCommit
	}
	return r
}

func verificationError(path string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &Error{
		Code:   CodeVerificationFailed,
		Path:   path,
		Action: "verify",
		Err:    fmt.Errorf("%s", strings.Join(problems, "; ")),
	}
}
