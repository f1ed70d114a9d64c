package vcsrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DisabledHooksPath is the core.hooksPath value that disables all hooks.
var DisabledHooksPath = os.DevNull

// Plan is the ordered list of actions converging a path.
type Plan struct {
	Path     string
	Ensure   Ensure
	From     Shape
	Resolved Resolved
	Actions  []Action
	// Notices are limitations surfaced to the caller; they never mutate.
	Notices []string
}

// Empty reports a converged path: executing the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Has reports whether the plan contains an action of the given kind.
func (p Plan) Has(kind ActionKind) bool {
	return slices.ContainsFunc(p.Actions, func(a Action) bool { return a.Kind() == kind })
}

// Kinds lists the action kinds in order.
func (p Plan) Kinds() []ActionKind {
	kinds := make([]ActionKind, len(p.Actions))
	for i, a := range p.Actions {
		kinds[i] = a.Kind()
	}
	return kinds
}

func (p *Plan) add(actions ...Action) {
	p.Actions = append(p.Actions, actions...)
}

func (p *Plan) notice(format string, args ...any) {
	p.Notices = append(p.Notices, fmt.Sprintf(format, args...))
}

// BuildPlan computes the actions taking current to desired. It is a pure
// function of its inputs: equal inputs always produce equal plans.
func BuildPlan(d DesiredState, c CurrentState, r Resolved) (Plan, error) {
	p := Plan{Path: d.Path, Ensure: d.Ensure, From: c.Shape(), Resolved: r}
	want := shapeFor(d.Ensure)

	if d.Ensure == EnsureAbsent {
		if p.From != ShapeAbsent {
			p.add(RemoveAll{Path: d.Path})
		}
		return p, nil
	}

	created := false
	switch p.From {
	case ShapeAbsent, ShapeEmpty:
		p.create(d, r)
		created = true

	case ShapeForeign:
		if !d.Force {
			return Plan{}, &Error{
				Code:   CodeOccupiedPath,
				Path:   d.Path,
				Action: "plan",
				Err:    fmt.Errorf("path exists with content that is not a git repository; set force to replace it"),
			}
		}
		p.add(RemoveAll{Path: d.Path})
		p.create(d, r)
		created = true

	case ShapeWorking, ShapeBare, ShapeMirror:
		if p.From != want && !c.resumable(want) {
			if !d.Force {
				return Plan{}, &Error{
					Code:   CodeIncompatibleShapeChange,
					Path:   d.Path,
					Action: "plan",
					Err:    fmt.Errorf("path is a %s but %s wants a %s; set force to recreate it", p.From, d.Ensure, want),
				}
			}
			p.add(RemoveAll{Path: d.Path})
			p.create(d, r)
			created = true
			break
		}
		if err := p.converge(d, c, r); err != nil {
			return Plan{}, err
		}
	}

	p.configure(d, c, created)
	p.own(d, c, created)
	return p, nil
}

// create plans a fresh repository at an absent or emptied path.
func (p *Plan) create(d DesiredState, r Resolved) {
	remote := d.RemoteName()

	if !d.Ensure.WorkingCopy() {
		mirror := d.Ensure == EnsureMirror
		p.add(
			InitBare{Path: d.Path, Mirror: mirror},
			AddRemote{Name: remote, URL: d.SourceURL(), Mirror: mirror, Bare: !mirror},
		)
		var extra []string
		for _, name := range d.RemoteNames() {
			if name != remote {
				p.add(AddRemote{Name: name, URL: d.Sources[name]})
				extra = append(extra, name)
			}
		}
		p.add(Fetch{Remote: remote, Prune: mirror, Tags: !mirror})
		for _, name := range extra {
			p.add(Fetch{Remote: name})
		}
		if r.Kind == KindBranch && r.Ref != "" {
			p.add(SetHead{Ref: r.Ref})
		}
		if d.Revision != "" {
			p.notice("revision %q is ignored for %s repositories", d.Revision, d.Ensure)
		}
		return
	}

	clone := Clone{URL: d.SourceURL(), Path: d.Path, Remote: remote, Depth: d.Depth}
	if r.Abbrev && d.Depth > 0 {
		clone.Depth = 0
		p.notice("depth %d is ignored: abbreviated commit %s needs the full history", d.Depth, r.Commit)
	}
	// Tags are checked out by commit; clone --branch would prefer a branch
	// of the same name.
	if r.Kind == KindBranch && !r.Default {
		clone.Branch = r.Name
	}
	p.add(clone)

	for _, name := range d.RemoteNames() {
		if name != remote {
			p.add(AddRemote{Name: name, URL: d.Sources[name]}, Fetch{Remote: name})
		}
	}

	switch r.Kind {
	case KindTag:
		if clone.Depth > 0 {
			p.add(Fetch{Remote: remote, Depth: clone.Depth, Refspec: "+" + r.Ref + ":" + r.Ref})
		}
		p.add(Checkout{Target: r, Remote: remote, Force: d.Force})
	case KindSha:
		if clone.Depth > 0 {
			p.add(Fetch{Remote: remote, Depth: clone.Depth, Refspec: r.Commit})
		}
		p.add(Checkout{Target: r, Remote: remote, Force: d.Force})
	}
	if d.Submodules {
		p.add(UpdateSubmodules{})
	}
}

// converge plans updates for a repository that already has the wanted shape.
func (p *Plan) converge(d DesiredState, c CurrentState, r Resolved) error {
	remote := d.RemoteName()
	bare := !d.Ensure.WorkingCopy()
	mirror := d.Ensure == EnsureMirror
	refetch := map[string]bool{}

	// Metadata that could not be read at all gives no remote list to
	// compare against.
	if !c.Unreadable || c.Remotes != nil {
		for _, name := range d.RemoteNames() {
			want := d.Sources[name]
			have, ok := c.Remotes[name]
			switch {
			case !ok:
				primary := name == remote
				p.add(AddRemote{Name: name, URL: want, Mirror: mirror && primary, Bare: bare && !mirror && primary})
				refetch[name] = true
			case have != want:
				if d.KeepRemote {
					return &Error{
						Code:   CodeRemoteMismatch,
						Path:   d.Path,
						Action: "plan",
						Err:    fmt.Errorf("remote %s points at %s, want %s", name, have, want),
					}
				}
				p.add(SetRemoteURL{Name: name, From: have, URL: want})
				refetch[name] = true
			}
		}
	}

	if bare {
		// Nothing fetched yet: an earlier setup stopped before its fetch.
		if c.HeadCommit == "" && !r.IsZero() {
			refetch[remote] = true
		}
		for _, name := range d.RemoteNames() {
			if refetch[name] {
				p.add(Fetch{Remote: name, Prune: mirror && name == remote, Tags: !mirror})
			}
		}
		if r.Kind == KindBranch && r.Ref != "" && c.HeadRef != r.Ref {
			p.add(SetHead{Ref: r.Ref})
		}
		if d.Revision != "" {
			p.notice("revision %q is ignored for %s repositories", d.Revision, d.Ensure)
		}
		return nil
	}

	checkout := needsCheckout(c, r)
	for _, name := range d.RemoteNames() {
		if refetch[name] && (name != remote || !checkout) {
			p.add(Fetch{Remote: name, Tags: true})
		}
	}

	if checkout {
		fetch := Fetch{Remote: remote, Tags: true, Depth: d.Depth}
		switch {
		case r.Abbrev:
			// The prefix is matched against full history.
			fetch.Depth = 0
		case r.Kind == KindSha && d.Depth > 0:
			fetch.Refspec = r.Commit
		}
		p.add(fetch)
		if d.Force && c.HasUncommittedChanges {
			p.add(Reset{}, Clean{})
		}
		p.add(Checkout{Target: r, Remote: remote, Force: d.Force})
		if d.Submodules {
			p.add(UpdateSubmodules{})
		}
	}

	switch {
	case d.Depth > 0 && !c.IsShallow:
		p.notice("depth %d is only applied when cloning; the existing repository keeps its full history", d.Depth)
	case d.Depth == 0 && c.IsShallow:
		p.notice("repository is shallow; depth is not changed on an existing repository")
	}
	return nil
}

// needsCheckout compares HEAD with the resolved revision.
func needsCheckout(c CurrentState, r Resolved) bool {
	switch {
	case c.Unreadable && c.HeadCommit == "":
		return !r.IsZero() && r.Kind != KindDetached
	case r.IsZero(), r.Kind == KindDetached:
		return false
	case !r.Matches(c.HeadCommit):
		return true
	case r.Kind == KindBranch:
		return c.HeadRef != r.Ref
	default:
		return false
	}
}

// configure plans local repository settings: excludes, hooks and the
// global safe.directory entry.
func (p *Plan) configure(d DesiredState, c CurrentState, created bool) {
	trusted := slices.Contains(c.SafeDirectories, d.Path)
	switch {
	case d.SafeDirectory && !trusted:
		p.add(AddSafeDirectory{Path: d.Path})
	case !d.SafeDirectory && trusted:
		p.add(RemoveSafeDirectory{Path: d.Path})
	}

	if len(d.Excludes) > 0 {
		if !d.Ensure.WorkingCopy() {
			p.notice("excludes are ignored for %s repositories", d.Ensure)
		} else {
			current := c.Excludes
			if created {
				current = nil
			}
			if add := missingExcludes(current, d.Excludes); len(add) > 0 {
				w := WriteExcludes{Lines: add, Diff: excludesDiff(current, add)}
				if !created && c.MetadataDir != "" && c.MetadataDir != filepath.Join(d.Path, ".git") {
					w.MetadataDir = c.MetadataDir
				}
				p.add(w)
			}
		}
	}

	hooks := c.HooksPath
	if created {
		hooks = ""
	}
	switch {
	case d.SkipHooks && hooks != DisabledHooksPath:
		p.add(SetHooksPath{Value: DisabledHooksPath})
	case !d.SkipHooks && hooks == DisabledHooksPath:
		p.add(UnsetHooksPath{})
	}
}

// own plans the final ownership pass.
func (p *Plan) own(d DesiredState, c CurrentState, created bool) {
	if d.ids == nil || (d.ids.uid < 0 && d.ids.gid < 0) {
		return
	}
	drift := (d.ids.uid >= 0 && c.UID != d.ids.uid) || (d.ids.gid >= 0 && c.GID != d.ids.gid)
	if created || drift || (len(p.Actions) > 0 && !d.runsAsOwner()) {
		p.add(Chown{Path: d.Path, UID: d.ids.uid, GID: d.ids.gid})
	}
}
