// Package vcsrepo converges a filesystem path toward a desired git
// repository state. A reconciliation probes the path, resolves the wanted
// revision, plans the minimal ordered set of git operations, executes them
// and re-probes to verify the result.
package vcsrepo

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultRemote is the remote name used when none is configured.
const DefaultRemote = "origin"

// HeadDetached is the CurrentState.HeadRef value for a detached HEAD.
const HeadDetached = "detached"

// Ensure is the requested shape of the managed path.
type Ensure string

const (
	EnsureAbsent  Ensure = "absent"
	EnsurePresent Ensure = "present"
	EnsureLatest  Ensure = "latest"
	EnsureBare    Ensure = "bare"
	EnsureMirror  Ensure = "mirror"
)

// Ensures lists every accepted Ensure value.
var Ensures = []Ensure{EnsureAbsent, EnsurePresent, EnsureLatest, EnsureBare, EnsureMirror}

// ParseEnsure maps a front-end string to an Ensure value.
func ParseEnsure(s string) (Ensure, error) {
	for _, e := range Ensures {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown ensure value %q", s)
}

// WorkingCopy reports whether the ensure value wants a checked-out tree.
func (e Ensure) WorkingCopy() bool {
	return e == EnsurePresent || e == EnsureLatest
}

// DesiredState is the immutable input of one reconciliation.
type DesiredState struct {
	Path     string
	Ensure   Ensure
	Sources  map[string]string
	Revision string
	Depth    int
	Remote   string
	Excludes []string

	Owner    string
	Group    string
	User     string
	Identity string
	Trust    bool

	SkipHooks     bool
	Force         bool
	SafeDirectory bool
	Submodules    bool
	KeepRemote    bool

	ids *ownerIDs
}

type ownerIDs struct {
	uid int
	gid int
}

// WithOwnerIDs returns a copy carrying the numeric ids Owner and Group map
// to; -1 leaves an id unmanaged. The planner only compares ownership when
// ids are attached.
func (d DesiredState) WithOwnerIDs(uid, gid int) DesiredState {
	d.ids = &ownerIDs{uid: uid, gid: gid}
	return d
}

// RemoteName returns the primary remote name.
func (d DesiredState) RemoteName() string {
	if d.Remote == "" {
		return DefaultRemote
	}
	return d.Remote
}

// SourceURL returns the URL of the primary remote.
func (d DesiredState) SourceURL() string {
	return d.Sources[d.RemoteName()]
}

// RemoteNames returns the configured remote names, sorted.
func (d DesiredState) RemoteNames() []string {
	names := make([]string, 0, len(d.Sources))
	for name := range d.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAs returns the identity git commands should run as.
func (d DesiredState) RunAs() string {
	if d.User != "" {
		return d.User
	}
	return d.Owner
}

// runsAsOwner reports whether git runs as the identity that owns the path,
// so what it writes needs no ownership pass.
func (d DesiredState) runsAsOwner() bool {
	return d.Owner != "" && (d.User == "" || d.User == d.Owner)
}

// Validate checks the desired state before anything touches the path.
func (d DesiredState) Validate() error {
	invalid := func(format string, args ...any) error {
		return &Error{Code: CodeInvalidDesiredState, Path: d.Path, Err: fmt.Errorf(format, args...)}
	}

	if strings.TrimSpace(d.Path) == "" {
		return invalid("path is required")
	}
	if !filepath.IsAbs(d.Path) {
		return invalid("path %q must be absolute", d.Path)
	}
	if _, err := ParseEnsure(string(d.Ensure)); err != nil {
		return invalid("%v", err)
	}
	if d.Depth < 0 {
		return invalid("depth must be positive, got %d", d.Depth)
	}
	if d.Ensure == EnsureAbsent {
		return nil
	}
	if d.SourceURL() == "" {
		return invalid("no source URL for remote %q", d.RemoteName())
	}
	for name, url := range d.Sources {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return invalid("source entries need a remote name and URL")
		}
	}
	if d.Depth > 0 && (d.Ensure == EnsureBare || d.Ensure == EnsureMirror) {
		return invalid("depth is only supported for working copies")
	}
	return nil
}

// CurrentState describes what the prober found at the path. It is never
// cached between reconciliations.
type CurrentState struct {
	Path        string
	MetadataDir string

	Exists                bool
	IsRepo                bool
	IsBare                bool
	IsMirror              bool
	IsEmptyDir            bool
	IsShallow             bool
	HasUncommittedChanges bool
	// Unreadable is set when metadata exists but could not be read.
	Unreadable bool

	// HeadRef is the symbolic HEAD target, HeadDetached, or empty if unknown.
	HeadRef    string
	HeadCommit string
	Remotes    map[string]string

	Excludes        []string
	HooksPath       string
	SafeDirectories []string

	// UID and GID are the path's owner ids, -1 when unknown.
	UID int
	GID int
}

// Shape classifies a path for the planner.
type Shape int

const (
	ShapeAbsent Shape = iota
	ShapeEmpty
	ShapeForeign
	ShapeWorking
	ShapeBare
	ShapeMirror
)

var shapeNames = map[Shape]string{
	ShapeAbsent:  "absent",
	ShapeEmpty:   "empty directory",
	ShapeForeign: "non-repository content",
	ShapeWorking: "working copy",
	ShapeBare:    "bare repository",
	ShapeMirror:  "mirror repository",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// Shape classifies the current state.
func (c CurrentState) Shape() Shape {
	switch {
	case !c.Exists:
		return ShapeAbsent
	case !c.IsRepo && c.IsEmptyDir:
		return ShapeEmpty
	case !c.IsRepo:
		return ShapeForeign
	case c.IsMirror:
		return ShapeMirror
	case c.IsBare:
		return ShapeBare
	default:
		return ShapeWorking
	}
}

// resumable reports a bare repository left behind by an interrupted
// setup, before any remote was added, that can still become a want.
func (c CurrentState) resumable(want Shape) bool {
	return want == ShapeMirror && c.Shape() == ShapeBare &&
		!c.Unreadable && len(c.Remotes) == 0 && c.HeadCommit == ""
}

// Detached reports whether HEAD points directly at a commit.
func (c CurrentState) Detached() bool {
	return c.HeadRef == HeadDetached
}

// shapeFor is the repository shape an ensure value converges to.
func shapeFor(e Ensure) Shape {
	switch e {
	case EnsureBare:
		return ShapeBare
	case EnsureMirror:
		return ShapeMirror
	case EnsureAbsent:
		return ShapeAbsent
	default:
		return ShapeWorking
	}
}

// RefKind says what a revision token resolved to.
type RefKind int

const (
	KindBranch RefKind = iota + 1
	KindTag
	KindSha
	KindDetached
)

func (k RefKind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	case KindSha:
		return "sha"
	case KindDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Resolved is a canonical revision.
type Resolved struct {
	Commit string
	Kind   RefKind
	// Ref is the fully-qualified ref for branches and tags.
	Ref string
	// Name is the short branch or tag name.
	Name string
	// Default marks the remote default branch chosen for an unset token.
	Default bool
	// Abbrev marks a commit prefix that is resolved only once the objects
	// have been fetched.
	Abbrev bool
}

// IsZero reports an empty resolution.
func (r Resolved) IsZero() bool {
	return r.Commit == "" && r.Kind == 0
}

// Matches reports whether commit is the resolved commit.
func (r Resolved) Matches(commit string) bool {
	if r.Abbrev {
		return commit != "" && strings.HasPrefix(commit, r.Commit)
	}
	return commit == r.Commit
}

func (r Resolved) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s %s (%s)", r.Kind, r.Name, shortSHA(r.Commit))
	}
	return fmt.Sprintf("%s %s", r.Kind, shortSHA(r.Commit))
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
