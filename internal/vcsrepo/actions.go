package vcsrepo

import (
	"fmt"
	"strings"
)

// ActionKind names an operation in a plan.
type ActionKind string

const (
	ActionRemoveAll           ActionKind = "remove-all"
	ActionClone               ActionKind = "clone"
	ActionInitBare            ActionKind = "init-bare"
	ActionAddRemote           ActionKind = "add-remote"
	ActionSetRemoteURL        ActionKind = "set-remote-url"
	ActionFetch               ActionKind = "fetch"
	ActionSetHead             ActionKind = "set-head"
	ActionReset               ActionKind = "reset"
	ActionClean               ActionKind = "clean"
	ActionCheckout            ActionKind = "checkout"
	ActionUpdateSubmodules    ActionKind = "update-submodules"
	ActionWriteExcludes       ActionKind = "write-excludes"
	ActionSetHooksPath        ActionKind = "set-hooks-path"
	ActionUnsetHooksPath      ActionKind = "unset-hooks-path"
	ActionAddSafeDirectory    ActionKind = "add-safe-directory"
	ActionRemoveSafeDirectory ActionKind = "remove-safe-directory"
	ActionChown               ActionKind = "chown"
)

// Action is one step of a Plan. Every action mutates the path or git
// configuration; an empty plan is the no-op.
type Action interface {
	Kind() ActionKind
	// Network reports whether the action talks to a remote.
	Network() bool
	String() string
}

// RemoveAll deletes the managed path recursively.
type RemoveAll struct {
	Path string
}

// Clone creates a working copy.
type Clone struct {
	URL    string
	Path   string
	Remote string
	Depth  int
	// Branch is passed to --branch; empty clones the remote default.
	Branch string
}

// InitBare creates an empty bare repository.
type InitBare struct {
	Path   string
	Mirror bool
}

// AddRemote configures a missing remote.
type AddRemote struct {
	Name   string
	URL    string
	Mirror bool
	// Bare maps remote branches straight onto local branches.
	Bare bool
}

// SetRemoteURL repoints an existing remote.
type SetRemoteURL struct {
	Name string
	From string
	URL  string
}

// Fetch downloads objects and refs from a remote.
type Fetch struct {
	Remote  string
	Depth   int
	Prune   bool
	Tags    bool
	Refspec string
}

// SetHead points a bare repository's HEAD at a branch.
type SetHead struct {
	Ref string
}

// Reset discards staged and unstaged modifications.
type Reset struct{}

// Clean removes untracked files, keeping ignored ones.
type Clean struct{}

// Checkout moves HEAD to the target revision.
type Checkout struct {
	Target Resolved
	Remote string
	Force  bool
}

// UpdateSubmodules initialises and updates submodules recursively.
type UpdateSubmodules struct{}

// WriteExcludes appends missing lines to the repository's info/exclude.
type WriteExcludes struct {
	// MetadataDir is the git directory when it is not <path>/.git, as for
	// a separate git dir or a linked worktree.
	MetadataDir string
	Lines       []string
	Diff        string
}

// SetHooksPath sets core.hooksPath in the local config.
type SetHooksPath struct {
	Value string
}

// UnsetHooksPath removes the disabling core.hooksPath override.
type UnsetHooksPath struct{}

// AddSafeDirectory trusts the path in the global git config.
type AddSafeDirectory struct {
	Path string
}

// RemoveSafeDirectory drops the path from the global safe.directory list.
type RemoveSafeDirectory struct {
	Path string
}

// Chown recursively assigns ownership; -1 leaves an id unchanged.
type Chown struct {
	Path string
	UID  int
	GID  int
}

func (RemoveAll) Kind() ActionKind           { return ActionRemoveAll }
func (Clone) Kind() ActionKind               { return ActionClone }
func (InitBare) Kind() ActionKind            { return ActionInitBare }
func (AddRemote) Kind() ActionKind           { return ActionAddRemote }
func (SetRemoteURL) Kind() ActionKind        { return ActionSetRemoteURL }
func (Fetch) Kind() ActionKind               { return ActionFetch }
func (SetHead) Kind() ActionKind             { return ActionSetHead }
func (Reset) Kind() ActionKind               { return ActionReset }
func (Clean) Kind() ActionKind               { return ActionClean }
func (Checkout) Kind() ActionKind            { return ActionCheckout }
func (UpdateSubmodules) Kind() ActionKind    { return ActionUpdateSubmodules }
func (WriteExcludes) Kind() ActionKind       { return ActionWriteExcludes }
func (SetHooksPath) Kind() ActionKind        { return ActionSetHooksPath }
func (UnsetHooksPath) Kind() ActionKind      { return ActionUnsetHooksPath }
func (AddSafeDirectory) Kind() ActionKind    { return ActionAddSafeDirectory }
func (RemoveSafeDirectory) Kind() ActionKind { return ActionRemoveSafeDirectory }
func (Chown) Kind() ActionKind               { return ActionChown }

func (RemoveAll) Network() bool           { return false }
func (Clone) Network() bool               { return true }
func (InitBare) Network() bool            { return false }
func (AddRemote) Network() bool           { return false }
func (SetRemoteURL) Network() bool        { return false }
func (Fetch) Network() bool               { return true }
func (SetHead) Network() bool             { return false }
func (Reset) Network() bool               { return false }
func (Clean) Network() bool               { return false }
func (Checkout) Network() bool            { return false }
func (UpdateSubmodules) Network() bool    { return true }
func (WriteExcludes) Network() bool       { return false }
func (SetHooksPath) Network() bool        { return false }
func (UnsetHooksPath) Network() bool      { return false }
func (AddSafeDirectory) Network() bool    { return false }
func (RemoveSafeDirectory) Network() bool { return false }
func (Chown) Network() bool               { return false }

func (a RemoveAll) String() string { return "remove " + a.Path }

func (a Clone) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "clone %s as %s", a.URL, a.Remote)
	if a.Branch != "" {
		fmt.Fprintf(&b, " at %s", a.Branch)
	}
	if a.Depth > 0 {
		fmt.Fprintf(&b, " with depth %d", a.Depth)
	}
	return b.String()
}

func (a InitBare) String() string {
	if a.Mirror {
		return "initialise mirror repository"
	}
	return "initialise bare repository"
}

func (a AddRemote) String() string {
	if a.Mirror {
		return fmt.Sprintf("add mirror remote %s %s", a.Name, a.URL)
	}
	return fmt.Sprintf("add remote %s %s", a.Name, a.URL)
}

func (a SetRemoteURL) String() string {
	return fmt.Sprintf("set remote %s url %s -> %s", a.Name, a.From, a.URL)
}

func (a Fetch) String() string {
	s := "fetch " + a.Remote
	if a.Refspec != "" {
		s += " " + a.Refspec
	}
	if a.Depth > 0 {
		s += fmt.Sprintf(" with depth %d", a.Depth)
	}
	return s
}

func (a SetHead) String() string        { return "point HEAD at " + a.Ref }
func (Reset) String() string            { return "discard local modifications" }
func (Clean) String() string            { return "remove untracked files" }
func (a Checkout) String() string       { return "checkout " + a.Target.String() }
func (UpdateSubmodules) String() string { return "update submodules" }

func (a WriteExcludes) String() string {
	return "add excludes " + strings.Join(a.Lines, ", ")
}

func (a SetHooksPath) String() string     { return "set core.hooksPath " + a.Value }
func (UnsetHooksPath) String() string     { return "unset core.hooksPath" }
func (a AddSafeDirectory) String() string { return "trust " + a.Path + " as safe.directory" }
func (a RemoveSafeDirectory) String() string {
	return "drop " + a.Path + " from safe.directory"
}

func (a Chown) String() string {
	return fmt.Sprintf("chown %s to %d:%d", a.Path, a.UID, a.GID)
}
