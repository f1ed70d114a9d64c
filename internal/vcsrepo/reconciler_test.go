package vcsrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/logger"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/metrics"
)

type upstream struct {
	dir    string
	repo   *git.Repository
	first  plumbing.Hash
	second plumbing.Hash
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	isolateHome(t)
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "upstream")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	u := &upstream{dir: dir, repo: repo}
	u.first = commitFile(t, repo, dir, "README.md", "one")
	_, err = repo.CreateTag("v1", u.first, nil)
	require.NoError(t, err)
	u.second = commitFile(t, repo, dir, "README.md", "two")
	return u
}

func (u *upstream) commit(t *testing.T, content string) plumbing.Hash {
	return commitFile(t, u.repo, u.dir, "README.md", content)
}

func newReconciler() *Reconciler {
	return NewReconciler(NewGit("git", 0), logger.Nop(), metrics.New())
}

func target(t *testing.T, ensure Ensure, source string) DesiredState {
	return DesiredState{
		Path:    filepath.Join(t.TempDir(), "managed", "app"),
		Ensure:  ensure,
		Sources: map[string]string{DefaultRemote: source},
	}
}

func reconcile(t *testing.T, r *Reconciler, d DesiredState) Result {
	t.Helper()
	res, err := r.Reconcile(context.Background(), d, Options{})
	require.NoError(t, err)
	return res
}

func headOf(t *testing.T, path string) (string, string) {
	t.Helper()
	repo, err := git.PlainOpen(path)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.HEAD, false)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().String(), head.Hash().String()
	}
	return HeadDetached, head.Hash().String()
}

func TestReconcile_PresentIsIdempotent(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsurePresent, u.dir)

	res := reconcile(t, r, d)
	assert.True(t, res.Changed)
	assert.Equal(t, []ActionKind{ActionClone}, res.Plan.Kinds())
	ref, commit := headOf(t, d.Path)
	assert.Equal(t, "refs/heads/master", ref)
	assert.Equal(t, u.second.String(), commit)

	data, err := os.ReadFile(filepath.Join(d.Path, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	u.commit(t, "three")
	res = reconcile(t, r, d)
	assert.False(t, res.Changed, "present does not follow the remote")
	assert.Empty(t, res.Actions)
	_, commit = headOf(t, d.Path)
	assert.Equal(t, u.second.String(), commit)

	outcomes, err := testutil.GatherAndCount(r.Metrics.Registry(), "vcsrepo_reconciliations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, outcomes)
}

func TestReconcile_LatestTracksRemote(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsureLatest, u.dir)

	reconcile(t, r, d)
	third := u.commit(t, "three")

	res := reconcile(t, r, d)
	assert.True(t, res.Changed)
	assert.Equal(t, []ActionKind{ActionFetch, ActionCheckout}, res.Plan.Kinds())
	ref, commit := headOf(t, d.Path)
	assert.Equal(t, "refs/heads/master", ref)
	assert.Equal(t, third.String(), commit)

	res = reconcile(t, r, d)
	assert.False(t, res.Changed)
}

func TestReconcile_RevisionPinning(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()

	d := target(t, EnsurePresent, u.dir)
	d.Revision = "v1"
	reconcile(t, r, d)
	ref, commit := headOf(t, d.Path)
	assert.Equal(t, HeadDetached, ref)
	assert.Equal(t, u.first.String(), commit)
	assert.False(t, reconcile(t, r, d).Changed)

	d.Revision = u.second.String()
	res := reconcile(t, r, d)
	assert.True(t, res.Changed)
	_, commit = headOf(t, d.Path)
	assert.Equal(t, u.second.String(), commit)

	d.Revision = u.first.String()[:8]
	reconcile(t, r, d)
	_, commit = headOf(t, d.Path)
	assert.Equal(t, u.first.String(), commit)
	assert.False(t, reconcile(t, r, d).Changed)
}

func TestReconcile_AbbreviatedCommitBehindTip(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	third := u.commit(t, "three")
	r := newReconciler()

	t.Run("fresh clone", func(t *testing.T) {
		d := target(t, EnsurePresent, u.dir)
		d.Revision = u.second.String()[:10]

		res := reconcile(t, r, d)
		assert.Equal(t, []ActionKind{ActionClone, ActionCheckout}, res.Plan.Kinds())
		assert.Equal(t, Resolved{Commit: u.second.String(), Kind: KindSha}, res.Resolved)
		ref, commit := headOf(t, d.Path)
		assert.Equal(t, HeadDetached, ref)
		assert.Equal(t, u.second.String(), commit)
		assert.False(t, reconcile(t, r, d).Changed)
	})

	t.Run("pushed since the last run", func(t *testing.T) {
		d := target(t, EnsureLatest, u.dir)
		reconcile(t, r, d)
		_, commit := headOf(t, d.Path)
		require.Equal(t, third.String(), commit)

		fourth := u.commit(t, "four")
		u.commit(t, "five")
		d.Revision = fourth.String()[:10]

		res := reconcile(t, r, d)
		assert.True(t, res.Changed)
		_, commit = headOf(t, d.Path)
		assert.Equal(t, fourth.String(), commit)
		assert.False(t, reconcile(t, r, d).Changed)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		d := target(t, EnsurePresent, u.dir)
		d.Revision = "deadbeef00"
		_, err := r.Reconcile(context.Background(), d, Options{})
		assert.ErrorIs(t, err, ErrRevisionNotFound)
	})
}

func TestReconcile_TagSharingBranchName(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	_, err := u.repo.CreateTag("release", u.first, nil)
	require.NoError(t, err)
	require.NoError(t, u.repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/release", u.second)))
	r := newReconciler()

	d := target(t, EnsurePresent, u.dir)
	d.Revision = "refs/tags/release"
	res := reconcile(t, r, d)
	assert.Equal(t, []ActionKind{ActionClone, ActionCheckout}, res.Plan.Kinds())
	ref, commit := headOf(t, d.Path)
	assert.Equal(t, HeadDetached, ref)
	assert.Equal(t, u.first.String(), commit)
	assert.False(t, reconcile(t, r, d).Changed)
}

func TestReconcile_RevisionNotFound(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	d := target(t, EnsurePresent, u.dir)
	d.Revision = "no-such-branch"

	_, err := newReconciler().Reconcile(context.Background(), d, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRevisionNotFound)
	assert.Equal(t, d.Path, err.(*Error).Path)
	_, statErr := os.Stat(d.Path)
	assert.True(t, os.IsNotExist(statErr), "nothing is created for an unknown revision")
}

func TestReconcile_ShallowClone(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsurePresent, "file://"+u.dir)
	d.Depth = 1

	res := reconcile(t, r, d)
	assert.True(t, res.Current.IsShallow)

	res = reconcile(t, r, d)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Notices)
}

func TestReconcile_ForeignDirectory(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsurePresent, u.dir)
	require.NoError(t, os.MkdirAll(d.Path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "keep.txt"), []byte("mine"), 0o644))

	_, err := r.Reconcile(context.Background(), d, Options{})
	assert.ErrorIs(t, err, ErrOccupiedPath)
	_, statErr := os.Stat(filepath.Join(d.Path, "keep.txt"))
	assert.NoError(t, statErr, "foreign content is untouched without force")

	d.Force = true
	res := reconcile(t, r, d)
	assert.Equal(t, []ActionKind{ActionRemoveAll, ActionClone}, res.Plan.Kinds())
	_, statErr = os.Stat(filepath.Join(d.Path, "keep.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReconcile_BareAndMirror(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()

	for _, ensure := range []Ensure{EnsureBare, EnsureMirror} {
		t.Run(string(ensure), func(t *testing.T) {
			d := target(t, ensure, u.dir)

			res := reconcile(t, r, d)
			assert.True(t, res.Changed)
			assert.Equal(t, shapeFor(ensure), res.Current.Shape())
			assert.Equal(t, "refs/heads/master", res.Current.HeadRef)
			assert.Equal(t, u.second.String(), res.Current.HeadCommit)

			res = reconcile(t, r, d)
			assert.False(t, res.Changed)

			working := d
			working.Ensure = EnsurePresent
			_, err := r.Reconcile(context.Background(), working, Options{})
			assert.ErrorIs(t, err, ErrIncompatibleShapeChange)
		})
	}
}

func TestReconcile_ResumesInterruptedBareSetup(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()

	t.Run("bare stopped before fetch", func(t *testing.T) {
		d := target(t, EnsureBare, u.dir)
		repo, err := git.PlainInit(d.Path, true)
		require.NoError(t, err)
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
			Name:  DefaultRemote,
			URLs:  []string{u.dir},
			Fetch: []gitconfig.RefSpec{"+refs/heads/*:refs/heads/*"},
		})
		require.NoError(t, err)

		res := reconcile(t, r, d)
		assert.True(t, res.Changed)
		assert.True(t, res.Plan.Has(ActionFetch))
		assert.Equal(t, ShapeBare, res.Current.Shape())
		assert.Equal(t, u.second.String(), res.Current.HeadCommit)
		assert.False(t, reconcile(t, r, d).Changed)
	})

	t.Run("mirror stopped before its remote", func(t *testing.T) {
		d := target(t, EnsureMirror, u.dir)
		_, err := git.PlainInit(d.Path, true)
		require.NoError(t, err)

		res := reconcile(t, r, d)
		assert.Equal(t, []ActionKind{ActionAddRemote, ActionFetch}, res.Plan.Kinds())
		assert.Equal(t, ShapeMirror, res.Current.Shape())
		assert.Equal(t, u.second.String(), res.Current.HeadCommit)
		assert.False(t, reconcile(t, r, d).Changed)
	})
}

func TestReconcile_ExcludesInSeparateGitDir(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	d := target(t, EnsurePresent, u.dir)
	gitDir := filepath.Join(t.TempDir(), "app.git")
	require.NoError(t, os.MkdirAll(filepath.Dir(d.Path), 0o755))
	out, err := exec.Command("git", "clone", "--quiet", "--separate-git-dir", gitDir, u.dir, d.Path).CombinedOutput()
	require.NoError(t, err, string(out))

	d.Excludes = []string{"*.log"}
	r := newReconciler()
	res := reconcile(t, r, d)
	assert.Equal(t, []ActionKind{ActionWriteExcludes}, res.Plan.Kinds())
	data, err := os.ReadFile(filepath.Join(gitDir, "info", "exclude"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "*.log\n")
	assert.False(t, reconcile(t, r, d).Changed)
}

func TestReconcile_ExcludesAndHooks(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsurePresent, u.dir)
	d.Excludes = []string{"*.log", "build/"}
	d.SkipHooks = true

	res := reconcile(t, r, d)
	assert.Equal(t, []ActionKind{ActionClone, ActionWriteExcludes, ActionSetHooksPath}, res.Plan.Kinds())
	assert.Equal(t, DisabledHooksPath, res.Current.HooksPath)

	res = reconcile(t, r, d)
	assert.False(t, res.Changed)

	d.SkipHooks = false
	res = reconcile(t, r, d)
	assert.Equal(t, []ActionKind{ActionUnsetHooksPath}, res.Plan.Kinds())
	assert.Empty(t, res.Current.HooksPath)
}

func TestReconcile_RemoteRepointed(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	other := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsureLatest, u.dir)
	reconcile(t, r, d)

	d.KeepRemote = true
	d.Sources = map[string]string{DefaultRemote: other.dir}
	_, err := r.Reconcile(context.Background(), d, Options{})
	assert.ErrorIs(t, err, ErrRemoteMismatch)

	d.KeepRemote = false
	res := reconcile(t, r, d)
	assert.Equal(t, other.dir, res.Current.Remotes[DefaultRemote])
	_, commit := headOf(t, d.Path)
	assert.Equal(t, other.second.String(), commit)
}

func TestReconcile_Absent(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	r := newReconciler()
	d := target(t, EnsurePresent, u.dir)
	reconcile(t, r, d)

	d.Ensure = EnsureAbsent
	res := reconcile(t, r, d)
	assert.True(t, res.Changed)
	_, err := os.Stat(d.Path)
	assert.True(t, os.IsNotExist(err))

	assert.False(t, reconcile(t, r, d).Changed)
}

func TestReconcile_DryRun(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	d := target(t, EnsurePresent, u.dir)

	res, err := newReconciler().Reconcile(context.Background(), d, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.True(t, res.Changed)
	assert.Equal(t, []ActionKind{ActionClone}, res.Plan.Kinds())
	_, err = os.Stat(d.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestReconcile_IgnoresInheritedGitDir(t *testing.T) {
	requireGit(t)
	u := newUpstream(t)
	gitDir := filepath.Join(t.TempDir(), "elsewhere")
	t.Setenv("GIT_DIR", gitDir)
	t.Setenv("GIT_WORK_TREE", t.TempDir())

	d := target(t, EnsurePresent, u.dir)
	reconcile(t, newReconciler(), d)
	_, commit := headOf(t, d.Path)
	assert.Equal(t, u.second.String(), commit)
	assert.Equal(t, gitDir, os.Getenv("GIT_DIR"), "parent environment is untouched")
}

func TestReconcile_InvalidDesiredState(t *testing.T) {
	_, err := newReconciler().Reconcile(context.Background(), DesiredState{Path: "relative", Ensure: EnsurePresent}, Options{})
	assert.ErrorIs(t, err, ErrInvalidDesiredState)
}
