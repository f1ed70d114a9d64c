package vcsrepo

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/gitexec"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/logger"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/metrics"
)

// Reconciler runs probe, resolve, plan, execute and verify for one path at
// a time. A Reconciler holds no per-path state and may be shared between
// goroutines reconciling distinct paths.
type Reconciler struct {
	Git     *Git
	Logger  *logger.Logger
	Metrics *metrics.Recorder
	// Chown replaces ChownTree, mainly for tests.
	Chown ChownFunc
	// LookupOwner maps Owner and Group to numeric ids; nil uses the
	// system user database.
	LookupOwner func(owner, group string) (uid, gid int, err error)
}

// Options tune a single reconciliation.
type Options struct {
	// DryRun computes the plan without executing it.
	DryRun bool
}

// Result reports what a reconciliation did.
type Result struct {
	Path    string
	Ensure  Ensure
	Changed bool
	DryRun  bool
	// Actions holds the executed actions, or the planned ones on a dry run.
	Actions  []Action
	Notices  []string
	Plan     Plan
	Resolved Resolved
	// Current is the state after execution, or the probed state when
	// nothing ran.
	Current CurrentState
	Elapsed time.Duration
}

// NewReconciler wires a reconciler around the git driver.
func NewReconciler(g *Git, log *logger.Logger, rec *metrics.Recorder) *Reconciler {
	return &Reconciler{Git: g, Logger: log, Metrics: rec}
}

// Reconcile converges d.Path toward d. It is synchronous; concurrent calls
// must target distinct paths.
func (r *Reconciler) Reconcile(ctx context.Context, d DesiredState, opts Options) (Result, error) {
	start := time.Now()
	log := r.Logger.ForResource(d.Path, string(d.Ensure))

	res, err := r.reconcile(ctx, d, opts, log)
	res.Elapsed = time.Since(start)

	outcome := metrics.OutcomeUnchanged
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		log.Error(err, "reconciliation failed")
	case opts.DryRun:
		outcome = metrics.OutcomePlanned
		log.With("actions", len(res.Actions)).Info("plan computed")
	case res.Changed:
		outcome = metrics.OutcomeChanged
		log.WithFields(map[string]any{
			"actions":  len(res.Actions),
			"duration": res.Elapsed.String(),
		}).Info("converged")
	default:
		log.Debug("already converged")
	}
	r.Metrics.Reconciled(string(d.Ensure), outcome, string(CodeOf(err)), res.Elapsed)
	return res, err
}

func (r *Reconciler) reconcile(ctx context.Context, d DesiredState, opts Options, log *logger.Logger) (Result, error) {
	res := Result{Path: d.Path, Ensure: d.Ensure, DryRun: opts.DryRun}
	if err := d.Validate(); err != nil {
		return res, err
	}
	d.Path = filepath.Clean(d.Path)
	res.Path = d.Path

	if d.Owner != "" || d.Group != "" {
		uid, gid, err := r.lookupOwner(d.Owner, d.Group)
		if err != nil {
			return res, &Error{Code: CodeInvalidDesiredState, Path: d.Path, Err: err}
		}
		d = d.WithOwnerIDs(uid, gid)
	}

	s, err := r.Git.session(d)
	if err != nil {
		return res, err
	}

	current, err := s.probe(ctx)
	if err != nil {
		return res, err
	}
	res.Current = current
	log.With("shape", current.Shape().String()).Debug(current.Describe())

	resolved, err := r.resolve(ctx, s, d, current)
	if err != nil {
		return res, withPath(err, d.Path)
	}
	res.Resolved = resolved

	plan, err := BuildPlan(d, current, resolved)
	if err != nil {
		return res, err
	}
	res.Plan = plan
	res.Notices = plan.Notices
	for _, notice := range plan.Notices {
		log.Warn(notice)
	}

	if opts.DryRun || plan.Empty() {
		res.Actions = plan.Actions
		res.Changed = !plan.Empty()
		return res, nil
	}

	ex := &executor{session: s, chown: r.Chown, log: log, metrics: r.Metrics}
	done, err := ex.run(ctx, plan)
	res.Actions = plan.Actions[:done]
	res.Changed = done > 0
	if err != nil {
		return res, err
	}

	after, err := s.probe(ctx)
	if err != nil {
		return res, err
	}
	res.Current = after
	plan.Resolved = settle(plan, after)
	res.Resolved = plan.Resolved
	return res, verify(d, plan, after)
}

// resolve picks the commit the plan converges to. The remote is only
// contacted when the local repository cannot answer.
func (r *Reconciler) resolve(ctx context.Context, s *session, d DesiredState, c CurrentState) (Resolved, error) {
	shape := c.Shape()
	want := shapeFor(d.Ensure)

	switch {
	case d.Ensure == EnsureAbsent:
		return Resolved{}, nil
	case !d.Force && (shape == ShapeForeign || (c.IsRepo && shape != want && !c.resumable(want))):
		// The planner rejects this state; do not touch the network.
		return Resolved{}, nil
	case !d.Ensure.WorkingCopy():
		if shape == want && c.HeadCommit != "" {
			// Bare repositories are never moved to a revision.
			return Resolved{}, nil
		}
		listing, err := s.lsRemote(ctx, d.SourceURL())
		if err != nil {
			return Resolved{}, err
		}
		return ResolveRevision(ctx, listing, "", nil)
	}

	existing := shape == ShapeWorking
	if existing && d.Ensure == EnsurePresent && c.HeadCommit != "" {
		if d.Revision == "" {
			return currentRevision(c), nil
		}
		if listing, err := r.localListing(d); err == nil {
			resolved, err := ResolveRevision(ctx, listing, d.Revision, s.lookup)
			switch {
			case err == nil && !resolved.Abbrev:
				return resolved, nil
			case err != nil && CodeOf(err) != CodeRevisionNotFound:
				return Resolved{}, err
			}
		}
	}

	listing, err := s.lsRemote(ctx, d.SourceURL())
	if err != nil {
		return Resolved{}, err
	}
	var lookup CommitLookup
	if existing {
		lookup = s.lookup
	}
	return ResolveRevision(ctx, listing, d.Revision, lookup)
}

func (r *Reconciler) localListing(d DesiredState) (RefListing, error) {
	repo, err := git.PlainOpen(d.Path)
	if err != nil {
		return RefListing{}, err
	}
	return localListing(repo, d.RemoteName())
}

// lookup adapts revParse to a CommitLookup.
func (s *session) lookup(ctx context.Context, prefix string) (string, bool, error) {
	return s.revParse(ctx, prefix)
}

func (r *Reconciler) lookupOwner(owner, group string) (int, int, error) {
	if r.LookupOwner != nil {
		return r.LookupOwner(owner, group)
	}
	uid, gid := -1, -1
	if owner != "" {
		id, err := gitexec.LookupUser(owner)
		if err != nil {
			return 0, 0, err
		}
		uid = int(id)
	}
	if group != "" {
		id, err := gitexec.LookupGroup(group)
		if err != nil {
			return 0, 0, err
		}
		gid = int(id)
	}
	return uid, gid, nil
}

func withPath(err error, path string) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Code: CodeCommandFailure, Path: path, Action: "resolve", Err: err}
	}
	if e.Path == "" {
		e.Path = path
	}
	return err
}
