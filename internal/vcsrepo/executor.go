package vcsrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/logger"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/metrics"
)

// ChownFunc recursively assigns ownership below root.
type ChownFunc func(root string, uid, gid int) error

// executor applies plan actions strictly in order through one session.
type executor struct {
	session *session
	chown   ChownFunc
	log     *logger.Logger
	metrics *metrics.Recorder
}

// run executes every action; the first failure aborts the rest. The
// number of actions completed is returned alongside the error.
func (e *executor) run(ctx context.Context, plan Plan) (int, error) {
	for i, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return i, e.wrap(action, err)
		}

		start := time.Now()
		e.log.With("action", string(action.Kind())).Debug(action.String())
		if err := e.apply(ctx, action); err != nil {
			return i, e.wrap(action, err)
		}
		e.metrics.Action(string(action.Kind()))
		e.log.WithFields(map[string]any{
			"action":   string(action.Kind()),
			"duration": time.Since(start).String(),
		}).Debug("action complete")
	}
	return len(plan.Actions), nil
}

func (e *executor) apply(ctx context.Context, action Action) error {
	s := e.session
	switch a := action.(type) {
	case RemoveAll:
		if err := checkRemovable(s.path, a.Path); err != nil {
			return err
		}
		return os.RemoveAll(a.Path)
	case Clone:
		if err := e.mkdirParent(a.Path); err != nil {
			return err
		}
		return s.clone(ctx, a)
	case InitBare:
		if err := e.mkdirParent(a.Path); err != nil {
			return err
		}
		return s.initBare(ctx, a.Path)
	case AddRemote:
		return s.addRemote(ctx, a)
	case SetRemoteURL:
		return s.setRemoteURL(ctx, a.Name, a.URL)
	case Fetch:
		return s.fetch(ctx, a)
	case SetHead:
		return s.setHead(ctx, a.Ref)
	case Reset:
		return s.reset(ctx)
	case Clean:
		return s.clean(ctx)
	case Checkout:
		return s.checkout(ctx, a)
	case UpdateSubmodules:
		return s.updateSubmodules(ctx)
	case WriteExcludes:
		file := excludeFile(s.path, false)
		if a.MetadataDir != "" {
			file = metadataExcludeFile(a.MetadataDir)
		}
		if _, err := appendExcludes(file, a.Lines); err != nil {
			return err
		}
		return e.handOver(filepath.Dir(file))
	case SetHooksPath:
		return s.setConfig(ctx, ActionSetHooksPath, "core.hooksPath", a.Value)
	case UnsetHooksPath:
		return s.unsetConfig(ctx, ActionUnsetHooksPath, "core.hooksPath")
	case AddSafeDirectory:
		return s.addSafeDirectory(ctx, a.Path)
	case RemoveSafeDirectory:
		return s.removeSafeDirectory(ctx, a.Path)
	case Chown:
		chown := e.chown
		if chown == nil {
			chown = ChownTree
		}
		return chown(a.Path, a.UID, a.GID)
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

// mkdirParent creates the directories above path that do not exist yet and
// hands them to the run-as identity.
func (e *executor) mkdirParent(path string) error {
	parent := filepath.Dir(path)
	top := ""
	for dir := parent; ; dir = filepath.Dir(dir) {
		if _, err := os.Lstat(dir); !errors.Is(err, fs.ErrNotExist) {
			break
		}
		top = dir
		if filepath.Dir(dir) == dir {
			break
		}
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	if top == "" {
		return nil
	}
	return e.handOver(top)
}

// handOver gives files this process wrote to the identity git runs as.
func (e *executor) handOver(path string) error {
	cred := e.session.cred
	if cred == nil {
		return nil
	}
	chown := e.chown
	if chown == nil {
		chown = ChownTree
	}
	return chown(path, int(cred.UID), int(cred.GID))
}

// wrap attaches the path and action to failures that are not yet classified.
func (e *executor) wrap(action Action, err error) error {
	var ve *Error
	if errors.As(err, &ve) {
		if ve.Path == "" {
			ve.Path = e.session.path
		}
		if ve.Action == "" {
			ve.Action = string(action.Kind())
		}
		return ve
	}
	code := CodeCommandFailure
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &Error{Code: code, Path: e.session.path, Action: string(action.Kind()), Err: err}
}

// ChownTree walks root without following symlinks and changes the owner of
// every entry; -1 leaves an id unchanged.
func ChownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}
