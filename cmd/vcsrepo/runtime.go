package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/term"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/config"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/logger"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/metrics"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

// stdoutIsTerminal decides between the interactive and plain renderers.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runtime bundles the services one command invocation needs.
type runtime struct {
	settings   config.Settings
	log        *logger.Logger
	metrics    *metrics.Recorder
	reconciler *vcsrepo.Reconciler
}

// newRuntime merges environment defaults, manifest settings and flags,
// in increasing precedence.
func newRuntime(ctx context.Context, root *rootFlags, manifest config.Settings, logOut io.Writer) (*runtime, error) {
	defaults, err := config.LoadDefaults(ctx)
	if err != nil {
		return nil, err
	}
	settings := manifest.Effective(defaults)
	if root.dryRun {
		settings.DryRun = true
	}
	switch {
	case root.logLevel != "":
		settings.LogLevel = root.logLevel
	case root.verbose:
		settings.LogLevel = "debug"
	}

	log, err := logger.New(logger.Options{Level: settings.LogLevel, HumanReadable: true, Writer: logOut})
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	rec := metrics.New()
	g := vcsrepo.NewGit(settings.Git, time.Duration(settings.Timeout))
	return &runtime{
		settings:   settings,
		log:        log,
		metrics:    rec,
		reconciler: vcsrepo.NewReconciler(g, log, rec),
	}, nil
}

// selectStates converts the manifest resources, keeping only the paths in
// only when it is non-empty.
func selectStates(cfg *config.Config, only []string) ([]vcsrepo.DesiredState, error) {
	states, err := cfg.DesiredStates()
	if err != nil {
		return nil, err
	}
	if len(only) == 0 {
		return states, nil
	}

	wanted := make([]string, 0, len(only))
	for _, p := range only {
		wanted = append(wanted, filepath.Clean(p))
	}
	selected := states[:0:0]
	for _, d := range states {
		if slices.Contains(wanted, d.Path) {
			selected = append(selected, d)
		}
	}
	for _, p := range wanted {
		if !slices.ContainsFunc(selected, func(d vcsrepo.DesiredState) bool { return d.Path == p }) {
			return nil, fmt.Errorf("--only path %s is not declared in the manifest", p)
		}
	}
	return selected, nil
}
