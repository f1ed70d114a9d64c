package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/config"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/tui"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

type applyOptions struct {
	manifestOptions
	MetricsTextfile string
	Interactive     bool
}

func newApplyCmd(root *rootFlags) *cobra.Command {
	opts := applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile every resource in a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Interactive = stdoutIsTerminal()
			if err := validateManifestOptions(opts.manifestOptions); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runApply(ctx, root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the manifest")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "Reconcile only these paths")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

type outcome struct {
	result vcsrepo.Result
	err    error
}

func runApply(ctx context.Context, root *rootFlags, opts applyOptions, out, errOut io.Writer) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	states, err := selectStates(cfg, opts.Only)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, root, cfg.Settings, errOut)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths := make([]string, len(states))
	for i, d := range states {
		paths[i] = d.Path
	}
	rep := newReporter(tui.NewModel(opts.ConfigPath, paths, rt.settings.DryRun), opts.Interactive, cancel)
	rep.start()

	outcomes := make([]outcome, len(states))
	var g errgroup.Group
	g.SetLimit(rt.settings.Parallel)
	for i, d := range states {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = outcome{err: ctx.Err()}
				rep.send(tui.ResourceDoneMsg{Path: d.Path, Err: ctx.Err()})
				return nil
			}
			rep.send(tui.ResourceStartMsg{Path: d.Path})
			res, err := rt.reconciler.Reconcile(ctx, d, vcsrepo.Options{DryRun: rt.settings.DryRun})
			outcomes[i] = outcome{result: res, err: err}
			rep.send(tui.ResourceDoneMsg{Path: d.Path, Result: res, Err: err})
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	if err := rep.finish(out); err != nil {
		return err
	}

	if opts.MetricsTextfile != "" {
		if err := rt.metrics.WriteTextfile(opts.MetricsTextfile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d resources failed", failed, len(states))
	}
	return nil
}

// reporter feeds results to a bubbletea program on a terminal, or folds
// them into the model for a single plain render at the end.
type reporter struct {
	mu          sync.Mutex
	state       tui.Model
	interactive bool
	cancel      context.CancelFunc

	program    *tea.Program
	programErr error
	done       chan struct{}
}

func newReporter(state tui.Model, interactive bool, cancel context.CancelFunc) *reporter {
	return &reporter{state: state, interactive: interactive, cancel: cancel}
}

func (r *reporter) start() {
	if !r.interactive {
		return
	}
	r.program = tea.NewProgram(r.state)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		final, err := r.program.Run()
		r.programErr = err
		if m, ok := final.(tui.Model); ok && m.Cancelled() {
			r.cancel()
		}
	}()
}

func (r *reporter) send(msg tea.Msg) {
	if r.interactive {
		r.program.Send(msg)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, _ := r.state.Update(msg)
	if m, ok := updated.(tui.Model); ok {
		r.state = m
	}
}

func (r *reporter) finish(out io.Writer) error {
	if r.interactive {
		r.program.Send(tea.QuitMsg{})
		<-r.done
		return r.programErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(out, r.state.View())
	return nil
}
