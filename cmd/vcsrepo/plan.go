package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/config"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func newPlanCmd(root *rootFlags) *cobra.Command {
	opts := manifestOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the actions apply would take, without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateManifestOptions(opts); err != nil {
				return err
			}
			return runPlan(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the manifest")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "Plan only these paths")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runPlan(ctx context.Context, root *rootFlags, opts manifestOptions, out, errOut io.Writer) error {
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

	failed, changes := 0, 0
	for i, d := range states {
		if i > 0 {
			fmt.Fprintln(out)
		}
		res, err := rt.reconciler.Reconcile(ctx, d, vcsrepo.Options{DryRun: true})
		writePlan(out, d, res, err)
		switch {
		case err != nil:
			failed++
		case res.Changed:
			changes++
		}
	}

	fmt.Fprintf(out, "\n%d to change, %d unchanged, %d failed\n", changes, len(states)-changes-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d resources could not be planned", failed, len(states))
	}
	return nil
}

func writePlan(out io.Writer, d vcsrepo.DesiredState, res vcsrepo.Result, err error) {
	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s (%s)", d.Path, d.Ensure)))
	if err != nil {
		fmt.Fprintf(out, "  %s\n", errorStyle.Render("error: "+err.Error()))
		return
	}

	fmt.Fprintf(out, "  current: %s\n", res.Current.Describe())
	if !res.Resolved.IsZero() {
		fmt.Fprintf(out, "  target:  %s\n", res.Resolved)
	}
	if res.Plan.Empty() {
		fmt.Fprintln(out, "  no changes")
	}
	for i, a := range res.Plan.Actions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, a)
		if we, ok := a.(vcsrepo.WriteExcludes); ok && we.Diff != "" {
			for _, line := range strings.Split(strings.TrimRight(we.Diff, "\n"), "\n") {
				fmt.Fprintf(out, "     %s\n", line)
			}
		}
	}
	for _, n := range res.Plan.Notices {
		fmt.Fprintf(out, "  %s\n", noticeStyle.Render("! "+n))
	}
}
