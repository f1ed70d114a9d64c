package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/config"
	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

func newProbeCmd(root *rootFlags) *cobra.Command {
	var ensure string

	cmd := &cobra.Command{
		Use:   "probe PATH",
		Short: "Print what is currently at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			e, err := vcsrepo.ParseEnsure(ensure)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), root, config.Settings{}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c, err := rt.reconciler.Git.Probe(cmd.Context(), vcsrepo.DesiredState{Path: path, Ensure: e})
			if err != nil {
				return err
			}
			writeState(cmd.OutOrStdout(), c)
			return nil
		},
	}

	cmd.Flags().StringVar(&ensure, "ensure", string(vcsrepo.EnsurePresent), "Shape to probe for (present, bare, mirror)")
	return cmd
}

func writeState(out io.Writer, c vcsrepo.CurrentState) {
	row := func(key string, value any) {
		fmt.Fprintf(out, "%-16s %v\n", key+":", value)
	}

	row("path", c.Path)
	row("state", c.Describe())
	if !c.IsRepo {
		return
	}
	row("metadata", c.MetadataDir)
	row("head", c.HeadRef)
	row("commit", c.HeadCommit)
	row("shallow", c.IsShallow)
	row("dirty", c.HasUncommittedChanges)
	if c.Unreadable {
		row("unreadable", true)
	}

	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row("remote "+name, c.Remotes[name])
	}

	if len(c.Excludes) > 0 {
		row("excludes", strings.Join(c.Excludes, ", "))
	}
	if c.HooksPath != "" {
		row("hooks path", c.HooksPath)
	}
	row("safe directory", slices.Contains(c.SafeDirectories, c.Path))
	if c.UID >= 0 {
		row("owner", fmt.Sprintf("%d:%d", c.UID, c.GID))
	}
}
