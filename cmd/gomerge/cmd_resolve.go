package main

import (
	"fmt"
	"path/filepath"

	"github.com/breezy-team/gomerge/pkg/config"
	"github.com/breezy-team/gomerge/pkg/merge"
	"github.com/breezy-team/gomerge/pkg/worktree"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var (
		action       string
		recurse      bool
		ignoreMisses bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [paths...]",
		Short: "Resolve recorded conflicts",
		Long: `Resolve applies a resolution action to the conflicts matching the given
paths, or to every conflict when no path is given. Actions: done (mark
resolved), take_this (keep the local side), take_other (keep the merged
side), auto (text conflicts only: verify no markers remain).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := config.FindRoot("")
			if err != nil {
				return err
			}
			root := filepath.Dir(ctl)

			current, err := loadDirTree(root)
			if err != nil {
				return err
			}
			wt, err := worktree.Open(ctl, current)
			if err != nil {
				return err
			}
			defer wt.Close()

			resolved, misses, err := merge.Resolve(wt, args, action, recurse, ignoreMisses)

			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow)
			for _, miss := range misses {
				if miss.Exists {
					yellow.Fprintf(out, "%s is not conflicted\n", miss.Path)
				} else {
					yellow.Fprintf(out, "%s does not exist\n", miss.Path)
				}
			}
			green := color.New(color.FgGreen)
			for _, c := range resolved {
				green.Fprintf(out, "resolved: ")
				fmt.Fprintln(out, c.Describe())
			}
			if werr := writeDirTree(root, wt.Tree()); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&action, "action", "done", "resolution action: done, take_this, take_other or auto")
	cmd.Flags().BoolVar(&recurse, "recurse", false, "select conflicts under matched directories too")
	cmd.Flags().BoolVar(&ignoreMisses, "ignore-misses", false, "silently skip paths that match no conflict")
	return cmd
}
