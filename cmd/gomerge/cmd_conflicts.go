package main

import (
	"fmt"

	"github.com/breezy-team/gomerge/pkg/config"
	"github.com/breezy-team/gomerge/pkg/worktree"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newConflictsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved conflicts in the working tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := config.FindRoot(dir)
			if err != nil {
				return err
			}
			wt, err := worktree.Open(ctl, nil)
			if err != nil {
				return err
			}
			defer wt.Close()

			list, err := wt.Conflicts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no conflicts")
				return nil
			}
			red := color.New(color.FgRed)
			yellow := color.New(color.FgYellow)
			for _, c := range list {
				if c.IsHandled() {
					yellow.Fprintf(out, "%-24s", c.Kind)
				} else {
					red.Fprintf(out, "%-24s", c.Kind)
				}
				fmt.Fprintf(out, " %s\n", c.Describe())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "directory", "d", "", "working tree to inspect (default: walk up from cwd)")
	return cmd
}
