package main

import (
	"fmt"
	"path/filepath"

	"github.com/breezy-team/gomerge/pkg/config"
	"github.com/breezy-team/gomerge/pkg/merge"
	"github.com/breezy-team/gomerge/pkg/worktree"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMergeCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		algorithm string
		showBase  bool
		reprocess bool
	)

	cmd := &cobra.Command{
		Use:   "merge <this-dir> <base-dir> <other-dir>",
		Short: "Three-way merge OTHER's changes since BASE into THIS",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			thisDir, baseDir, otherDir := args[0], args[1], args[2]

			cfg, err := config.Load(filepath.Join(thisDir, config.ControlDir))
			if err != nil {
				cfg = config.Default()
			}
			if algorithm == "" {
				algorithm = cfg.Algorithm
			}

			thisTree, err := loadDirTree(thisDir)
			if err != nil {
				return err
			}
			baseTree, err := loadDirTree(baseDir)
			if err != nil {
				return err
			}
			otherTree, err := loadDirTree(otherDir)
			if err != nil {
				return err
			}

			wt, err := worktree.Open(filepath.Join(thisDir, config.ControlDir), thisTree)
			if err != nil {
				return err
			}
			defer wt.Close()

			merger, err := merge.NewMerge3Merger(wt, wt.Tree(), baseTree, otherTree, merge.Options{
				Algorithm: merge.Algorithm(algorithm),
				ShowBase:  showBase,
				Reprocess: reprocess,
				Diff3Path: cfg.Diff3Path,
				Logger:    logger(),
			})
			if err != nil {
				return err
			}
			list, err := merger.DoMerge()
			if err != nil {
				return err
			}
			if err := writeDirTree(thisDir, wt.Tree()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "merge completed cleanly")
				return nil
			}
			red := color.New(color.FgRed)
			for _, c := range list {
				red.Fprintf(out, "conflict: ")
				fmt.Fprintln(out, c.Describe())
			}
			fmt.Fprintf(out, "merge completed with %d conflict", len(list))
			if len(list) != 1 {
				fmt.Fprint(out, "s")
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "fix conflicts and run gomerge resolve")
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "text merge algorithm: merge3, weave, lca or diff3")
	cmd.Flags().BoolVar(&showBase, "show-base", false, "include base text inside conflict markers")
	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "run the conflict reduction pass")
	return cmd
}
