package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var debug bool

	root := &cobra.Command{
		Use:   "gomerge",
		Short: "Three-way tree merging with conflict tracking",
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose diagnostics")

	logger := func() *zap.Logger {
		if debug {
			l, err := zap.NewDevelopment()
			if err == nil {
				return l
			}
		}
		l, err := zap.NewProduction()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMergeCmd(logger))
	root.AddCommand(newConflictsCmd())
	root.AddCommand(newResolveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("gomerge 0.1.0-dev")
		},
	}
}
