package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "musicctl",
		Short:         "Operate the music API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newDevTokenCmd(),
		newScheduleCmd(),
		newFingerprintCmd(),
		newConfigCmd(),
		newServeCmd(),
	)
	return root
}
