package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "braid",
		Short:         "Merge device logs into one time-ordered, pageable stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default is $HOME/.config/braid/config.yml)")

	rootCmd.AddCommand(newMergeCommand(&configFlag))
	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newInspectCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
