package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type filterFlags struct {
	common commonFlags
	value  string
}

func newFilterCmd() *cobra.Command {
	flags := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "filter <hex>",
		Short: "Set the message filter",
		Long: `Write a new 32-bit message filter. Filter number 0 is the most
significant bit. A value of 0 stops data logging. Message filtering must be
enabled in the firmware configuration.`,
		Example: `  # Enable filters 0..15
  rtegdb filter 0xFFFF0000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 1 {
				flags.value = args[0]
			}
			if flags.value == "" {
				return missingFlagError(cmd, "--value")
			}
			return exitOnError(app.RunFilter(app.FilterOptions{
				CommonOptions: flags.common.options(),
				Value:         flags.value,
			}))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringVar(&flags.value, "value", "", "Filter value in hex")

	return cmd
}
