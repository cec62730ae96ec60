package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type headerFlags struct {
	common commonFlags
	json   bool
}

func newHeaderCmd() *cobra.Command {
	flags := &headerFlags{}

	cmd := &cobra.Command{
		Use:   "header",
		Short: "Show the logging structure header",
		Long: `Read the g_rtedbg header without pausing logging and print the
configuration, buffer size, timestamp frequency and enabled filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return exitOnError(app.RunHeader(app.HeaderOptions{
				CommonOptions: flags.common.options(),
				JSON:          flags.json,
			}))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the header as JSON")

	return cmd
}
