package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type monitorFlags struct {
	common     commonFlags
	commandDir string
	pollMs     int
}

func newMonitorCmd() *cobra.Command {
	flags := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Interactive monitor on a persistent connection",
		Long: `Keep the GDB server connection open, show the logging status and run
operations on key presses:

  space   transfer data
  F       set the message filter
  S / P   switch to single-shot / post-mortem logging
  0-9     run the command file N.cmd from the command directory
  B       transfer speed benchmark
  H       header information
  c       copy the last output to the clipboard
  ?       help
  q, Esc  quit (detaches with --detach)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return exitOnError(runMonitor(flags))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringVar(&flags.commandDir, "command-dir", "", "Directory with the 0.cmd .. 9.cmd files (default \".\")")
	cmd.Flags().IntVar(&flags.pollMs, "poll-ms", 0, "Status poll interval in ms (default 350)")

	return cmd
}

func runMonitor(flags *monitorFlags) error {
	return app.RunMonitor(app.MonitorOptions{
		CommonOptions:  flags.common.options(),
		CommandDir:     flags.commandDir,
		PollIntervalMs: flags.pollMs,
	})
}
