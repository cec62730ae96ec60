package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type modeFlags struct {
	common commonFlags
	mode   string
}

func newModeCmd() *cobra.Command {
	flags := &modeFlags{}

	cmd := &cobra.Command{
		Use:   "mode single|post-mortem",
		Short: "Switch between single-shot and post-mortem logging",
		Long: `Single-shot logging stops when the buffer is full; post-mortem logging
overwrites the oldest data. The buffer write index is reset. Single-shot
mode must be enabled in the firmware configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 1 {
				flags.mode = args[0]
			}
			if flags.mode == "" {
				return missingFlagError(cmd, "--mode")
			}
			return exitOnError(app.RunMode(app.ModeOptions{
				CommonOptions: flags.common.options(),
				Mode:          flags.mode,
			}))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringVar(&flags.mode, "mode", "", "Logging mode: single|post-mortem")

	return cmd
}
