package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type initFlags struct {
	common    commonFlags
	rteCfg    string
	frequency string
}

func newInitCmd() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init <rte_cfg> <frequency>",
		Short: "Initialize the logging structure",
		Long: `Write a fresh header and reset the circular buffer, for firmware that
does not initialize g_rtedbg itself. The structure size must be given with
--size or in the config file.`,
		Example: `  rtegdb init 0x0600000E 64000000 --size 4120`,
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) > 0 {
				flags.rteCfg = args[0]
			}
			if len(args) > 1 {
				flags.frequency = args[1]
			}
			if flags.rteCfg == "" {
				return missingFlagError(cmd, "--cfg")
			}
			if flags.frequency == "" {
				return missingFlagError(cmd, "--frequency")
			}
			return exitOnError(app.RunInit(app.InitOptions{
				CommonOptions: flags.common.options(),
				Config:        flags.rteCfg,
				Frequency:     flags.frequency,
			}))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringVar(&flags.rteCfg, "cfg", "", "rte_cfg configuration word in hex")
	cmd.Flags().StringVar(&flags.frequency, "frequency", "", "Timestamp counter frequency in Hz")

	return cmd
}
