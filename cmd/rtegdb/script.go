package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type scriptFlags struct {
	common commonFlags
	files  []string
}

func newScriptCmd() *cobra.Command {
	flags := &scriptFlags{}

	cmd := &cobra.Command{
		Use:   "script [file...]",
		Short: "Run GDB command files",
		Long: `Execute command files over one connection. Each line is a GDB remote
protocol command sent as is, or one of the pseudo-commands:

  ## comment
  #delay <ms>
  #init <rte_cfg hex> <timestamp frequency>
  #filter <hex>
  #echo <text>

The first failing protocol command stops the run.`,
		Example: `  rtegdb script reset.cmd
  rtegdb script --file init.cmd --file 1.cmd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			files := append(append([]string{}, flags.files...), args...)
			if len(files) == 0 {
				return missingFlagError(cmd, "--file")
			}
			flags.files = files
			return exitOnError(runScript(flags))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringArrayVar(&flags.files, "file", nil, "Command file to run (repeatable)")

	return cmd
}

func runScript(flags *scriptFlags) error {
	return app.RunScript(app.ScriptOptions{
		CommonOptions: flags.common.options(),
		Files:         flags.files,
	})
}
