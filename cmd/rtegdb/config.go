package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type configInitFlags struct {
	path  string
	force bool
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return app.RunConfigInit(app.ConfigInitOptions{
				Path:  flags.path,
				Force: flags.force,
				Out:   cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&flags.path, "config", "", "Config file to create (default \"rtegdb.yaml\")")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")

	return cmd
}
