package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

type transferFlags struct {
	common     commonFlags
	decode     string
	noProgress bool
}

func newTransferCmd() *cobra.Command {
	flags := &transferFlags{}

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer the logged data to a binary file",
		Long: `Pause logging, read the complete g_rtedbg structure from the target and
write it to the snapshot file (default data.bin). The message filter is
restored afterwards, or replaced by --filter when given.

With --clear the circular buffer is erased after the transfer. A decode
command (--decode or scripts.decode in the config file) is run after a
successful transfer and its output is copied to the log file.`,
		Example: `  # Transfer with the structure address from the map file
  rtegdb transfer --address 0x20000000

  # Transfer, clear the buffer and decode
  rtegdb transfer --clear --decode "RTEmsg.exe output format data.bin"

  # Use a J-Link GDB server on another host and record the exchange
  rtegdb transfer --host 10.0.0.7 --port 2331 --pcap rsp.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return exitOnError(runTransfer(flags))
		},
	}

	addCommonFlags(cmd, &flags.common)
	cmd.Flags().StringVar(&flags.decode, "decode", "", "Command run after a successful transfer")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Do not show the progress bar")

	return cmd
}

func runTransfer(flags *transferFlags) error {
	return app.RunTransfer(app.TransferOptions{
		CommonOptions: flags.common.options(),
		Decode:        flags.decode,
		Progress:      !flags.noProgress,
	})
}
