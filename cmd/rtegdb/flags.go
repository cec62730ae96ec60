package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/rtegdb/internal/app"
)

// commonFlags are the connection and structure flags of every command
// that talks to the target.
type commonFlags struct {
	config      string
	host        string
	port        int
	address     string
	size        int
	filter      string
	clear       bool
	delayMs     int
	bin         string
	msgSize     int
	start       string
	filterNames string
	detach      bool
	logFile     string
	verbose     bool
	debug       bool
	pcapFile    string
	gateway     string
	upload      string
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags) {
	cmd.Flags().StringVar(&f.config, "config", "", "Config file (default \"rtegdb.yaml\" when present)")
	cmd.Flags().StringVar(&f.host, "host", "", "GDB server host (default 127.0.0.1)")
	cmd.Flags().IntVar(&f.port, "port", 0, "GDB server port (default 2331)")
	cmd.Flags().StringVar(&f.address, "address", "", "Address of the g_rtedbg structure in hex")
	cmd.Flags().IntVar(&f.size, "size", 0, "Structure size in bytes (default: read from the header)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Filter value written after each transfer (hex)")
	cmd.Flags().BoolVar(&f.clear, "clear", false, "Clear the circular buffer after each transfer")
	cmd.Flags().IntVar(&f.delayMs, "delay", 0, "Delay in ms between pausing logging and reading the data")
	cmd.Flags().StringVar(&f.bin, "bin", "", "Snapshot output file (default \"data.bin\")")
	cmd.Flags().IntVar(&f.msgSize, "msgsize", 0, "Maximum RSP message size, 256..65535 (default: server PacketSize)")
	cmd.Flags().StringVar(&f.start, "start", "", "Command file executed once after connecting")
	cmd.Flags().StringVar(&f.filterNames, "filter-names", "", "File with one message filter name per line")
	cmd.Flags().BoolVar(&f.detach, "detach", false, "Detach from the target before closing the connection")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Log file path (default: stdout/stderr only)")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug output including the RSP trace")
	cmd.Flags().StringVar(&f.pcapFile, "pcap", "", "Record the RSP exchange to a PCAP file")
	cmd.Flags().StringVar(&f.gateway, "gateway", "", "Reach the GDB server through SSH (ssh://user@host:port?key=...)")
	cmd.Flags().StringVar(&f.upload, "upload", "", "Copy each snapshot to this path on the gateway host")
}

func (f *commonFlags) options() app.CommonOptions {
	return app.CommonOptions{
		ConfigPath:     f.config,
		Host:           f.host,
		Port:           f.port,
		Address:        f.address,
		Size:           f.size,
		Filter:         f.filter,
		Clear:          f.clear,
		DelayMs:        f.delayMs,
		SnapshotFile:   f.bin,
		MaxMessageSize: f.msgSize,
		StartScript:    f.start,
		FilterNames:    f.filterNames,
		Detach:         f.detach,
		LogFile:        f.logFile,
		Verbose:        f.verbose,
		Debug:          f.debug,
		PCAPFile:       f.pcapFile,
		Gateway:        f.gateway,
		Upload:         f.upload,
	}
}
