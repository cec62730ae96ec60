package app

import (
	"fmt"
	"io"
	"os"

	"github.com/tturner/rtegdb/internal/config"
)

type ConfigInitOptions struct {
	Path  string
	Force bool
	Out   io.Writer
}

// RunConfigInit writes the default configuration file.
func RunConfigInit(opts ConfigInitOptions) error {
	path := opts.Path
	if path == "" {
		path = config.DefaultPath
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created default config file: %s\n", path)
	fmt.Fprintf(out, "Set structure.address to the address of g_rtedbg from the map file.\n")
	return nil
}
