package app

import (
	"fmt"
)

// ScriptOptions name the command files run by the script command.
type ScriptOptions struct {
	CommonOptions
	Files []string
}

// RunScript executes command files in order over one connection. A failing
// command ends its own file only; a missing file stops the run.
func RunScript(opts ScriptOptions) error {
	if len(opts.Files) == 0 {
		return fmt.Errorf("no command files given")
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "script")
	if err != nil {
		return err
	}
	defer e.Close()

	for _, path := range opts.Files {
		if err := e.runScript(ctx, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(e.out, "%s done\n", path)
	}
	return nil
}
