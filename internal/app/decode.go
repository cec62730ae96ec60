package app

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/tturner/rtegdb/internal/logging"
)

// runDecode runs the decode command line through the system shell. Its
// output goes to out and to the log file.
func runDecode(ctx context.Context, command string, out io.Writer, logger *logging.Logger) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	writers := []io.Writer{out}
	if f := logger.File(); f != nil {
		writers = append(writers, f)
	}
	w := logging.NewMultiWriter(writers...)
	cmd.Stdout = w
	cmd.Stderr = w

	logger.Verbose("Running decode command: %s", command)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("decode command %q: %w", command, err)
	}
	logger.Verbose("Decode command finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
