package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/tturner/rtegdb/internal/metrics"
	"github.com/tturner/rtegdb/internal/rtedbg"
	"github.com/tturner/rtegdb/internal/script"
	"github.com/tturner/rtegdb/internal/tui"
)

// MonitorOptions configure the interactive monitor. A zero PollIntervalMs
// selects the default status poll interval.
type MonitorOptions struct {
	CommonOptions
	// CommandDir overrides scripts.command_dir.
	CommandDir     string
	PollIntervalMs int
}

// RunMonitor keeps the connection open and runs the interactive monitor.
func RunMonitor(opts MonitorOptions) error {
	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "monitor")
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.CommandDir != "" {
		e.cfg.Scripts.CommandDir = opts.CommandDir
	}
	// The terminal belongs to the monitor; log lines only go to the file.
	e.log.SetConsole(io.Discard, io.Discard)

	return tui.Run(ctx, &monitor{e: e}, tui.Options{
		Title:        fmt.Sprintf("%s:%d @ 0x%08X", e.cfg.Server.Host, e.cfg.Server.Port, uint32(e.cfg.Structure.Address)),
		PollInterval: time.Duration(opts.PollIntervalMs) * time.Millisecond,
	})
}

// monitor adapts an open connection to tui.Controller.
type monitor struct {
	e *env
}

func (m *monitor) Status(ctx context.Context) (rtedbg.Status, error) {
	return m.e.dev.Status(ctx)
}

func (m *monitor) Transfer(ctx context.Context) (string, error) {
	e := m.e
	res, err := e.transfer(ctx, false)
	if err != nil {
		return "", err
	}
	lines := []string{transferSummary(res, e.cfg.Structure.SnapshotFile)}
	if msg, err := e.upload(ctx); err != nil {
		return lines[0], err
	} else if msg != "" {
		lines = append(lines, msg)
	}
	if e.cfg.Scripts.Decode != "" {
		var out bytes.Buffer
		if err := runDecode(ctx, e.cfg.Scripts.Decode, &out, e.log); err != nil {
			return strings.TrimRight(out.String(), "\n"), err
		}
		if s := strings.TrimRight(out.String(), "\n"); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (m *monitor) SingleShot(ctx context.Context) (string, error) {
	return m.e.switchMode(ctx, true)
}

func (m *monitor) PostMortem(ctx context.Context) (string, error) {
	return m.e.switchMode(ctx, false)
}

func (m *monitor) SetFilter(ctx context.Context, value uint32) (string, error) {
	return m.e.setFilter(ctx, value)
}

func (m *monitor) RunScript(ctx context.Context, n int) (string, error) {
	e := m.e
	path := filepath.Join(e.cfg.Scripts.CommandDir, fmt.Sprintf("%d.cmd", n))
	var out bytes.Buffer
	exec := script.NewExecutor(e.sess, e.dev, script.Options{Logger: e.log, Out: &out})
	res, err := exec.RunFile(ctx, path)
	if err != nil {
		return strings.TrimRight(out.String(), "\n"), err
	}
	for _, step := range res.Steps {
		for _, line := range step.Output {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	if errs := res.Errors(); len(errs) > 0 {
		fmt.Fprintf(&out, "%d script lines failed, first: %v\n", len(errs), errs[0])
	}
	fmt.Fprintf(&out, "%s: %d commands", filepath.Base(path), res.Commands)
	return out.String(), nil
}

func (m *monitor) Benchmark(ctx context.Context) (string, error) {
	e := m.e
	bc := e.cfg.Benchmark
	sink, err := e.benchmark(ctx, bc.Repetitions, bc.MaxDuration, nil)
	if sink == nil {
		return "", err
	}
	if werr := e.writeBenchmark(sink, bc.CSV, bc.JSON); werr != nil {
		return "", werr
	}
	return strings.TrimRight(metrics.FormatSummary(sink.Summary()), "\n"), err
}

func (m *monitor) Header(ctx context.Context) (string, error) {
	return m.e.describeHeader(ctx)
}

var _ tui.Controller = (*monitor)(nil)
