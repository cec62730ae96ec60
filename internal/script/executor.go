// Package script runs command files against a GDB server session.
//
// Each line is either a pseudo-command starting with '#' that is handled
// locally, or an opaque RSP command sent verbatim:
//
//	## comment
//	#delay <ms>
//	#init <rte_cfg hex> <timestamp frequency>
//	#filter <hex>
//	#echo <text>
//	qRcmd,7265736574
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/logging"
	"github.com/tturner/rtegdb/internal/rtedbg"
)

// Session is the protocol side used by scripts.
type Session interface {
	Execute(ctx context.Context, cmd string) ([]string, error)
	FlushUnsolicited() []byte
}

// Device handles the #init and #filter pseudo-commands.
type Device interface {
	Initialize(ctx context.Context, cfg rtedbg.ConfigWord, frequency uint32) error
	SetFilter(ctx context.Context, value uint32) error
}

// StepKind classifies a script line.
type StepKind int

const (
	StepCommand StepKind = iota
	StepComment
	StepDelay
	StepInit
	StepFilter
	StepEcho
	StepUnknown
)

func (k StepKind) String() string {
	switch k {
	case StepComment:
		return "comment"
	case StepDelay:
		return "delay"
	case StepInit:
		return "init"
	case StepFilter:
		return "filter"
	case StepEcho:
		return "echo"
	case StepUnknown:
		return "unknown"
	default:
		return "command"
	}
}

// Step is one executed line.
type Step struct {
	Line   int
	Text   string
	Kind   StepKind
	Output []string
	Err    error
}

// Result collects the executed steps. Failed points at the command that
// stopped the script.
type Result struct {
	Steps    []Step
	Commands int
	Failed   *Step
}

// Errors returns every step error, including pseudo-command failures that
// did not stop the script.
func (r *Result) Errors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", s.Line, s.Err))
		}
	}
	return errs
}

// Err joins all step errors.
func (r *Result) Err() error {
	return errors.Join(r.Errors()...)
}

// Options configure an Executor.
type Options struct {
	Logger *logging.Logger
	// Out receives #echo text. Defaults to stdout.
	Out io.Writer
	// Sleep implements #delay. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor runs scripts. The device may be nil, in which case #init and
// #filter fail.
type Executor struct {
	sess    Session
	dev     Device
	opts    Options
	flushed bool
}

// NewExecutor returns an executor using sess for commands.
func NewExecutor(sess Session, dev Device, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Executor{sess: sess, dev: dev, opts: opts}
}

// RunFile executes the script at path.
func (e *Executor) RunFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	e.opts.Logger.Verbose("Running script %s", path)
	return e.Run(ctx, f)
}

// Run executes the script read from r. The returned error is the command
// failure that stopped the script, a read error or a canceled context.
// Pseudo-command failures only appear in the result.
func (e *Executor) Run(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{}
	e.flushed = false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		step := e.runLine(ctx, lineNo, line)
		res.Steps = append(res.Steps, step)
		if step.Kind != StepCommand {
			if step.Err != nil {
				e.opts.Logger.Error("Script line %d (%s): %v", lineNo, line, step.Err)
			}
			continue
		}

		res.Commands++
		if step.Err != nil {
			res.Failed = &res.Steps[len(res.Steps)-1]
			return res, fmt.Errorf("script line %d %q: %w", lineNo, line, step.Err)
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read script: %w", err)
	}
	return res, nil
}

func (e *Executor) runLine(ctx context.Context, lineNo int, line string) Step {
	step := Step{Line: lineNo, Text: line}
	if !strings.HasPrefix(line, "#") {
		step.Kind = StepCommand
		step.Output, step.Err = e.command(ctx, line)
		return step
	}

	if strings.HasPrefix(line, "##") {
		step.Kind = StepComment
		return step
	}

	name, args, _ := strings.Cut(line[1:], " ")
	args = strings.TrimSpace(args)
	switch name {
	case "delay":
		step.Kind = StepDelay
		step.Err = e.delay(ctx, args)
	case "init":
		step.Kind = StepInit
		step.Err = e.initialize(ctx, args)
	case "filter":
		step.Kind = StepFilter
		step.Err = e.filter(ctx, args)
	case "echo":
		step.Kind = StepEcho
		fmt.Fprintln(e.opts.Out, args)
	default:
		step.Kind = StepUnknown
		e.opts.Logger.Info("Unknown script command skipped: %s", line)
	}
	return step
}

func (e *Executor) command(ctx context.Context, cmd string) ([]string, error) {
	if !e.flushed {
		if stale := e.sess.FlushUnsolicited(); len(stale) > 0 {
			e.opts.Logger.Verbose("Discarded %d bytes of unsolicited input", len(stale))
		}
		e.flushed = true
	}
	e.opts.Logger.Verbose("Script command: %s", cmd)
	return e.sess.Execute(ctx, cmd)
}

func (e *Executor) delay(ctx context.Context, args string) error {
	ms, err := strconv.Atoi(args)
	if err != nil || ms < 0 {
		return rsperr.Newf(rsperr.KindBadInput, "#delay needs a delay in ms, got %q", args)
	}
	if err := e.opts.Sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return err
	}
	// Targets often emit stop or reset notifications during a delay.
	e.sess.FlushUnsolicited()
	return nil
}

func (e *Executor) initialize(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return rsperr.Newf(rsperr.KindBadInput, "#init needs <rte_cfg> <frequency>, got %q", args)
	}
	cfg, err := ParseHex(fields[0])
	if err != nil {
		return err
	}
	freq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return rsperr.Newf(rsperr.KindBadInput, "bad timestamp frequency %q", fields[1])
	}
	if e.dev == nil {
		return rsperr.New(rsperr.KindBadInput, "#init needs a logging structure address")
	}
	return e.dev.Initialize(ctx, rtedbg.ConfigWord(cfg), uint32(freq))
}

func (e *Executor) filter(ctx context.Context, args string) error {
	value, err := ParseHex(args)
	if err != nil {
		return err
	}
	if e.dev == nil {
		return rsperr.New(rsperr.KindBadInput, "#filter needs a logging structure address")
	}
	return e.dev.SetFilter(ctx, value)
}

// ParseHex parses a 32-bit hex value with an optional 0x prefix.
func ParseHex(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil || digits == "" {
		return 0, rsperr.Newf(rsperr.KindBadInput, "bad hex value %q", s)
	}
	return uint32(v), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
