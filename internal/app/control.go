package app

import (
	"context"
	"fmt"
	"strconv"

	rtegdbErrors "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/rtedbg"
	"github.com/tturner/rtegdb/internal/script"
)

type ModeOptions struct {
	CommonOptions
	// Mode is "single" or "post-mortem".
	Mode string
}

type FilterOptions struct {
	CommonOptions
	Value string
}

type InitOptions struct {
	CommonOptions
	Config    string
	Frequency string
}

// RunMode switches between single-shot and post-mortem logging.
func RunMode(opts ModeOptions) error {
	singleShot, err := parseMode(opts.Mode)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "mode")
	if err != nil {
		return err
	}
	defer e.Close()

	text, err := e.switchMode(ctx, singleShot)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, text)
	return nil
}

func parseMode(mode string) (bool, error) {
	switch mode {
	case "single", "single-shot":
		return true, nil
	case "post-mortem", "postmortem", "circular":
		return false, nil
	}
	return false, fmt.Errorf("invalid mode %q; must be single or post-mortem", mode)
}

func (e *env) switchMode(ctx context.Context, singleShot bool) (string, error) {
	var (
		cfg rtedbg.ConfigWord
		err error
	)
	if singleShot {
		cfg, err = e.dev.SwitchToSingleShot(ctx)
	} else {
		cfg, err = e.dev.SwitchToPostMortem(ctx)
	}
	if err != nil {
		return "", rtegdbErrors.WrapTransferError(err, "mode switch")
	}
	mode := "Post-mortem"
	if singleShot {
		mode = "Single-shot"
	}
	return fmt.Sprintf("%s logging enabled (rte_cfg 0x%08X), buffer reset.", mode, uint32(cfg)), nil
}

// RunFilter writes a new message filter.
func RunFilter(opts FilterOptions) error {
	value, err := script.ParseHex(opts.Value)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "filter")
	if err != nil {
		return err
	}
	defer e.Close()

	text, err := e.setFilter(ctx, value)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, text)
	return nil
}

func (e *env) setFilter(ctx context.Context, value uint32) (string, error) {
	if err := e.dev.SetFilter(ctx, value); err != nil {
		return "", rtegdbErrors.WrapTransferError(err, "set filter")
	}
	return rtedbg.DescribeFilter(value, e.filterNames()), nil
}

// RunInit writes a fresh header and resets the buffer.
func RunInit(opts InitOptions) error {
	cfg, err := script.ParseHex(opts.Config)
	if err != nil {
		return err
	}
	freq, err := strconv.ParseUint(opts.Frequency, 10, 32)
	if err != nil || freq == 0 {
		return fmt.Errorf("invalid timestamp frequency %q", opts.Frequency)
	}
	ctx, cancel := signalContext()
	defer cancel()
	e, err := open(ctx, &opts.CommonOptions, "init")
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.dev.Initialize(ctx, rtedbg.ConfigWord(cfg), uint32(freq)); err != nil {
		return rtegdbErrors.WrapTransferError(err, "initialize")
	}
	fmt.Fprintf(e.out, "Logging structure at 0x%08X initialized: %d bytes, rte_cfg 0x%08X, %d Hz\n",
		uint32(e.cfg.Structure.Address), e.dev.Size(), cfg, freq)
	return nil
}
