package rtedbg

import (
	"context"
	"fmt"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

// SwitchToSingleShot stops logging once the buffer is full. The firmware
// must be built with single-shot support.
func (d *Device) SwitchToSingleShot(ctx context.Context) (ConfigWord, error) {
	return d.switchMode(ctx, true)
}

// SwitchToPostMortem selects circular logging. Calling it in post-mortem
// mode only resets and restores.
func (d *Device) SwitchToPostMortem(ctx context.Context) (ConfigWord, error) {
	return d.switchMode(ctx, false)
}

func (d *Device) switchMode(ctx context.Context, singleShot bool) (_ ConfigWord, err error) {
	d.begin()
	g, err := d.pause(ctx)
	if err != nil {
		d.state = StateAborted
		return 0, err
	}
	defer d.finish(ctx, g, &err)

	if err = d.loadHeader(ctx); err != nil {
		return 0, err
	}
	cfg := d.header.Config
	if singleShot && !cfg.SingleShotEnabled() {
		err = rsperr.New(rsperr.KindFeatureDisabled, "single-shot logging is not enabled in the firmware")
		return 0, err
	}

	next := cfg.WithSingleShot(singleShot)
	if next != cfg {
		if err = d.writeWord(ctx, OffsetConfig, uint32(next)); err != nil {
			return 0, fmt.Errorf("write configuration: %w", err)
		}
		d.header.Config = next
	}

	if err = d.resetBuffer(ctx, d.header); err != nil {
		return 0, err
	}
	if _, err = g.release(ctx); err != nil {
		return 0, err
	}
	return next, nil
}

// SetFilter writes a new message filter and keeps it as the value restored
// after every later transfer.
func (d *Device) SetFilter(ctx context.Context, value uint32) error {
	h, err := d.LoadHeader(ctx)
	if err != nil {
		return err
	}
	if !h.Config.FilteringEnabled() {
		return rsperr.New(rsperr.KindFeatureDisabled, "message filtering is not enabled in the firmware")
	}
	if err := d.writeWord(ctx, OffsetFilter, value); err != nil {
		return fmt.Errorf("write filter: %w", err)
	}
	v := value
	d.override = &v
	d.log.Verbose("Filter set to 0x%08X", value)
	return nil
}

// Initialize writes a fresh header for firmware that does not initialize
// the structure itself. The structure size must already be known from a
// previous header load or from the options. Logging is paused while the
// header is written and the filter override, if any, enables it again.
func (d *Device) Initialize(ctx context.Context, cfg ConfigWord, frequency uint32) (err error) {
	if d.size == 0 {
		return rsperr.New(rsperr.KindBadInput, "structure size is unknown")
	}
	if frequency == 0 {
		return rsperr.New(rsperr.KindBadInput, "timestamp frequency is zero")
	}
	if err := CheckSize(int64(d.size), d.opts.MinSize, d.opts.MaxSize); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var filter uint32
	if d.override != nil {
		filter = *d.override
	}
	h := Header{
		Config:             cfg,
		TimestampFrequency: frequency,
		FilterCopy:         filter,
		BufferSize:         uint32((d.size - HeaderSize) / 4),
	}
	raw, _ := h.MarshalBinary()

	d.begin()
	d.headerValid = false
	old, err := d.readWord(ctx, OffsetFilter)
	if err != nil {
		return fmt.Errorf("read filter: %w", err)
	}
	g := &filterGuard{d: d, old: old, paused: true}
	defer d.finish(ctx, g, &err)

	if err = d.writeWord(ctx, OffsetFilter, 0); err != nil {
		return fmt.Errorf("pause logging: %w", err)
	}
	if err = d.mem.WriteMemory(ctx, d.opts.Address, raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if d.buf == nil || len(d.buf) != d.size {
		d.buf = make([]byte, d.size)
	}
	d.header = h
	d.headerValid = true

	if err = d.resetBuffer(ctx, h); err != nil {
		return err
	}
	if filter != 0 {
		if err = d.writeWord(ctx, OffsetFilter, filter); err != nil {
			return fmt.Errorf("enable logging: %w", err)
		}
	}
	d.log.Info("Logging structure initialized: %d bytes, rte_cfg 0x%08X, %d Hz", d.size, uint32(cfg), frequency)
	return nil
}

// Status reads the header without pausing logging. The header is not
// validated; callers polling a running target only display it.
func (d *Device) Status(ctx context.Context) (Status, error) {
	d.begin()
	raw := make([]byte, HeaderSize)
	if err := d.mem.ReadMemory(ctx, d.opts.Address, raw); err != nil {
		return Status{}, fmt.Errorf("read header: %w", err)
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Header:     h,
		Usage:      h.BufferUsage(),
		SingleShot: h.Config.SingleShotActive(),
		Valid:      h.Validate() == nil,
	}, nil
}

// Status is a snapshot of the header taken while logging runs.
type Status struct {
	Header     Header
	Usage      uint32
	SingleShot bool
	Valid      bool
}
