package rtedbg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/logging"
)

// Memory is target memory access, normally an RSP session.
type Memory interface {
	ReadMemory(ctx context.Context, addr uint32, dst []byte) error
	WriteMemory(ctx context.Context, addr uint32, data []byte) error
}

// resyncer is implemented by memories that can drop stale input, such as
// an RSP session that may hold stop replies or console output from an
// earlier command. Every device operation resynchronizes before its first
// request.
type resyncer interface {
	FlushUnsolicited() []byte
	ResetError()
}

// State is the position of the device in the transfer sequence.
type State int

const (
	StateIdle State = iota
	StateFilterPaused
	StateHeaderLoaded
	StateSnapshotted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateFilterPaused:
		return "filter paused"
	case StateHeaderLoaded:
		return "header loaded"
	case StateSnapshotted:
		return "snapshotted"
	case StateAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Options configure a Device.
type Options struct {
	// Address of the g_rtedbg structure.
	Address uint32
	// Size is the expected structure size; 0 detects it from the header.
	Size int
	// MinSize and MaxSize bound the detected size. Zero selects
	// MinStructureSize and MaxStructureSize.
	MinSize int
	MaxSize int
	// Clear erases the circular buffer after each transfer.
	Clear bool
	// Filter, when set, is written instead of the restored filter.
	Filter *uint32
	// Delay is waited after pausing and before the snapshot is read.
	Delay  time.Duration
	Logger *logging.Logger
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Header         Header
	Size           int
	OldFilter      uint32
	RestoredFilter uint32
	Cleared        bool
	Elapsed        time.Duration
}

// Device drives the logging structure of one target. The snapshot buffer
// is owned by the device and reused between transfers.
type Device struct {
	mem         Memory
	opts        Options
	log         *logging.Logger
	header      Header
	headerValid bool
	size        int
	buf         []byte
	state       State
	override    *uint32
}

// NewDevice returns a device reading the structure through mem.
func NewDevice(mem Memory, opts Options) *Device {
	if opts.MinSize <= 0 {
		opts.MinSize = MinStructureSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = MaxStructureSize
	}
	log := opts.Logger
	if log == nil {
		log, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}
	d := &Device{
		mem:  mem,
		opts: opts,
		log:  log,
		size: opts.Size,
	}
	if opts.Filter != nil {
		v := *opts.Filter
		d.override = &v
	}
	return d
}

// State returns the current transfer state.
func (d *Device) State() State { return d.state }

// Size returns the last known structure size.
func (d *Device) Size() int { return d.size }

// Header returns the last validated header.
func (d *Device) Header() (Header, bool) { return d.header, d.headerValid }

// FilterOverride returns the filter that replaces the restored value, if any.
func (d *Device) FilterOverride() (uint32, bool) {
	if d.override == nil {
		return 0, false
	}
	return *d.override, true
}

// SetClear changes whether the buffer is erased after transfers.
func (d *Device) SetClear(clear bool) { d.opts.Clear = clear }

// begin starts a top-level operation: stale replies are discarded and the
// last error of the memory is cleared.
func (d *Device) begin() {
	r, ok := d.mem.(resyncer)
	if !ok {
		return
	}
	if stale := r.FlushUnsolicited(); len(stale) > 0 {
		d.log.Verbose("Discarded %d bytes received outside of a request", len(stale))
	}
	r.ResetError()
}

// filterGuard restores the filter field when an operation that paused
// logging ends.
type filterGuard struct {
	d        *Device
	old      uint32
	paused   bool
	released bool
}

// release writes the filter back. Without a validated header it only undoes
// its own pause, as the address may not hold a logging structure.
func (g *filterGuard) release(ctx context.Context) (uint32, error) {
	if g.released {
		return 0, nil
	}
	g.released = true
	d := g.d

	var value uint32
	switch {
	case d.headerValid:
		value = RestoreFilterValue(g.old, d.header, d.override)
	case g.paused:
		value = g.old
	default:
		return 0, nil
	}
	if err := d.writeWord(ctx, OffsetFilter, value); err != nil {
		return 0, fmt.Errorf("restore filter: %w", err)
	}
	return value, nil
}

// pause reads the filter and writes zero to it when logging is enabled.
func (d *Device) pause(ctx context.Context) (*filterGuard, error) {
	d.headerValid = false
	old, err := d.readWord(ctx, OffsetFilter)
	if err != nil {
		return nil, fmt.Errorf("read filter: %w", err)
	}
	g := &filterGuard{d: d, old: old}
	if old != 0 {
		// The write may reach the target even when its reply is lost.
		g.paused = true
		if err := d.writeWord(ctx, OffsetFilter, 0); err != nil {
			err = fmt.Errorf("pause logging: %w", err)
			if _, rerr := g.release(context.WithoutCancel(ctx)); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
	}
	d.state = StateFilterPaused
	return g, nil
}

// finish is deferred by operations holding a guard. On failure it restores
// the filter and joins any restore error.
func (d *Device) finish(ctx context.Context, g *filterGuard, err *error) {
	if *err == nil {
		d.state = StateIdle
		return
	}
	d.state = StateAborted
	if _, rerr := g.release(context.WithoutCancel(ctx)); rerr != nil {
		*err = errors.Join(*err, rerr)
	}
}

// Transfer pauses logging, snapshots the whole structure into sink,
// optionally clears the buffer and restores the filter. The filter is
// restored on every exit path once it has been read.
func (d *Device) Transfer(ctx context.Context, sink SnapshotWriter) (_ *TransferResult, err error) {
	start := time.Now()
	d.state = StateIdle
	d.begin()

	g, err := d.pause(ctx)
	if err != nil {
		d.state = StateAborted
		return nil, err
	}
	defer d.finish(ctx, g, &err)

	if err = d.loadHeader(ctx); err != nil {
		return nil, err
	}
	d.state = StateHeaderLoaded

	if d.opts.Delay > 0 {
		if err = sleep(ctx, d.opts.Delay); err != nil {
			return nil, err
		}
	}

	if err = d.mem.ReadMemory(ctx, d.opts.Address, d.buf); err != nil {
		return nil, fmt.Errorf("read logging structure: %w", err)
	}
	// The snapshot keeps the filter as it was before the pause.
	binary.LittleEndian.PutUint32(d.buf[OffsetFilter:], g.old)
	if err = sink.WriteSnapshot(d.buf); err != nil {
		if rsperr.KindOf(err) != rsperr.KindStorage {
			err = rsperr.Wrap(rsperr.KindStorage, err)
		}
		return nil, err
	}
	d.state = StateSnapshotted

	current, err := d.readWord(ctx, OffsetFilter)
	if err != nil {
		return nil, fmt.Errorf("verify filter: %w", err)
	}
	if current != 0 {
		err = rsperr.Newf(rsperr.KindFilterReenabled, "filter is 0x%08X after the snapshot", current)
		return nil, err
	}

	if err = d.resetBuffer(ctx, d.header); err != nil {
		return nil, err
	}

	restored, err := g.release(ctx)
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		Header:         d.header,
		Size:           d.size,
		OldFilter:      g.old,
		RestoredFilter: restored,
		Cleared:        d.opts.Clear,
		Elapsed:        time.Since(start),
	}, nil
}

// LoadHeader reads and validates the header without pausing logging.
func (d *Device) LoadHeader(ctx context.Context) (Header, error) {
	d.begin()
	d.headerValid = false
	if err := d.loadHeader(ctx); err != nil {
		return Header{}, err
	}
	return d.header, nil
}

// loadHeader reads the header, checks the structure size and reallocates
// the snapshot buffer when the size changed.
func (d *Device) loadHeader(ctx context.Context) error {
	raw := make([]byte, HeaderSize)
	if err := d.mem.ReadMemory(ctx, d.opts.Address, raw); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return err
	}

	size := h.StructureSize()
	if err := CheckSize(size, d.opts.MinSize, d.opts.MaxSize); err != nil {
		return err
	}
	if int(size) != d.size {
		if d.size != 0 {
			d.log.Info("Logging structure size changed from %d to %d bytes", d.size, size)
		}
		d.size = int(size)
		d.buf = nil
	}
	if d.buf == nil {
		d.buf = make([]byte, d.size)
	}

	if err := h.Validate(); err != nil {
		return err
	}
	d.header = h
	d.headerValid = true
	return nil
}

// resetBuffer erases the circular buffer when clearing is configured and
// rewinds the write index when clearing or in single-shot mode.
func (d *Device) resetBuffer(ctx context.Context, h Header) error {
	if d.opts.Clear && d.size > HeaderSize {
		fill := bytes.Repeat([]byte{0xFF}, d.size-HeaderSize)
		if err := d.mem.WriteMemory(ctx, d.opts.Address+HeaderSize, fill); err != nil {
			return fmt.Errorf("clear buffer: %w", err)
		}
	}
	if d.opts.Clear || (h.Config.SingleShotActive() && h.Config.SingleShotEnabled()) {
		if err := d.writeWord(ctx, OffsetLastIndex, 0); err != nil {
			return fmt.Errorf("reset write index: %w", err)
		}
	}
	return nil
}

func (d *Device) readWord(ctx context.Context, offset uint32) (uint32, error) {
	var b [4]byte
	if err := d.mem.ReadMemory(ctx, d.opts.Address+offset, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *Device) writeWord(ctx context.Context, offset, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return d.mem.WriteMemory(ctx, d.opts.Address+offset, b[:])
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
