// Package rtedbg reads the RTEdbg logging structure out of target memory
// and manages its filter and capture mode.
package rtedbg

import (
	"encoding/binary"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

// Layout of the g_rtedbg header in target memory. All fields are 32-bit
// little-endian words.
const (
	HeaderSize = 24

	OffsetLastIndex          = 0
	OffsetFilter             = 4
	OffsetConfig             = 8
	OffsetTimestampFrequency = 12
	OffsetFilterCopy         = 16
	OffsetBufferSize         = 20

	// MinStructureSize is the smallest structure accepted: a 64 byte
	// buffer plus 16 bytes.
	MinStructureSize = 64 + 16
	// MaxStructureSize bounds the structure read from the target.
	MaxStructureSize = 2100000
)

// ConfigWord is the rte_cfg field. Each accessor extracts one bit field.
type ConfigWord uint32

const (
	cfgSingleShotActive  = 1 << 0
	cfgFilteringEnabled  = 1 << 1
	cfgFilterOffEnabled  = 1 << 2
	cfgSingleShotEnabled = 1 << 3
	cfgLongTimestamps    = 1 << 4
	cfgReservedMask      = 0x7 << 5
	cfgReserved2         = 1 << 15
	cfgPowerOfTwoBuffer  = 1 << 31
)

// SingleShotActive reports whether single-shot logging is currently selected.
func (c ConfigWord) SingleShotActive() bool { return c&cfgSingleShotActive != 0 }

// FilteringEnabled reports whether message filtering is compiled in.
func (c ConfigWord) FilteringEnabled() bool { return c&cfgFilteringEnabled != 0 }

// FilterOffEnabled reports whether the firmware keeps a backup filter in
// filter_copy while logging is switched off.
func (c ConfigWord) FilterOffEnabled() bool { return c&cfgFilterOffEnabled != 0 }

// SingleShotEnabled reports whether single-shot logging is compiled in.
func (c ConfigWord) SingleShotEnabled() bool { return c&cfgSingleShotEnabled != 0 }

func (c ConfigWord) LongTimestamps() bool { return c&cfgLongTimestamps != 0 }

// Reserved returns bits 5..7, which must be zero.
func (c ConfigWord) Reserved() uint32 { return uint32(c&cfgReservedMask) >> 5 }

// Reserved2 returns bit 15, which must be zero.
func (c ConfigWord) Reserved2() uint32 { return uint32(c&cfgReserved2) >> 15 }

// TimestampShift is the number of bits the timestamp counter is shifted by.
func (c ConfigWord) TimestampShift() uint { return uint((c>>8)&0xF) + 1 }

// FormatIDBits is the width of the format ID field (9..16).
func (c ConfigWord) FormatIDBits() uint { return uint((c>>12)&0x7) + 9 }

// MaxSubpackets is the largest message size in 4-word subpackets.
func (c ConfigWord) MaxSubpackets() uint {
	n := uint((c >> 16) & 0xFF)
	if n == 0 {
		return 256
	}
	return n
}

// HeaderSize is the header size the firmware was built with, in bytes.
func (c ConfigWord) HeaderSize() int { return int((c>>24)&0x7F) * 4 }

// PowerOfTwoBuffer reports whether the buffer size is a power of two.
func (c ConfigWord) PowerOfTwoBuffer() bool { return c&cfgPowerOfTwoBuffer != 0 }

// WithSingleShot returns the word with single-shot mode set or cleared.
func (c ConfigWord) WithSingleShot(on bool) ConfigWord {
	if on {
		return c | cfgSingleShotActive
	}
	return c &^ cfgSingleShotActive
}

// Validate rejects words with reserved bits set or a header size that does
// not match this layout.
func (c ConfigWord) Validate() error {
	if c.Reserved() != 0 || c.Reserved2() != 0 {
		return rsperr.Newf(rsperr.KindInvalidHeader, "reserved configuration bits set (0x%08X)", uint32(c))
	}
	if c.HeaderSize() != HeaderSize {
		return rsperr.Newf(rsperr.KindInvalidHeader, "header size %d, expected %d", c.HeaderSize(), HeaderSize)
	}
	return nil
}

// Header mirrors the first HeaderSize bytes of the logging structure.
type Header struct {
	LastIndex          uint32     `json:"last_index"`
	Filter             uint32     `json:"filter"`
	Config             ConfigWord `json:"rte_cfg"`
	TimestampFrequency uint32     `json:"timestamp_frequency"`
	FilterCopy         uint32     `json:"filter_copy"`
	BufferSize         uint32     `json:"buffer_size"`
}

// ParseHeader decodes a header from the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, rsperr.Newf(rsperr.KindBadInput, "header needs %d bytes, got %d", HeaderSize, len(b))
	}
	le := binary.LittleEndian
	return Header{
		LastIndex:          le.Uint32(b[OffsetLastIndex:]),
		Filter:             le.Uint32(b[OffsetFilter:]),
		Config:             ConfigWord(le.Uint32(b[OffsetConfig:])),
		TimestampFrequency: le.Uint32(b[OffsetTimestampFrequency:]),
		FilterCopy:         le.Uint32(b[OffsetFilterCopy:]),
		BufferSize:         le.Uint32(b[OffsetBufferSize:]),
	}, nil
}

// AppendBinary appends the target representation of h.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	le := binary.LittleEndian
	b = le.AppendUint32(b, h.LastIndex)
	b = le.AppendUint32(b, h.Filter)
	b = le.AppendUint32(b, uint32(h.Config))
	b = le.AppendUint32(b, h.TimestampFrequency)
	b = le.AppendUint32(b, h.FilterCopy)
	b = le.AppendUint32(b, h.BufferSize)
	return b, nil
}

// MarshalBinary returns the HeaderSize byte target representation of h.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

// StructureSize is the size of the whole structure the header describes.
func (h Header) StructureSize() int64 {
	return HeaderSize + 4*int64(h.BufferSize)
}

// Validate checks the configuration word.
func (h Header) Validate() error {
	return h.Config.Validate()
}

// CheckSize rejects structure sizes outside [minSize, maxSize].
func CheckSize(size int64, minSize, maxSize int) error {
	if size < int64(minSize) {
		return rsperr.Newf(rsperr.KindStructureTooSmall, "%d bytes, minimum is %d", size, minSize)
	}
	if size > int64(maxSize) {
		return rsperr.Newf(rsperr.KindStructureTooLarge, "%d bytes, maximum is %d", size, maxSize)
	}
	return nil
}

// RestoreFilterValue returns the filter to write back after a transfer:
// the override when set, otherwise the filter captured before pausing, or
// the backup filter when that was zero and the firmware supports
// filter-off.
func RestoreFilterValue(old uint32, h Header, override *uint32) uint32 {
	if override != nil {
		return *override
	}
	if old == 0 && h.Config.FilterOffEnabled() {
		return h.FilterCopy
	}
	return old
}

// BufferUsage returns how full the circular buffer is in percent. It is
// meaningful in single-shot mode, where last_index only grows.
func (h Header) BufferUsage() uint32 {
	if h.BufferSize <= 4 {
		return 0
	}
	n := uint64(h.BufferSize - 4)
	usage := (100*uint64(h.LastIndex) + n/2) / n
	if usage > 100 {
		usage = 100
	}
	return uint32(usage)
}
