package rtedbg

import (
	"fmt"
	"strings"
)

// TimestampMHz is the timestamp counter frequency after the configured shift.
func (h Header) TimestampMHz() float64 {
	return float64(h.TimestampFrequency) / 1e6 / float64(uint64(1)<<h.Config.TimestampShift())
}

// Mode names the logging mode the header selects.
func (h Header) Mode() string {
	if h.Config.SingleShotEnabled() && h.Config.SingleShotActive() {
		return "single-shot"
	}
	return "post-mortem"
}

// Describe renders the header information block shown after transfers and
// by the header command.
func Describe(h Header, filterNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Circular buffer size: %d words, last index: %d", h.BufferSize, h.LastIndex)
	fmt.Fprintf(&b, ", timestamp frequency: %g MHz", h.TimestampMHz())
	if h.Config.LongTimestamps() {
		b.WriteString(", long timestamps enabled")
	} else {
		b.WriteString(", long timestamps disabled")
	}
	fmt.Fprintf(&b, ", %s mode", h.Mode())
	fmt.Fprintf(&b, "\nrte_cfg 0x%08X: format ID bits %d, max message %d subpackets",
		uint32(h.Config), h.Config.FormatIDBits(), h.Config.MaxSubpackets())
	if h.Config.PowerOfTwoBuffer() {
		b.WriteString(", power-of-2 buffer")
	}
	if h.Mode() == "single-shot" {
		fmt.Fprintf(&b, ", buffer %d%% full", h.BufferUsage())
	}

	b.WriteString("\n")
	if !h.Config.FilteringEnabled() {
		b.WriteString("Message filtering disabled in the firmware.")
	} else {
		b.WriteString(DescribeFilter(h.Filter, filterNames))
	}
	return b.String()
}
