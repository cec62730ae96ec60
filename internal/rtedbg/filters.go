package rtedbg

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// MaxFilters is the number of message filter bits.
const MaxFilters = 32

// FilterMask returns the filter bit for filter number n. Filter 0 is the
// most significant bit.
func FilterMask(n int) uint32 {
	return 0x80000000 >> uint(n)
}

// LoadFilterNames reads one filter name per line. Lines past MaxFilters are
// ignored; an empty line leaves that filter unnamed.
func LoadFilterNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open filter names: %w", err)
	}
	defer f.Close()

	names := make([]string, 0, MaxFilters)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(names) < MaxFilters {
		names = append(names, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read filter names: %w", err)
	}
	return names, nil
}

// EnabledFilters returns the filter numbers set in filter, lowest first.
func EnabledFilters(filter uint32) []int {
	var out []int
	for n := 0; n < MaxFilters; n++ {
		if filter&FilterMask(n) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// DescribeFilter renders the enabled filters. With names, only named
// filters are listed, one per line.
func DescribeFilter(filter uint32, names []string) string {
	if filter == 0 {
		return "Message filter: 0 (data logging disabled)."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Enabled message filters (0x%08X): ", filter)
	enabled := EnabledFilters(filter)
	if len(names) == 0 {
		for i, n := range enabled {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d", n)
		}
		return b.String()
	}
	for _, n := range enabled {
		if n < len(names) && names[n] != "" {
			fmt.Fprintf(&b, "\n%2d - %s", n, names[n])
		}
	}
	return b.String()
}
