package codec

import "fmt"

const hexDigits = "0123456789ABCDEF"

// AppendHex appends data as uppercase hex pairs.
func AppendHex(dst, data []byte) []byte {
	for _, b := range data {
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return dst
}

// DecodeHex decodes hex pairs of either case.
func DecodeHex(src []byte) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("odd hex length %d", len(src))
	}
	out := make([]byte, len(src)/2)
	for i := range out {
		b, ok := parseHexByte(src[2*i], src[2*i+1])
		if !ok {
			return nil, fmt.Errorf("invalid hex pair %q at offset %d", src[2*i:2*i+2], 2*i)
		}
		out[i] = b
	}
	return out, nil
}

func parseHexByte(hi, lo byte) (uint8, bool) {
	h, ok1 := hexNibble(hi)
	l, ok2 := hexNibble(lo)
	return h<<4 | l, ok1 && ok2
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
