// Package codec converts between RSP command strings and wire frames.
// It performs no I/O.
package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

const (
	// CommandBufferSize is the size of the buffer a command frame is built in.
	CommandBufferSize = 1024
	// MaxFrameSize is the transport ceiling for a single frame.
	MaxFrameSize = 65535
	// FrameOverhead is '$', '#' and two checksum digits.
	FrameOverhead = 4
)

// ResponseKind classifies a received frame.
type ResponseKind int

const (
	ResponseData ResponseKind = iota
	ResponseOK
	ResponseError
	ResponseConsole
	ResponseEmpty
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseOK:
		return "ok"
	case ResponseError:
		return "error"
	case ResponseConsole:
		return "console"
	case ResponseEmpty:
		return "empty"
	default:
		return "data"
	}
}

// Checksum is the modulo 256 sum of the payload bytes.
func Checksum(payload []byte) uint8 {
	var sum uint8
	for _, b := range payload {
		sum += b
	}
	return sum
}

// EncodeFrame wraps payload as $payload#XX.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, '$')
	frame = append(frame, payload...)
	return fmt.Appendf(frame, "#%02X", Checksum(payload))
}

// EncodeCommand builds the frame for a text command. Commands that do not
// fit the command buffer are rejected.
func EncodeCommand(cmd string) ([]byte, error) {
	if len(cmd) >= CommandBufferSize-FrameOverhead {
		return nil, rsperr.Newf(rsperr.KindBadInput, "command too long (%d bytes)", len(cmd))
	}
	return EncodeFrame([]byte(cmd)), nil
}

// ReadMemoryCommand returns the m command for length bytes at addr.
func ReadMemoryCommand(addr uint32, length int) string {
	return fmt.Sprintf("m%08x,%02x", addr, length)
}

// WriteMemoryFrame returns the complete M frame for data at addr.
func WriteMemoryFrame(addr uint32, data []byte) []byte {
	payload := make([]byte, 0, 15+2*len(data))
	payload = fmt.Appendf(payload, "M%08X,%04X:", addr, len(data))
	payload = AppendHex(payload, data)
	return EncodeFrame(payload)
}

// Decode verifies a generic frame and returns its payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < FrameOverhead || frame[0] != '$' {
		return nil, rsperr.New(rsperr.KindBadFormat, "frame does not start with '$'")
	}
	end := len(frame) - 3
	if frame[end] != '#' {
		return nil, rsperr.New(rsperr.KindBadFormat, "missing '#' terminator")
	}
	payload := frame[1:end]
	want, ok := parseHexByte(frame[end+1], frame[end+2])
	if !ok || want != Checksum(payload) {
		return nil, rsperr.New(rsperr.KindBadChecksum, "")
	}
	return payload, nil
}

// DecodeMemory verifies a read-memory reply carrying length bytes and
// returns the decoded data.
func DecodeMemory(frame []byte, length int) ([]byte, error) {
	if len(frame) < 2 || frame[0] != '$' {
		return nil, rsperr.New(rsperr.KindBadFormat, "frame does not start with '$'")
	}
	hexLen := 2 * length
	end := 1 + hexLen
	// "E.text" is never hex data, even at the length of a data reply.
	dataShaped := len(frame) == end+3 && frame[end] == '#' && !(len(frame) > 2 && frame[2] == '.')
	if frame[1] == 'E' && !dataShaped {
		return nil, CheckServerError(frame)
	}
	if bytes.IndexByte(frame, '*') >= 0 {
		return nil, rsperr.New(rsperr.KindRunLengthUnsupported, "")
	}
	if len(frame) < end+3 || frame[end] != '#' {
		return nil, rsperr.Newf(rsperr.KindBadFormat, "expected '#' at offset %d", end)
	}
	want, ok := parseHexByte(frame[end+1], frame[end+2])
	if !ok || want != Checksum(frame[1:end]) {
		return nil, rsperr.New(rsperr.KindBadChecksum, "")
	}
	data, err := DecodeHex(frame[1:end])
	if err != nil {
		return nil, rsperr.Wrap(rsperr.KindBadFormat, err)
	}
	return data, nil
}

// CheckServerError returns nil unless frame is an E reply.
func CheckServerError(frame []byte) error {
	if len(frame) < 2 || frame[0] != '$' {
		return rsperr.New(rsperr.KindBadFormat, "frame does not start with '$'")
	}
	if frame[1] != 'E' {
		return nil
	}
	if len(frame) > 4 && frame[4] == '#' {
		if code, ok := parseHexByte(frame[2], frame[3]); ok {
			return rsperr.ServerCode(code)
		}
	}
	if len(frame) > 2 && frame[2] == '.' {
		text := frame[3:]
		if i := bytes.LastIndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		return rsperr.ServerText(string(text))
	}
	return rsperr.New(rsperr.KindBadResponse, Printable(frame))
}

// IsOK reports whether frame is the literal OK reply. The checksum is not
// checked.
func IsOK(frame []byte) bool {
	return bytes.HasPrefix(frame, []byte("$OK#"))
}

// Classify returns the kind of a received frame.
func Classify(frame []byte) ResponseKind {
	switch {
	case IsOK(frame):
		return ResponseOK
	case bytes.HasPrefix(frame, []byte("$#")):
		return ResponseEmpty
	case bytes.HasPrefix(frame, []byte("$E")):
		return ResponseError
	case bytes.HasPrefix(frame, []byte("$O")):
		return ResponseConsole
	}
	return ResponseData
}

// DecodeConsole decodes the text of an O frame. Newlines become spaces.
func DecodeConsole(frame []byte) (string, error) {
	if !bytes.HasPrefix(frame, []byte("$O")) {
		return "", rsperr.New(rsperr.KindBadFormat, "not a console output frame")
	}
	payload := frame[2:]
	if i := bytes.IndexByte(payload, '#'); i >= 0 {
		payload = payload[:i]
	}
	text, err := DecodeHex(payload)
	if err != nil {
		return "", rsperr.Wrap(rsperr.KindBadFormat, err)
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(string(text)), nil
}

// Capabilities is the parsed qSupported reply.
type Capabilities struct {
	NoAckMode  bool
	PacketSize int
}

// ParseCapabilities parses a qSupported reply. PacketSize is zero when the
// field is missing or malformed.
func ParseCapabilities(reply []byte) Capabilities {
	var caps Capabilities
	s := string(reply)
	s = strings.TrimPrefix(s, "$")
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	for _, field := range strings.Split(s, ";") {
		switch {
		case field == "QStartNoAckMode+":
			caps.NoAckMode = true
		case strings.HasPrefix(field, "PacketSize="):
			size, err := strconv.ParseUint(strings.TrimPrefix(field, "PacketSize="), 16, 32)
			if err == nil && size > 0 {
				caps.PacketSize = int(size)
			}
		}
	}
	return caps
}

// Printable renders frame bytes for logs and error text.
func Printable(frame []byte) string {
	var b strings.Builder
	for _, c := range frame {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "\\x%02x", c)
		}
	}
	return b.String()
}
