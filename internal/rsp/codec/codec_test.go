package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{"qSupported", "qSupported", "$qSupported#37"},
		{"no ack", "QStartNoAckMode", "$QStartNoAckMode#B0"},
		{"detach", "D", "$D#44"},
		{"empty", "", "$#00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeCommand(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestEncodeCommandTooLong(t *testing.T) {
	if _, err := EncodeCommand(strings.Repeat("x", 1019)); err != nil {
		t.Fatalf("unexpected error for 1019 bytes: %v", err)
	}
	_, err := EncodeCommand(strings.Repeat("x", 1020))
	if !errors.Is(err, rsperr.ErrBadInput) {
		t.Fatalf("expected BadInput, got %v", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	payloads := []string{"", "OK", "qSupported", "m20000000,08", "vFlashDone", "monitor reset halt", "~}{|"}
	for _, p := range payloads {
		frame := EncodeFrame([]byte(p))
		got, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode(%q): unexpected error: %v", frame, err)
		}
		if string(got) != p {
			t.Errorf("Decode(%q) = %q, want %q", frame, got, p)
		}
	}
}

func TestDecodeMemoryChecksumTamper(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	frame := EncodeFrame(AppendHex(nil, data))

	got, err := DecodeMemory(frame, len(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("decoded = % X, want % X", got, data)
	}

	for _, pos := range []int{len(frame) - 2, len(frame) - 1} {
		for _, repl := range []byte{'0', '7', 'F', 'g', ' '} {
			tampered := append([]byte(nil), frame...)
			if tampered[pos] == repl {
				continue
			}
			tampered[pos] = repl
			if _, err := DecodeMemory(tampered, len(data)); !errors.Is(err, rsperr.ErrBadChecksum) {
				t.Errorf("tampered %q: expected BadChecksum, got %v", tampered, err)
			}
			if _, err := Decode(tampered); !errors.Is(err, rsperr.ErrBadChecksum) {
				t.Errorf("Decode(%q): expected BadChecksum, got %v", tampered, err)
			}
		}
	}
}

func TestDecodeMemoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		length int
		kind   rsperr.Kind
	}{
		{"no dollar", "+1234#" + "00", 2, rsperr.KindBadFormat},
		{"server code", "$E01#A6", 4, rsperr.KindServerReported},
		{"server text", "$E.bad address#00", 4, rsperr.KindServerReported},
		{"server text at data length", "$E.ab#00", 2, rsperr.KindServerReported},
		{"server text of six characters", "$E.oops#00", 3, rsperr.KindServerReported},
		{"unknown error form", "$Exyz#00", 8, rsperr.KindBadResponse},
		{"run length", "$00*\"#00", 4, rsperr.KindRunLengthUnsupported},
		{"short reply", "$0011#61", 4, rsperr.KindBadFormat},
		{"non hex data", string(EncodeFrame([]byte("zz11"))), 2, rsperr.KindBadFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMemory([]byte(tt.frame), tt.length)
			if got := rsperr.KindOf(err); got != tt.kind {
				t.Errorf("DecodeMemory(%q) kind = %v, want %v (err %v)", tt.frame, got, tt.kind, err)
			}
		})
	}
}

func TestDecodeMemoryUppercaseEData(t *testing.T) {
	data := []byte{0xE5, 0x01}
	frame := EncodeFrame(AppendHex(nil, data))
	got, err := DecodeMemory(frame, len(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("decoded = % X, want % X", got, data)
	}
}

func TestCheckServerError(t *testing.T) {
	if err := CheckServerError([]byte("$OK#9A")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckServerError([]byte("$E0E#BA"))
	var pe *rsperr.ProtocolError
	if !errors.As(err, &pe) || !pe.HasCode || pe.Code != 0x0E {
		t.Fatalf("expected server code 0x0E, got %v", err)
	}

	err = CheckServerError([]byte("$E.Cannot access memory#00"))
	if !errors.As(err, &pe) || pe.Text != "Cannot access memory" {
		t.Fatalf("expected server text, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		frame string
		want  ResponseKind
	}{
		{"$OK#9A", ResponseOK},
		{"$OK#61", ResponseOK},
		{"$#00", ResponseEmpty},
		{"$E01#A6", ResponseError},
		{"$O48690A#00", ResponseConsole},
		{"$12345678#00", ResponseData},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			if got := Classify([]byte(tt.frame)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestDecodeConsole(t *testing.T) {
	frame := EncodeFrame(append([]byte("O"), AppendHex(nil, []byte("Resetting target\n"))...))
	got, err := DecodeConsole(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Resetting target " {
		t.Errorf("DecodeConsole = %q", got)
	}
}

func TestMemoryCommands(t *testing.T) {
	if got := ReadMemoryCommand(0x20000000, 8); got != "m20000000,08" {
		t.Errorf("ReadMemoryCommand = %q", got)
	}
	if got := ReadMemoryCommand(0x20000010, 0x1FC); got != "m20000010,1fc" {
		t.Errorf("ReadMemoryCommand = %q", got)
	}

	frame := WriteMemoryFrame(0x20000004, []byte{0x00, 0x00, 0xAB, 0x0C})
	payload, err := Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != "M20000004,0004:0000AB0C" {
		t.Errorf("write payload = %q", payload)
	}
}

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		noAck     bool
		packetLen int
	}{
		{"full", "$PacketSize=400;QStartNoAckMode+;qXfer:memory-map:read+#00", true, 0x400},
		{"no packet size", "$QStartNoAckMode+#00", true, 0},
		{"malformed size", "$PacketSize=zz;QStartNoAckMode+#00", true, 0},
		{"no ack missing", "$PacketSize=4000;QStartNoAckMode-#00", false, 0x4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := ParseCapabilities([]byte(tt.reply))
			if caps.NoAckMode != tt.noAck {
				t.Errorf("NoAckMode = %v, want %v", caps.NoAckMode, tt.noAck)
			}
			if caps.PacketSize != tt.packetLen {
				t.Errorf("PacketSize = %#x, want %#x", caps.PacketSize, tt.packetLen)
			}
		})
	}
}
