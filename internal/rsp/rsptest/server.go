// Package rsptest provides an in-process GDB server that serves memory
// reads and writes from a byte slice, for tests of code that speaks RSP.
package rsptest

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tturner/rtegdb/internal/rsp/codec"
)

// Handler answers an opaque command. Returned payloads are framed and sent
// in order. ok=false falls through to the built-in commands.
type Handler func(cmd string) (replies []string, ok bool)

// Server is a single-connection fake GDB server.
type Server struct {
	// Supported is the qSupported reply payload.
	Supported string
	// NoAckReply is the payload sent for QStartNoAckMode.
	NoAckReply string
	// Handler, when set, is consulted before the built-in commands.
	Handler Handler
	// OnCommand, when set, runs after each command has been answered.
	OnCommand func(cmd string)
	// Greeting is written right after accept, before any command.
	Greeting string
	// SkipAcks suppresses the '+' acknowledgements of ack mode.
	SkipAcks bool

	ln   net.Listener
	base uint32

	mu       sync.Mutex
	memory   []byte
	commands []string
	reads    []int
	writes   []int
	acks     int
	done     chan struct{}
}

// NewServer starts a server exposing size bytes of memory at base. The
// listener is closed when the test ends.
func NewServer(t testing.TB, base uint32, size int) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		Supported:  "PacketSize=4000;QStartNoAckMode+",
		NoAckReply: "OK",
		ln:         ln,
		base:       base,
		memory:     make([]byte, size),
		done:       make(chan struct{}),
	}
	t.Cleanup(func() {
		ln.Close()
	})
	return s
}

// Start accepts one connection in the background. Configure exported
// fields before calling it.
func (s *Server) Start() {
	go s.serve()
}

// Addr returns the host and port the server listens on.
func (s *Server) Addr() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Done is closed when the served connection ends.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Commands returns every command payload received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// ReadSizes returns the length of every m request.
func (s *Server) ReadSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

// WriteSizes returns the length of every M request.
func (s *Server) WriteSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writes...)
}

// Acks returns the number of '+' bytes received from the client.
func (s *Server) Acks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks
}

// Poke stores data at addr.
func (s *Server) Poke(addr uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.memory[addr-s.base:], data)
}

// Peek returns a copy of n bytes at addr.
func (s *Server) Peek(addr uint32, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := addr - s.base
	return append([]byte(nil), s.memory[off:int(off)+n]...)
}

func (s *Server) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if s.Greeting != "" {
		if _, err := conn.Write([]byte(s.Greeting)); err != nil {
			return
		}
	}

	ackMode := true
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		for {
			for len(pending) > 0 && pending[0] != '$' {
				if pending[0] == '+' {
					s.mu.Lock()
					s.acks++
					s.mu.Unlock()
				}
				pending = pending[1:]
			}
			end := bytes.IndexByte(pending, '#')
			if end < 0 || len(pending) < end+3 {
				break
			}
			cmd := string(pending[1:end])
			pending = pending[end+3:]

			if ackMode && !s.SkipAcks {
				if _, err := conn.Write([]byte{'+'}); err != nil {
					return
				}
			}
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()

			replies := s.reply(cmd)
			for _, r := range replies {
				if _, err := conn.Write(codec.EncodeFrame([]byte(r))); err != nil {
					return
				}
			}
			if cmd == "QStartNoAckMode" && len(replies) == 1 && replies[0] == "OK" {
				ackMode = false
			}
			if s.OnCommand != nil {
				s.OnCommand(cmd)
			}
		}
	}
}

func (s *Server) reply(cmd string) []string {
	if s.Handler != nil {
		if replies, ok := s.Handler(cmd); ok {
			return replies
		}
	}
	switch {
	case cmd == "qSupported" || strings.HasPrefix(cmd, "qSupported:"):
		return []string{s.Supported}
	case cmd == "QStartNoAckMode":
		return []string{s.NoAckReply}
	case cmd == "D":
		return []string{"OK"}
	case strings.HasPrefix(cmd, "m"):
		return []string{s.readMemory(cmd[1:])}
	case strings.HasPrefix(cmd, "M"):
		return []string{s.writeMemory(cmd[1:])}
	}
	return []string{""}
}

func (s *Server) readMemory(args string) string {
	addr, length, ok := parseAddrLen(args)
	if !ok {
		return "E01"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, length)
	off := int64(addr) - int64(s.base)
	if off < 0 || off+int64(length) > int64(len(s.memory)) {
		return "E0E"
	}
	return string(codec.AppendHex(nil, s.memory[off:off+int64(length)]))
}

func (s *Server) writeMemory(args string) string {
	head, data, found := strings.Cut(args, ":")
	if !found {
		return "E01"
	}
	addr, length, ok := parseAddrLen(head)
	if !ok {
		return "E01"
	}
	raw, err := codec.DecodeHex([]byte(data))
	if err != nil || len(raw) != length {
		return "E02"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, length)
	off := int64(addr) - int64(s.base)
	if off < 0 || off+int64(length) > int64(len(s.memory)) {
		return "E0E"
	}
	copy(s.memory[off:], raw)
	return "OK"
}

func parseAddrLen(args string) (uint32, int, bool) {
	a, l, found := strings.Cut(args, ",")
	if !found {
		return 0, 0, false
	}
	addr, err := strconv.ParseUint(a, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	length, err := strconv.ParseUint(l, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(addr), int(length), true
}

// ConsoleReply builds an O payload carrying text.
func ConsoleReply(text string) string {
	return fmt.Sprintf("O%s", codec.AppendHex(nil, []byte(text)))
}
