// Package client implements an RSP session with a GDB server: connection
// handshake, framed command exchange and chunked memory access.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	rsperr "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/logging"
	"github.com/tturner/rtegdb/internal/rsp/codec"
)

const (
	DefaultRecvTimeout    = 500 * time.Millisecond
	LongRecvTimeout       = 2500 * time.Millisecond
	DefaultSendTimeout    = 50 * time.Millisecond
	DefaultConsoleTimeout = 50 * time.Millisecond
	flushPollTimeout      = time.Millisecond

	DefaultPacketSize = 4096
	MinMessageSize    = 256
)

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnectedAck
	StateConnectedNoAck
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnectedAck:
		return "connected (ack mode)"
	case StateConnectedNoAck:
		return "connected (no-ack mode)"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Capabilities are the packet limits negotiated for one connection.
type Capabilities struct {
	MaxSendSize   int
	MaxRecvSize   int
	MaxReadChunk  int
	MaxWriteChunk int
}

// NewCapabilities derives the packet limits from the server's PacketSize
// (0 selects the default) and an optional receive size override.
func NewCapabilities(packetSize, maxMessageSize int) Capabilities {
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}
	send := min(packetSize, codec.MaxFrameSize)
	recv := send
	if maxMessageSize > 0 {
		recv = min(maxMessageSize, codec.MaxFrameSize)
	}
	return Capabilities{
		MaxSendSize:   send,
		MaxRecvSize:   recv,
		MaxReadChunk:  ((recv - codec.FrameOverhead) / 8) * 4,
		MaxWriteChunk: ((send - 16 - codec.FrameOverhead) / 8) * 4,
	}
}

// Recorder observes raw bytes on the wire.
type Recorder interface {
	RecordSend(data []byte)
	RecordRecv(data []byte)
}

// ProgressFunc reports memory transfer progress in bytes.
type ProgressFunc func(done, total int)

// Options configure a session. Zero values select the defaults.
type Options struct {
	RecvTimeout    time.Duration
	LongTimeout    time.Duration
	SendTimeout    time.Duration
	ConsoleTimeout time.Duration
	// MaxMessageSize overrides the receive packet size (256..65535).
	MaxMessageSize int
	// DetachOnClose sends D before the stream is closed.
	DetachOnClose bool
	Logger        *logging.Logger
	Recorder      Recorder
	Progress      ProgressFunc
}

func (o *Options) applyDefaults() {
	if o.RecvTimeout <= 0 {
		o.RecvTimeout = DefaultRecvTimeout
	}
	if o.LongTimeout <= 0 {
		o.LongTimeout = LongRecvTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.ConsoleTimeout <= 0 {
		o.ConsoleTimeout = DefaultConsoleTimeout
	}
	if o.Logger == nil {
		o.Logger, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}
}

// Session is one connection to a GDB server. It is owned by a single caller
// and performs one operation at a time.
type Session struct {
	transport Transport
	opts      Options
	caps      Capabilities
	state     State
	ackMode   bool
	pending   []byte
	rbuf      []byte
	lastErr   error
}

// NewSession wraps a transport. A connected transport starts in ack mode;
// call Handshake before any other operation.
func NewSession(t Transport, opts Options) *Session {
	opts.applyDefaults()
	s := &Session{
		transport: t,
		opts:      opts,
		caps:      NewCapabilities(0, opts.MaxMessageSize),
		state:     StateDisconnected,
		ackMode:   true,
		rbuf:      make([]byte, codec.MaxFrameSize),
	}
	if t.IsConnected() {
		s.state = StateConnectedAck
	}
	return s
}

// Dial connects to host:port and performs the handshake.
func Dial(ctx context.Context, host string, port int, opts Options) (*Session, error) {
	t := NewTCPTransport()
	if err := t.Connect(ctx, net.JoinHostPort(host, strconv.Itoa(port))); err != nil {
		return nil, rsperr.Wrap(rsperr.KindSocketError, err)
	}
	return handshake(ctx, t, opts)
}

// DialConn performs the handshake over an already established stream,
// such as a channel forwarded through an SSH gateway.
func DialConn(ctx context.Context, conn net.Conn, opts Options) (*Session, error) {
	if conn == nil {
		return nil, rsperr.New(rsperr.KindBadInput, "nil connection")
	}
	return handshake(ctx, NewConnTransport(conn), opts)
}

func handshake(ctx context.Context, t Transport, opts Options) (*Session, error) {
	s := NewSession(t, opts)
	if err := s.Handshake(ctx); err != nil {
		t.Disconnect()
		s.state = StateClosed
		return nil, err
	}
	return s, nil
}

// Handshake drains any greeting, queries the server capabilities and
// switches the connection to no-ack mode.
func (s *Session) Handshake(ctx context.Context) error {
	s.ResetError()
	if s.state != StateConnectedAck {
		return s.fail(rsperr.Newf(rsperr.KindBadInput, "handshake not possible in state %s", s.state))
	}
	log := s.opts.Logger
	start := time.Now()

	s.FlushUnsolicited()

	if err := s.SendCommand("qSupported"); err != nil {
		return err
	}
	reply, err := s.ReceiveFrame(s.opts.LongTimeout)
	if err != nil {
		return err
	}
	if err := codec.CheckServerError(reply); err != nil {
		return s.fail(err)
	}
	supported := codec.ParseCapabilities(reply)
	if !supported.NoAckMode {
		return s.fail(rsperr.New(rsperr.KindNoAckUnsupported, codec.Printable(reply)))
	}
	s.caps = NewCapabilities(supported.PacketSize, s.opts.MaxMessageSize)
	log.Verbose("Server capabilities received (%.1f ms): packet size %d, read chunk %d, write chunk %d",
		msSince(start), s.caps.MaxSendSize, s.caps.MaxReadChunk, s.caps.MaxWriteChunk)

	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}

	if err := s.SendCommand("QStartNoAckMode"); err != nil {
		return err
	}
	reply, err = s.ReceiveFrame(s.opts.RecvTimeout)
	if err != nil {
		return err
	}
	if !codec.IsOK(reply) {
		if err := codec.CheckServerError(reply); err != nil {
			return s.fail(err)
		}
		return s.fail(rsperr.Newf(rsperr.KindBadResponse, "no-ack mode rejected: %s", codec.Printable(reply)))
	}
	s.ackMode = false
	s.state = StateConnectedNoAck
	s.FlushUnsolicited()
	log.Verbose("No-ack mode enabled (%.1f ms)", msSince(start))
	return nil
}

// SendCommand encodes and sends a text command.
func (s *Session) SendCommand(cmd string) error {
	frame, err := codec.EncodeCommand(cmd)
	if err != nil {
		return s.fail(err)
	}
	return s.sendFrame(frame)
}

func (s *Session) sendFrame(frame []byte) error {
	if s.state != StateConnectedAck && s.state != StateConnectedNoAck {
		return s.fail(rsperr.New(rsperr.KindSocketError, "not connected"))
	}
	s.opts.Logger.LogCommunication("Send", frame)
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordSend(frame)
	}
	if err := s.transport.Send(frame, s.opts.SendTimeout); err != nil {
		return s.fail(err)
	}
	if s.ackMode {
		s.waitAck()
	}
	return nil
}

// waitAck waits for the '+' that acknowledges a sent frame. A missing or
// wrong byte is logged only.
func (s *Session) waitAck() {
	log := s.opts.Logger
	deadline := time.Now().Add(s.opts.LongTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Info("ACK timeout: no acknowledgement received within %v", s.opts.LongTimeout)
			return
		}
		b, err := s.readByte(remaining)
		if err != nil {
			switch rsperr.KindOf(err) {
			case rsperr.KindRecvTimeout:
				continue
			case rsperr.KindConnectionClosed:
				log.Info("Connection to the GDB server has been closed while waiting for ACK")
			default:
				log.Info("Socket error while waiting for ACK: %v", err)
			}
			return
		}
		if b == '+' {
			return
		}
		log.Info("Bad ACK received: %q", b)
		s.FlushUnsolicited()
	}
}

func (s *Session) readByte(timeout time.Duration) (byte, error) {
	if len(s.pending) > 0 {
		b := s.pending[0]
		s.pending = s.pending[1:]
		return b, nil
	}
	n, err := s.transport.Receive(s.rbuf[:1], timeout)
	if err != nil {
		return 0, err
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordRecv(s.rbuf[:n])
	}
	return s.rbuf[0], nil
}

// ReceiveFrame returns the next frame: all bytes up to and including the
// first '#' and its two checksum characters. Bytes after the frame are
// kept for the next call. In ack mode the frame is acknowledged.
func (s *Session) ReceiveFrame(timeout time.Duration) ([]byte, error) {
	if s.state != StateConnectedAck && s.state != StateConnectedNoAck {
		return nil, s.fail(rsperr.New(rsperr.KindSocketError, "not connected"))
	}
	deadline := time.Now().Add(timeout)
	for {
		if end := frameEnd(s.pending); end > 0 {
			frame := append([]byte(nil), s.pending[:end]...)
			s.pending = append(s.pending[:0], s.pending[end:]...)
			s.opts.Logger.LogCommunication("Recv", frame)
			if s.ackMode {
				s.sendAck()
			}
			return frame, nil
		}
		if len(s.pending) >= codec.MaxFrameSize {
			s.pending = s.pending[:0]
			return nil, s.fail(rsperr.Newf(rsperr.KindOverflow, "no frame end within %d bytes", codec.MaxFrameSize))
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, s.fail(rsperr.New(rsperr.KindRecvTimeout, ""))
		}
		room := codec.MaxFrameSize - len(s.pending)
		n, err := s.transport.Receive(s.rbuf[:room], remaining)
		if err != nil {
			return nil, s.fail(err)
		}
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordRecv(s.rbuf[:n])
		}
		s.pending = append(s.pending, s.rbuf[:n]...)
	}
}

// frameEnd returns the length of the first complete frame in buf, or 0.
func frameEnd(buf []byte) int {
	i := bytes.IndexByte(buf, '#')
	if i < 0 || len(buf) < i+3 {
		return 0
	}
	return i + 3
}

func (s *Session) sendAck() {
	ack := []byte{'+'}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordSend(ack)
	}
	if err := s.transport.Send(ack, s.opts.SendTimeout); err != nil {
		s.opts.Logger.Info("Could not send ACK: %v", err)
	}
}

// FlushUnsolicited discards buffered and immediately available input, such
// as messages the server sends after a breakpoint or target reset. It
// returns the discarded bytes.
func (s *Session) FlushUnsolicited() []byte {
	if s.state != StateConnectedAck && s.state != StateConnectedNoAck {
		return nil
	}
	discarded := append([]byte(nil), s.pending...)
	s.pending = s.pending[:0]
	for {
		n, err := s.transport.Receive(s.rbuf, flushPollTimeout)
		if err != nil {
			break
		}
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordRecv(s.rbuf[:n])
		}
		discarded = append(discarded, s.rbuf[:n]...)
	}
	if len(discarded) > 0 {
		s.opts.Logger.LogCommunication("Recv", discarded)
		s.opts.Logger.Verbose("Discarded %d unsolicited bytes", len(discarded))
	}
	return discarded
}

// Detach sends D and waits for one reply, whose content is ignored.
func (s *Session) Detach() error {
	if err := s.SendCommand("D"); err != nil {
		return err
	}
	if _, err := s.ReceiveFrame(s.opts.RecvTimeout); err != nil {
		s.opts.Logger.Verbose("No reply to detach: %v", err)
	}
	return nil
}

// Close optionally detaches and closes the stream.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	if s.opts.DetachOnClose && (s.state == StateConnectedAck || s.state == StateConnectedNoAck) {
		if err := s.Detach(); err != nil {
			s.opts.Logger.Info("Detach failed: %v", err)
		}
	}
	s.state = StateClosed
	return s.transport.Disconnect()
}

// Capabilities returns the negotiated packet limits.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// AckMode reports whether frames are still acknowledged with '+'.
func (s *Session) AckMode() bool {
	return s.ackMode
}

// State returns the connection state.
func (s *Session) State() State {
	return s.state
}

// SetProgress installs or clears the memory transfer progress callback.
func (s *Session) SetProgress(fn ProgressFunc) {
	s.opts.Progress = fn
}

// LastError returns the most recent failure since the last ResetError.
func (s *Session) LastError() error {
	return s.lastErr
}

// ResetError clears the last error. Top-level operations call it on entry.
func (s *Session) ResetError() {
	s.lastErr = nil
}

func (s *Session) fail(err error) error {
	s.lastErr = err
	return err
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func (s *Session) String() string {
	return fmt.Sprintf("rsp session (%s, packet size %d)", s.state, s.caps.MaxSendSize)
}
