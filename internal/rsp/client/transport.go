package client

// Byte-stream transport to the GDB server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	rsperr "github.com/tturner/rtegdb/internal/errors"
)

// Transport is a connected byte stream whose reads and writes time out.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Send(data []byte, timeout time.Duration) error
	Receive(buf []byte, timeout time.Duration) (int, error)
	IsConnected() bool
}

// TCPTransport implements Transport over a TCP connection. It is owned by a
// single session and is not safe for concurrent use.
type TCPTransport struct {
	conn        net.Conn
	addr        string
	dialTimeout time.Duration
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport creates an unconnected TCP transport
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{dialTimeout: 5 * time.Second}
}

// NewConnTransport wraps an already connected stream.
func NewConnTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn, addr: conn.RemoteAddr().String(), dialTimeout: 5 * time.Second}
}

// Connect establishes a TCP connection
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	dialer := net.Dialer{
		Timeout: t.dialTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial TCP: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// Small RSP frames must not wait for Nagle coalescing
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return fmt.Errorf("set no-delay: %w", err)
		}
	}

	t.conn = conn
	t.addr = addr
	return nil
}

// Disconnect closes the TCP connection
func (t *TCPTransport) Disconnect() error {
	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = ""

	return err
}

// Send writes all of data or fails with SendTimeout, MsgNotFullySent or
// SocketError.
func (t *TCPTransport) Send(data []byte, timeout time.Duration) error {
	if t.conn == nil {
		return rsperr.New(rsperr.KindSocketError, "not connected")
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return rsperr.Wrap(rsperr.KindSocketError, err)
	}

	n, err := t.conn.Write(data)
	if err != nil {
		if isTimeout(err) {
			if n > 0 {
				return rsperr.Newf(rsperr.KindMsgNotFullySent, "%d of %d bytes sent", n, len(data))
			}
			return rsperr.Wrap(rsperr.KindSendTimeout, err)
		}
		return rsperr.Wrap(rsperr.KindSocketError, err)
	}
	if n != len(data) {
		return rsperr.Newf(rsperr.KindMsgNotFullySent, "%d of %d bytes sent", n, len(data))
	}
	return nil
}

// Receive reads whatever is available into buf, waiting at most timeout.
// It fails with RecvTimeout, ConnectionClosed or SocketError.
func (t *TCPTransport) Receive(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, rsperr.New(rsperr.KindSocketError, "not connected")
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, rsperr.Wrap(rsperr.KindSocketError, err)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		switch {
		case n > 0:
			return n, nil
		case isTimeout(err):
			return 0, rsperr.New(rsperr.KindRecvTimeout, "")
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
			return 0, rsperr.Wrap(rsperr.KindConnectionClosed, err)
		default:
			return 0, rsperr.Wrap(rsperr.KindSocketError, err)
		}
	}
	if n == 0 {
		return 0, rsperr.New(rsperr.KindConnectionClosed, "")
	}
	return n, nil
}

// IsConnected returns whether the transport has a stream
func (t *TCPTransport) IsConnected() bool {
	return t.conn != nil
}

// LocalAddr and RemoteAddr expose the endpoints for packet capture.
func (t *TCPTransport) LocalAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *TCPTransport) RemoteAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
