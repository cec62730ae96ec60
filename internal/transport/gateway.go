// Package transport reaches a GDB server that listens on a remote lab host
// by forwarding the connection through an SSH gateway, and copies snapshot
// files to that host over SFTP.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Gateway is an SSH connection used to open forwarded streams.
type Gateway struct {
	opts   Options
	host   string
	client *ssh.Client
	sftp   *sftp.Client
	mu     sync.Mutex
	done   chan struct{}
}

// NewGateway creates an unconnected gateway.
func NewGateway(host string, opts Options) (*Gateway, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	return &Gateway{opts: opts, host: host}, nil
}

// Addr returns host:port of the SSH server.
func (g *Gateway) Addr() string {
	return net.JoinHostPort(g.host, strconv.Itoa(g.opts.Port))
}

func (g *Gateway) String() string {
	if g.opts.User != "" {
		return "ssh://" + g.opts.User + "@" + g.Addr()
	}
	return "ssh://" + g.Addr()
}

// Options returns the parsed gateway options.
func (g *Gateway) Options() Options {
	return g.opts
}

// Connect establishes the SSH connection. It is a no-op when already
// connected.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return nil
	}

	config, err := buildClientConfig(g.opts)
	if err != nil {
		return fmt.Errorf("build SSH config: %w", err)
	}

	addr := g.Addr()
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake: %w", err)
	}
	conn.SetDeadline(time.Time{})

	g.client = ssh.NewClient(sshConn, chans, reqs)
	g.done = make(chan struct{})
	if g.opts.KeepAlive > 0 {
		go g.keepAlive(g.client, g.done)
	}
	return nil
}

// DialContext opens a forwarded TCP stream to addr as seen from the
// gateway host. The returned connection supports deadlines.
func (g *Gateway) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	if err := g.Connect(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("gateway closed")
	}

	ch, err := client.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("forward to %s via %s: %w", addr, g.Addr(), err)
	}
	return bridge(ch), nil
}

// bridge couples a forwarded channel to one end of an in-memory pipe.
// SSH channels reject read and write deadlines; pipes honour them.
func bridge(ch net.Conn) net.Conn {
	local, remote := net.Pipe()
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			remote.Close()
			ch.Close()
		})
	}
	go func() {
		io.Copy(remote, ch)
		closeBoth()
	}()
	go func() {
		io.Copy(ch, remote)
		closeBoth()
	}()
	return local
}

func (g *Gateway) keepAlive(client *ssh.Client, done <-chan struct{}) {
	ticker := time.NewTicker(g.opts.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) sftpClient() (*sftp.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sftp != nil {
		return g.sftp, nil
	}
	if g.client == nil {
		return nil, fmt.Errorf("gateway not connected")
	}
	c, err := sftp.NewClient(g.client)
	if err != nil {
		return nil, fmt.Errorf("start SFTP: %w", err)
	}
	g.sftp = c
	return c, nil
}

// Put copies a local file to remotePath on the gateway host, creating the
// remote directory when needed. It returns the number of bytes copied.
func (g *Gateway) Put(ctx context.Context, localPath, remotePath string) (int64, error) {
	if err := g.Connect(ctx); err != nil {
		return 0, err
	}
	c, err := g.sftpClient()
	if err != nil {
		return 0, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open local file: %w", err)
	}
	defer src.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := c.MkdirAll(dir); err != nil {
			return 0, fmt.Errorf("create remote directory %s: %w", dir, err)
		}
	}
	dst, err := c.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create remote file: %w", err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("copy to %s: %w", remotePath, err)
	}
	return n, nil
}

// Close shuts down the SFTP session and the SSH connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sftp != nil {
		g.sftp.Close()
		g.sftp = nil
	}
	if g.client == nil {
		return nil
	}
	close(g.done)
	err := g.client.Close()
	g.client = nil
	return err
}
