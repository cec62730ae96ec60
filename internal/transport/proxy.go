package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Dialer opens streams to the GDB server through a gateway.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
	Close() error
	String() string
}

// Open parses a gateway specification: socks5:// URLs select a SOCKS5
// proxy, everything else an SSH gateway.
func Open(spec string) (Dialer, error) {
	s := strings.TrimSpace(spec)
	if IsProxy(s) {
		return ParseProxy(s)
	}
	return Parse(s)
}

// IsProxy reports whether spec names a SOCKS5 proxy.
func IsProxy(spec string) bool {
	s := strings.TrimSpace(spec)
	return strings.HasPrefix(s, "socks5://") || strings.HasPrefix(s, "socks5h://")
}

// Proxy dials through a SOCKS5 server.
type Proxy struct {
	addr    string
	auth    *proxy.Auth
	timeout time.Duration
}

// ParseProxy parses "socks5://[user:pass@]host:port".
func ParseProxy(spec string) (*Proxy, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("proxy host is required")
	}
	port := u.Port()
	if port == "" {
		port = "1080"
	}
	p := &Proxy{addr: net.JoinHostPort(u.Hostname(), port), timeout: DefaultOptions().ConnectTimeout}
	if u.User != nil {
		pw, _ := u.User.Password()
		p.auth = &proxy.Auth{User: u.User.Username(), Password: pw}
	}
	return p, nil
}

func (p *Proxy) Addr() string { return p.addr }

func (p *Proxy) String() string { return "socks5://" + p.addr }

// DialContext connects to addr through the proxy.
func (p *Proxy) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	d, err := proxy.SOCKS5("tcp", p.addr, p.auth, &net.Dialer{Timeout: p.timeout})
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", p.addr, err)
	}
	var conn net.Conn
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("forward to %s via %s: %w", addr, p.addr, err)
	}
	return conn, nil
}

// Close is a no-op; every stream owns its proxy connection.
func (p *Proxy) Close() error { return nil }

var (
	_ Dialer = (*Gateway)(nil)
	_ Dialer = (*Proxy)(nil)
)
