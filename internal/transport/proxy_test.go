package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/tturner/rtegdb/internal/rsp/client"
	"github.com/tturner/rtegdb/internal/rsp/rsptest"
)

// startSOCKS5 runs a no-auth SOCKS5 server that accepts CONNECT to IPv4
// targets.
func startSOCKS5(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(c)
		}
	}()
	return ln.Addr().String()
}

func serveSOCKS5(c net.Conn) {
	defer c.Close()
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(c, hdr); err != nil || hdr[0] != 5 {
		return
	}
	if _, err := io.ReadFull(c, make([]byte, hdr[1])); err != nil {
		return
	}
	if _, err := c.Write([]byte{5, 0}); err != nil {
		return
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(c, req); err != nil || req[1] != 1 || req[3] != 1 {
		c.Write([]byte{5, 7, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	dst := make([]byte, 6)
	if _, err := io.ReadFull(c, dst); err != nil {
		return
	}
	addr := net.JoinHostPort(net.IP(dst[:4]).String(), strconv.Itoa(int(binary.BigEndian.Uint16(dst[4:]))))
	target, err := net.Dial("tcp", addr)
	if err != nil {
		c.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()
	if _, err := c.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}
	go io.Copy(target, c)
	io.Copy(c, target)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{spec: "socks5://10.1.1.1:9050", want: "socks5://10.1.1.1:9050"},
		{spec: "socks5://user:pw@jump", want: "socks5://jump:1080"},
		{spec: "ssh://lab@bench:2200", want: "ssh://lab@bench:2200"},
		{spec: "bench", want: "ssh://bench:22"},
		{spec: "socks5://:1080", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			d, err := Open(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.String() != tt.want {
				t.Errorf("String() = %q, want %q", d.String(), tt.want)
			}
		})
	}
	if !IsProxy("socks5h://jump:1080") || IsProxy("ssh://jump") {
		t.Error("IsProxy misclassified a specification")
	}
}

func TestProxyForwardsRSP(t *testing.T) {
	const base = 0x20000000
	srv := rsptest.NewServer(t, base, 64)
	srv.Poke(base+8, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	srv.Start()
	host, port := srv.Addr()

	d, err := Open("socks5://" + startSOCKS5(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, err := client.DialConn(ctx, conn, client.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	buf := make([]byte, 4)
	if err := sess.ReadMemory(ctx, base+8, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("read % X", buf)
	}
}
