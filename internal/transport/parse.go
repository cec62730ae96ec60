package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Options configures an SSH gateway.
type Options struct {
	User          string
	KeyFile       string
	KeyPassphrase string
	Password      string
	Agent         bool

	KnownHostsFile     string
	InsecureIgnoreHost bool

	Port           int
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// DefaultOptions returns the gateway defaults: port 22, agent auth and a
// 30 second keep-alive.
func DefaultOptions() Options {
	return Options{
		Port:           22,
		ConnectTimeout: 15 * time.Second,
		KeepAlive:      30 * time.Second,
		Agent:          true,
	}
}

// Parse parses a gateway specification. Accepted forms:
//   - "ssh://user@host:port"
//   - "ssh://user@host?key=/path&known_hosts=/path&insecure=true&agent=false"
//   - "user@host:port" or a bare host name
func Parse(spec string) (*Gateway, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty gateway specification")
	}
	if strings.Contains(spec, "://") {
		return parseURL(spec)
	}
	return parseHost(spec)
}

func parseURL(spec string) (*Gateway, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "ssh" {
		return nil, fmt.Errorf("unsupported gateway scheme: %s", u.Scheme)
	}

	opts := DefaultOptions()
	if u.User != nil {
		opts.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		opts.Port = port
	}

	q := u.Query()
	opts.KeyFile = q.Get("key")
	opts.KeyPassphrase = q.Get("passphrase")
	opts.KnownHostsFile = q.Get("known_hosts")
	if v := q.Get("insecure"); v == "true" || v == "1" {
		opts.InsecureIgnoreHost = true
	}
	if v := q.Get("agent"); v == "false" || v == "0" {
		opts.Agent = false
	}
	if v := q.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		opts.ConnectTimeout = d
	}
	return NewGateway(host, opts)
}

// parseHost handles user@host:port. Usernames may contain '@'.
func parseHost(spec string) (*Gateway, error) {
	opts := DefaultOptions()
	if idx := strings.LastIndex(spec, "@"); idx != -1 {
		opts.User = spec[:idx]
		spec = spec[idx+1:]
	}
	host := spec
	if idx := strings.LastIndex(spec, ":"); idx != -1 {
		if port, err := strconv.Atoi(spec[idx+1:]); err == nil {
			opts.Port = port
			host = spec[:idx]
		}
	}
	if host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}
	return NewGateway(host, opts)
}
