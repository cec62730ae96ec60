package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// buildClientConfig collects auth methods in order: agent, key file,
// default keys, password.
func buildClientConfig(opts Options) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if opts.Agent {
		if a := agentAuth(); a != nil {
			methods = append(methods, a)
		}
	}
	if opts.KeyFile != "" {
		k, err := publicKeyAuth(opts.KeyFile, opts.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("key file auth: %w", err)
		}
		methods = append(methods, k)
	} else if !opts.Agent {
		for _, p := range defaultKeyPaths() {
			if k, err := publicKeyAuth(p, ""); err == nil {
				methods = append(methods, k)
				break
			}
		}
	}
	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	hostKey, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	user := opts.User
	if user == "" {
		user = os.Getenv("USER")
		if user == "" {
			user = os.Getenv("USERNAME")
		}
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         opts.ConnectTimeout,
	}, nil
}

// hostKeyCallback prefers an explicit known_hosts file, then
// ~/.ssh/known_hosts. Without either the host key must be waived with
// insecure=true.
func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := opts.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("known hosts: %w (use insecure=true to skip verification)", err)
	}
	return cb, nil
}

func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
}

func publicKeyAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}
