package sftp

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/gostratum/assetx"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Dialer opens a fresh SFTP session. closeFn releases whatever transport
// sits underneath the client (for SSH, the SSH connection).
type Dialer func(ctx context.Context) (client *sftp.Client, closeFn func() error, err error)

// SSHDialer returns a Dialer that connects over SSH using the configured
// password and/or private key. Host keys are checked against
// KnownHostsPath when it is set.
func SSHDialer(cfg *assetx.RemoteFileServerConfig) (Dialer, error) {
	sshCfg, err := sshClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	return func(ctx context.Context) (*sftp.Client, func() error, error) {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
		}
		sshClient := ssh.NewClient(c, chans, reqs)

		client, err := sftp.NewClient(sshClient)
		if err != nil {
			sshClient.Close()
			return nil, nil, fmt.Errorf("start sftp subsystem: %w", err)
		}
		return client, sshClient.Close, nil
	}, nil
}

func sshClientConfig(cfg *assetx.RemoteFileServerConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: remote file server needs a password or private key", assetx.ErrInvalidConfig)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.DialTimeout,
	}, nil
}
