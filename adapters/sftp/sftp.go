// Package sftp implements assetx.Backend on a remote file server reached
// over SFTP.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
	"github.com/pkg/sftp"
)

// Backend stores files below a root directory on an SFTP server. The
// session is dialed lazily and redialed after the connection drops.
type Backend struct {
	cfg    *assetx.RemoteFileServerConfig
	root   string
	dial   Dialer
	logger logx.Logger

	mu      sync.Mutex
	client  *sftp.Client
	closeFn func() error
}

var _ assetx.Backend = (*Backend)(nil)

// New creates a Backend that dials the configured server over SSH.
func New(cfg *assetx.RemoteFileServerConfig, logger logx.Logger) (*Backend, error) {
	dial, err := SSHDialer(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDialer(cfg, dial, logger), nil
}

// NewWithDialer creates a Backend that opens sessions with dial.
func NewWithDialer(cfg *assetx.RemoteFileServerConfig, dial Dialer, logger logx.Logger) *Backend {
	if logger == nil {
		logger = logx.NewNoopLogger()
	}
	root := path.Clean("/" + strings.ReplaceAll(cfg.Root, "\\", "/"))
	return &Backend{
		cfg:    cfg,
		root:   root,
		dial:   dial,
		logger: logger,
	}
}

// Kind implements assetx.Backend
func (b *Backend) Kind() assetx.BackendKind { return assetx.BackendRemoteFileServer }

// Close ends the current session, if any
func (b *Backend) Close() error {
	b.mu.Lock()
	client, closeFn := b.detachLocked()
	b.mu.Unlock()
	return closeSession(client, closeFn)
}

// Ping opens (or reuses) a session and stats the root directory.
func (b *Backend) Ping(ctx context.Context) error {
	return b.do(ctx, func(c *sftp.Client) error {
		_, err := c.Stat(b.root)
		return err
	})
}

// session returns the live client, dialing with exponential backoff when
// there is none.
func (b *Backend) session(ctx context.Context) (*sftp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	retries := uint64(max(b.cfg.DialRetries, 0))

	var (
		client  *sftp.Client
		closeFn func() error
	)
	op := func() error {
		var err error
		client, closeFn, err = b.dial(ctx)
		if err != nil {
			b.logger.Warn("SFTP dial failed", assetx.ArgsToFields("host", b.cfg.Host, "error", err)...)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return nil, fmt.Errorf("connect to remote file server: %w", err)
	}

	b.client, b.closeFn = client, closeFn
	b.logger.Debug("SFTP session established", assetx.ArgsToFields("host", b.cfg.Host, "root", b.root)...)
	return client, nil
}

// detachLocked forgets the current session and returns it for closing
// outside the lock.
func (b *Backend) detachLocked() (*sftp.Client, func() error) {
	client, closeFn := b.client, b.closeFn
	b.client, b.closeFn = nil, nil
	return client, closeFn
}

// closeSession tears down the transport before the client. Client.Close
// waits for its receive loop, which only ends once the transport is gone.
func closeSession(client *sftp.Client, closeFn func() error) error {
	if client == nil {
		return nil
	}
	var err error
	if closeFn != nil {
		err = closeFn()
	}
	if cerr := client.Close(); cerr != nil && err == nil && !errors.Is(cerr, io.EOF) && !errors.Is(cerr, sftp.ErrSSHFxConnectionLost) {
		err = cerr
	}
	return err
}

// do runs fn against a live session. A lost connection drops the session
// so the next call redials.
func (b *Backend) do(ctx context.Context, fn func(c *sftp.Client) error) error {
	c, err := b.session(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn(c) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		// The SFTP protocol has no per-request cancel; dropping the session
		// unblocks fn.
		b.invalidate(c)
		<-done
		return ctx.Err()
	}

	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.ErrUnexpectedEOF) {
		b.invalidate(c)
	}
	return err
}

func (b *Backend) invalidate(c *sftp.Client) {
	b.mu.Lock()
	if b.client != c {
		b.mu.Unlock()
		return
	}
	client, closeFn := b.detachLocked()
	b.mu.Unlock()

	if err := closeSession(client, closeFn); err != nil {
		b.logger.Debug("Error closing dropped SFTP session", assetx.ArgsToFields("error", err)...)
	}
}

// remote maps a backend path below the configured root
func (b *Backend) remote(p string) (string, error) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q escapes remote root", assetx.ErrInvalidPath, p)
	}
	return path.Join(b.root, p), nil
}

// Upload writes r to a temp name next to dir/name and renames it into
// place once the byte count is verified.
func (b *Backend) Upload(ctx context.Context, dir, name string, r io.Reader, size int64) (string, error) {
	storagePath := assetx.JoinPath(dir, name)
	dest, err := b.remote(storagePath)
	if err != nil {
		return "", err
	}

	err = b.do(ctx, func(c *sftp.Client) error {
		return writeAtomic(c, dest, r, size)
	})
	if err != nil {
		return "", &assetx.Error{Op: "write", ID: storagePath, Err: err}
	}

	b.logger.Debug("Remote file written", assetx.ArgsToFields("path", dest)...)
	return storagePath, nil
}

func writeAtomic(c *sftp.Client, dest string, r io.Reader, size int64) error {
	if err := c.MkdirAll(path.Dir(dest)); err != nil {
		return fmt.Errorf("mkdir %q: %w", path.Dir(dest), err)
	}

	tmp := path.Join(path.Dir(dest), fmt.Sprintf(".%s.upload-%d", path.Base(dest), time.Now().UnixNano()))
	f, err := c.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}

	n, werr := io.Copy(f, r)
	cerr := f.Close()

	switch {
	case werr != nil:
		c.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("stream write: %w", werr)
	case cerr != nil:
		c.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("flush: %w", cerr)
	case size >= 0 && n != size:
		c.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("declared size %d but wrote %d bytes", size, n)
	}

	if err := replaceFile(c, tmp, dest); err != nil {
		c.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

// replaceFile renames src over dst. Plain SFTP rename refuses an existing
// target, so servers without posix-rename get a remove first.
func replaceFile(c *sftp.Client, src, dst string) error {
	if err := c.PosixRename(src, dst); err == nil {
		return nil
	}
	if err := c.Remove(dst); err != nil && !isNotExist(err) {
		return fmt.Errorf("remove %q: %w", dst, err)
	}
	if err := c.Rename(src, dst); err != nil {
		return fmt.Errorf("rename to %q: %w", dst, err)
	}
	return nil
}

// Download streams dir/name into w
func (b *Backend) Download(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	storagePath := assetx.JoinPath(dir, name)
	src, err := b.remote(storagePath)
	if err != nil {
		return 0, err
	}

	var n int64
	err = b.do(ctx, func(c *sftp.Client) error {
		f, err := c.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		if isNotExist(err) {
			return 0, &assetx.Error{Op: "read", ID: storagePath, Err: assetx.ErrObjectNotFound}
		}
		return n, &assetx.Error{Op: "read", ID: storagePath, Err: err}
	}
	return n, nil
}

// Delete removes dir/name. A missing file is not an error.
func (b *Backend) Delete(ctx context.Context, dir, name string) error {
	storagePath := assetx.JoinPath(dir, name)
	p, err := b.remote(storagePath)
	if err != nil {
		return err
	}

	err = b.do(ctx, func(c *sftp.Client) error {
		if err := c.Remove(p); err != nil && !isNotExist(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return &assetx.Error{Op: "delete", ID: storagePath, Err: err}
	}
	return nil
}

// Exists reports whether dir/name exists
func (b *Backend) Exists(ctx context.Context, dir, name string) (bool, error) {
	p, err := b.remote(assetx.JoinPath(dir, name))
	if err != nil {
		return false, err
	}

	var exists bool
	err = b.do(ctx, func(c *sftp.Client) error {
		_, err := c.Stat(p)
		if isNotExist(err) {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// Rename moves dir/oldName to dir/newName
func (b *Backend) Rename(ctx context.Context, dir, oldName, newName string) error {
	src, err := b.remote(assetx.JoinPath(dir, oldName))
	if err != nil {
		return err
	}
	dst, err := b.remote(assetx.JoinPath(dir, newName))
	if err != nil {
		return err
	}

	err = b.do(ctx, func(c *sftp.Client) error {
		if _, err := c.Stat(src); err != nil {
			return err
		}
		return replaceFile(c, src, dst)
	})
	if err != nil {
		if isNotExist(err) {
			return &assetx.Error{Op: "rename", ID: oldName, Err: fmt.Errorf("%w: %w", assetx.ErrObjectNotFound, err)}
		}
		return &assetx.Error{Op: "rename", ID: oldName, Err: err}
	}
	return nil
}

// Copy duplicates a file, or a directory tree, from srcPath to dstPath by
// streaming it through the client.
func (b *Backend) Copy(ctx context.Context, srcPath, dstPath string) error {
	src, err := b.remote(srcPath)
	if err != nil {
		return err
	}
	dst, err := b.remote(dstPath)
	if err != nil {
		return err
	}

	err = b.do(ctx, func(c *sftp.Client) error {
		return copyTree(ctx, c, src, dst)
	})
	if err != nil {
		if isNotExist(err) {
			return &assetx.Error{Op: "copy", ID: srcPath, Err: assetx.ErrObjectNotFound}
		}
		return &assetx.Error{Op: "copy", ID: srcPath, Err: err}
	}
	return nil
}

func copyTree(ctx context.Context, c *sftp.Client, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := c.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		f, err := c.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		return writeAtomic(c, dst, f, -1)
	}

	if err := c.MkdirAll(dst); err != nil {
		return err
	}
	entries, err := c.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyTree(ctx, c, path.Join(src, e.Name()), path.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		return true
	}
	var statusErr *sftp.StatusError
	return errors.As(err, &statusErr) && statusErr.FxCode() == sftp.ErrSSHFxNoSuchFile
}
