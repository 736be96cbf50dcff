// Package local implements assetx.Backend on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
)

// Backend stores files under a root directory. Writes stream into a temp
// file in the destination directory and are renamed into place, so readers
// never observe a partially written object.
type Backend struct {
	root   string
	logger logx.Logger
}

var _ assetx.Backend = (*Backend)(nil)

// New creates a Backend rooted at root, creating the directory if needed.
func New(root string, logger logx.Logger) (*Backend, error) {
	if logger == nil {
		logger = logx.NewNoopLogger()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Backend{root: absRoot, logger: logger}, nil
}

// Kind implements assetx.Backend
func (b *Backend) Kind() assetx.BackendKind { return assetx.BackendLocal }

// Root returns the absolute storage root
func (b *Backend) Root() string { return b.root }

// abs resolves a slash-separated backend path to a filesystem path and
// rejects anything that would leave the root.
func (b *Backend) abs(p string) (string, error) {
	joined := filepath.Join(b.root, filepath.Clean(filepath.FromSlash(p)))
	rel, err := filepath.Rel(b.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes storage root", assetx.ErrInvalidPath, p)
	}
	return joined, nil
}

// Upload streams r to dir/name using a temp file and an atomic rename.
func (b *Backend) Upload(ctx context.Context, dir, name string, r io.Reader, size int64) (string, error) {
	storagePath := assetx.JoinPath(dir, name)
	dest, err := b.abs(storagePath)
	if err != nil {
		return "", err
	}

	n, err := writeAtomic(ctx, dest, r, size)
	if err != nil {
		return "", &assetx.Error{Op: "write", ID: storagePath, Err: err}
	}

	b.logger.Debug("File written", assetx.ArgsToFields("path", storagePath, "bytes", n)...)
	return storagePath, nil
}

// writeAtomic copies r into dest via a sibling temp file. dest is replaced
// only after the copy and close succeed and, when size >= 0, the byte count
// matches size.
func writeAtomic(ctx context.Context, dest string, r io.Reader, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("mkdir %q: %w", filepath.Dir(dest), err)
	}

	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".upload-*")
	if err != nil {
		return 0, fmt.Errorf("open tmp: %w", err)
	}
	tmp := f.Name()

	n, werr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	cerr := f.Close()

	if werr != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, fmt.Errorf("stream write: %w", werr)
	}
	if cerr != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, fmt.Errorf("flush: %w", cerr)
	}
	if size >= 0 && n != size {
		os.Remove(tmp) //nolint:errcheck
		return 0, fmt.Errorf("declared size %d but read %d bytes", size, n)
	}
	if err := os.Chmod(tmp, 0o640); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, fmt.Errorf("chmod: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, fmt.Errorf("rename to %q: %w", dest, err)
	}
	return n, nil
}

// Download streams dir/name into w
func (b *Backend) Download(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	storagePath := assetx.JoinPath(dir, name)
	src, err := b.abs(storagePath)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, &assetx.Error{Op: "read", ID: storagePath, Err: assetx.ErrObjectNotFound}
		}
		return 0, &assetx.Error{Op: "read", ID: storagePath, Err: err}
	}
	defer f.Close()

	n, err := io.Copy(w, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return n, &assetx.Error{Op: "read", ID: storagePath, Err: err}
	}
	return n, nil
}

// Delete removes dir/name. Silently succeeds on ENOENT.
func (b *Backend) Delete(ctx context.Context, dir, name string) error {
	storagePath := assetx.JoinPath(dir, name)
	p, err := b.abs(storagePath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &assetx.Error{Op: "delete", ID: storagePath, Err: err}
	}
	return nil
}

// Exists reports whether dir/name exists under root
func (b *Backend) Exists(ctx context.Context, dir, name string) (bool, error) {
	p, err := b.abs(assetx.JoinPath(dir, name))
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Rename moves dir/oldName to dir/newName atomically where the OS permits
func (b *Backend) Rename(ctx context.Context, dir, oldName, newName string) error {
	src, err := b.abs(assetx.JoinPath(dir, oldName))
	if err != nil {
		return err
	}
	dst, err := b.abs(assetx.JoinPath(dir, newName))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &assetx.Error{Op: "rename", ID: oldName, Err: fmt.Errorf("%w: %w", assetx.ErrObjectNotFound, err)}
		}
		return &assetx.Error{Op: "rename", ID: oldName, Err: err}
	}
	return nil
}

// Copy duplicates a file, or a directory tree, from srcPath to dstPath
func (b *Backend) Copy(ctx context.Context, srcPath, dstPath string) error {
	src, err := b.abs(srcPath)
	if err != nil {
		return err
	}
	dst, err := b.abs(dstPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &assetx.Error{Op: "copy", ID: srcPath, Err: assetx.ErrObjectNotFound}
		}
		return &assetx.Error{Op: "copy", ID: srcPath, Err: err}
	}

	if !info.IsDir() {
		return copyFile(ctx, src, dst)
	}

	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(ctx, p, target)
	})
}

func copyFile(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = writeAtomic(ctx, dst, f, -1)
	return err
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
