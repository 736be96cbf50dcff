package assetx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gostratum/core/logx"
)

// TempSuffix is appended to a stored name while its replacement uploads.
const TempSuffix = ".temp"

// TempName returns the name the prior content is parked under during a replace.
func TempName(storedName string) string {
	return storedName + TempSuffix
}

// ReplaceCoordinator swaps the content of an existing asset in place. The
// prior object is renamed to its temp name, the new content is uploaded
// under the original stored name, and the temp object is deleted. When the
// upload fails the temp object is renamed back so the prior content stays
// retrievable under the stored name.
//
// ReplaceCoordinator does no locking; callers serialize per asset id.
type ReplaceCoordinator struct {
	backend   Backend
	policy    *ExtensionPolicy
	logger    logx.Logger
	inst      *Instrumenter
	clock     func() time.Time
	timeout   time.Duration
	urlPrefix string
}

// NewReplaceCoordinator creates a coordinator over backend. The
// configuration supplies the allow-list, the per-call timeout and the URL
// prefix.
func NewReplaceCoordinator(cfg *Config, backend Backend, options ...Option) *ReplaceCoordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions(options...)
	return &ReplaceCoordinator{
		backend:   backend,
		policy:    NewExtensionPolicy(cfg.AllowedExtensions),
		logger:    opts.logger,
		inst:      opts.instrumenter,
		clock:     opts.clock,
		timeout:   cfg.OperationTimeout,
		urlPrefix: cfg.URLPrefix,
	}
}

// Replace uploads the content from open as the new content of rec and
// returns the updated record. rec itself is not modified. originalName
// supplies the new extension; when empty the record's current name is kept.
func (c *ReplaceCoordinator) Replace(ctx context.Context, rec *Asset, originalName string, size int64, open SourceFunc) (*Asset, error) {
	const op = "replace"

	if rec == nil {
		return nil, newError(op, "", ErrAssetNotFound, nil)
	}
	if originalName == "" {
		originalName = rec.OriginalName
	}

	ext := ExtensionOf(originalName)
	if !c.policy.Allowed(ext) {
		return nil, newError(op, rec.ID, ErrUnsupportedExtension, fmt.Errorf("extension %q is not allowed", ext))
	}

	dir, name, err := ResolvePath(rec.StoragePath, rec.StoredName)
	if err != nil {
		return nil, newError(op, rec.ID, ErrBackendUpload, err)
	}
	temp := TempName(name)

	src, err := acquireSource(open)
	if err != nil {
		return nil, newError(op, rec.ID, ErrStreamAcquisition, err)
	}
	defer src.Close()

	var existed bool
	err = bounded(ctx, c.timeout, func(ctx context.Context) error {
		var err error
		existed, err = c.backend.Exists(ctx, dir, name)
		return err
	})
	if err != nil {
		return nil, newError(op, rec.ID, ErrBackendRename, fmt.Errorf("check %s: %w", name, err))
	}

	if existed {
		err = bounded(ctx, c.timeout, func(ctx context.Context) error {
			return c.backend.Rename(ctx, dir, name, temp)
		})
		if err != nil {
			c.logger.Error("Failed to park asset before replace",
				ArgsToFields("id", rec.ID, "name", name, "error", err)...)
			return nil, newError(op, rec.ID, ErrBackendRename, err)
		}
	}

	counted := &countingReader{r: src}
	err = bounded(ctx, c.timeout, func(ctx context.Context) error {
		_, err := c.backend.Upload(ctx, dir, name, counted, size)
		return err
	})
	if err != nil {
		c.logger.Error("Replace upload failed",
			ArgsToFields("id", rec.ID, "name", name, "existed", existed, "error", err)...)
		uploadErr := newError(op, rec.ID, ErrBackendUpload, err)
		if existed {
			if rbErr := c.rollback(ctx, rec.ID, dir, name, temp); rbErr != nil {
				return nil, errors.Join(uploadErr, rbErr)
			}
		}
		return nil, uploadErr
	}

	if existed {
		err = bounded(ctx, c.timeout, func(ctx context.Context) error {
			return c.backend.Delete(ctx, dir, temp)
		})
		if err != nil {
			c.inst.RecordCleanupFailure(op)
			c.logger.Warn("Failed to delete temp object after replace",
				ArgsToFields("id", rec.ID, "name", temp, "error", newError(op, rec.ID, ErrBackendDelete, err))...)
		}
	}

	updated := rec.Clone()
	updated.OriginalName = baseName(originalName)
	updated.Extension = ext
	updated.Size = counted.n
	updated.URL = assetURL(c.urlPrefix, rec.StoredName)
	updated.UpdatedAt = c.clock()

	c.inst.RecordOperationSize(op, counted.n)
	c.logger.Debug("Asset replaced",
		ArgsToFields("id", rec.ID, "name", name, "size", counted.n, "existed", existed)...)

	return updated, nil
}

// rollback restores the parked object under its stored name. Any partial
// object the failed upload left behind is removed first. It runs even when
// the caller's context is already cancelled.
func (c *ReplaceCoordinator) rollback(ctx context.Context, id, dir, name, temp string) error {
	err := bounded(context.WithoutCancel(ctx), c.timeout, func(ctx context.Context) error {
		if err := c.backend.Delete(ctx, dir, name); err != nil {
			return err
		}
		return c.backend.Rename(ctx, dir, temp, name)
	})
	if err != nil {
		c.inst.RecordRollback("failed")
		c.logger.Error("Replace rollback failed; prior content remains under temp name",
			ArgsToFields("id", id, "temp", temp, "error", err)...)
		return newError("rollback", id, ErrBackendRename, err)
	}

	c.inst.RecordRollback("restored")
	c.logger.Warn("Replace rolled back",
		ArgsToFields("id", id, "name", name)...)
	return nil
}

// RecoverStale repairs the leftovers of an interrupted replace. A temp
// object with no live object is renamed back; a temp object next to a live
// one is deleted. It reports whether anything was changed.
func (c *ReplaceCoordinator) RecoverStale(ctx context.Context, rec *Asset) (bool, error) {
	const op = "recover"

	if rec == nil {
		return false, newError(op, "", ErrAssetNotFound, nil)
	}

	dir, name, err := ResolvePath(rec.StoragePath, rec.StoredName)
	if err != nil {
		return false, newError(op, rec.ID, ErrBackendRename, err)
	}
	temp := TempName(name)

	var liveExists, tempExists bool
	err = bounded(ctx, c.timeout, func(ctx context.Context) error {
		var err error
		if liveExists, err = c.backend.Exists(ctx, dir, name); err != nil {
			return err
		}
		tempExists, err = c.backend.Exists(ctx, dir, temp)
		return err
	})
	if err != nil {
		return false, newError(op, rec.ID, ErrBackendRename, err)
	}

	switch {
	case !tempExists:
		return false, nil
	case liveExists:
		err = bounded(ctx, c.timeout, func(ctx context.Context) error {
			return c.backend.Delete(ctx, dir, temp)
		})
		if err != nil {
			return false, newError(op, rec.ID, ErrBackendDelete, err)
		}
		c.logger.Info("Removed stale temp object", ArgsToFields("id", rec.ID, "name", temp)...)
		return true, nil
	default:
		err = bounded(ctx, c.timeout, func(ctx context.Context) error {
			return c.backend.Rename(ctx, dir, temp, name)
		})
		if err != nil {
			return false, newError(op, rec.ID, ErrBackendRename, err)
		}
		c.logger.Info("Restored asset from temp object", ArgsToFields("id", rec.ID, "name", name)...)
		return true, nil
	}
}

// bounded runs fn under timeout. A deadline hit inside fn is reported as
// ErrTimeout in addition to fn's own error.
func bounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// acquireSource opens the upload source, treating a nil func or nil stream
// as an acquisition failure.
func acquireSource(open SourceFunc) (io.ReadCloser, error) {
	if open == nil {
		return nil, errors.New("no source")
	}
	rc, err := open()
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, errors.New("source returned nil stream")
	}
	return rc, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func assetURL(prefix, storedName string) string {
	return prefix + "/" + storedName
}
