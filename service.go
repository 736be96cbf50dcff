package assetx

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gostratum/core/logx"
)

// Service is the façade the rest of the system calls. It validates input,
// delegates byte transfer to a Backend, keeps records in a Registry, and
// serializes replace and delete per asset id.
type Service struct {
	cfg      *Config
	backend  Backend
	registry Registry
	policy   *ExtensionPolicy
	replacer *ReplaceCoordinator
	locks    *KeyedMutex
	logger   logx.Logger
	inst     *Instrumenter
	clock    func() time.Time
	newID    IDGenerator
}

// NewService creates a Service. cfg is copied; later changes to it have no
// effect on the service.
func NewService(cfg *Config, backend Backend, registry Registry, options ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.Sanitize()

	opts := newOptions(options...)
	return &Service{
		cfg:      cfg,
		backend:  backend,
		registry: registry,
		policy:   NewExtensionPolicy(cfg.AllowedExtensions),
		replacer: NewReplaceCoordinator(cfg, backend, options...),
		locks:    NewKeyedMutex(),
		logger:   opts.logger,
		inst:     opts.instrumenter,
		clock:    opts.clock,
		newID:    opts.idGenerator,
	}, nil
}

// Backend returns the active storage backend
func (s *Service) Backend() Backend { return s.backend }

// Config returns a copy of the service configuration
func (s *Service) Config() Config { return *s.cfg }

// Upload stores a new asset and registers it. The source is opened only
// after the extension passes the allow-list and is closed before Upload
// returns.
func (s *Service) Upload(ctx context.Context, originalName string, size int64, open SourceFunc) (*Asset, error) {
	const op = "upload"

	ext := ExtensionOf(originalName)
	if !s.policy.Allowed(ext) {
		return nil, newError(op, originalName, ErrUnsupportedExtension, fmt.Errorf("extension %q is not allowed", ext))
	}

	id := s.newID()
	stored := StoredNameFor(id, ext)
	dir, name, err := ResolvePath(s.cfg.BasePath, stored)
	if err != nil {
		return nil, newError(op, id, ErrBackendUpload, err)
	}

	src, err := acquireSource(open)
	if err != nil {
		return nil, newError(op, id, ErrStreamAcquisition, err)
	}
	defer src.Close()

	counted := &countingReader{r: src}
	err = s.inst.TraceOperation(ctx, op, s.backend.Kind(), id, func(ctx context.Context) error {
		err := bounded(ctx, s.cfg.OperationTimeout, func(ctx context.Context) error {
			_, err := s.backend.Upload(ctx, dir, name, counted, size)
			return err
		})
		if err != nil {
			return newError(op, id, ErrBackendUpload, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Asset upload failed",
			ArgsToFields("id", id, "original_name", originalName, "error", err)...)
		return nil, err
	}

	now := s.clock()
	asset := &Asset{
		ID:           id,
		OriginalName: baseName(originalName),
		StoredName:   stored,
		StoragePath:  s.cfg.BasePath,
		Size:         counted.n,
		Extension:    ext,
		URL:          assetURL(s.cfg.URLPrefix, stored),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.registry.Save(ctx, asset.Clone()); err != nil {
		// An unregistered object is unreachable; remove it.
		s.cleanup(ctx, op, id, dir, name)
		return nil, &Error{Op: op, ID: id, Err: err}
	}

	s.inst.RecordOperationSize(op, asset.Size)
	s.logger.Info("Asset uploaded",
		ArgsToFields("id", id, "stored_name", stored, "size", asset.Size, "backend", string(s.backend.Kind()))...)

	return asset, nil
}

// Download streams the content of asset id into the sink returned by
// acquire. The sink is acquired after the record is found so callers can
// derive headers from it. DownloadCount is incremented only when the whole
// object was written.
func (s *Service) Download(ctx context.Context, id string, acquire SinkFunc) (*Asset, error) {
	const op = "download"

	rec, err := s.lookup(ctx, op, id)
	if err != nil {
		return nil, err
	}

	dir, name, err := ResolvePath(rec.StoragePath, rec.StoredName)
	if err != nil {
		return nil, newError(op, id, ErrBackendDownload, err)
	}

	if acquire == nil {
		return nil, newError(op, id, ErrStreamAcquisition, errors.New("no sink"))
	}
	sink, err := acquire(rec.Clone())
	if err != nil {
		return nil, newError(op, id, ErrStreamAcquisition, err)
	}
	if sink == nil {
		return nil, newError(op, id, ErrStreamAcquisition, errors.New("sink returned nil stream"))
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			s.logger.Warn("Failed to close download sink", ArgsToFields("id", id, "error", cerr)...)
		}
	}()

	var written int64
	err = s.inst.TraceOperation(ctx, op, s.backend.Kind(), id, func(ctx context.Context) error {
		err := bounded(ctx, s.cfg.OperationTimeout, func(ctx context.Context) error {
			var err error
			written, err = s.backend.Download(ctx, dir, name, sink)
			if err != nil && written == 0 && errors.Is(err, ErrObjectNotFound) {
				// A replace may have parked the content under its temp name.
				written, err = s.backend.Download(ctx, dir, TempName(name), sink)
			}
			return err
		})
		if err != nil {
			return newError(op, id, ErrBackendDownload, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Asset download failed",
			ArgsToFields("id", id, "stored_name", rec.StoredName, "written", written, "error", err)...)
		return nil, err
	}

	if err := s.registry.IncrementDownloadCount(ctx, id, 1); err != nil {
		s.logger.Warn("Failed to increment download count", ArgsToFields("id", id, "error", err)...)
	} else {
		rec.DownloadCount++
	}

	s.inst.RecordOperationSize(op, written)
	s.logger.Debug("Asset downloaded", ArgsToFields("id", id, "bytes", written)...)

	return rec, nil
}

// Delete removes asset id from the registry and then from the backend.
// Deleting an unknown id is a no-op. A backend failure is logged only; the
// registry is authoritative.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "delete"

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil
		}
		return &Error{Op: op, ID: id, Err: err}
	}

	if err := s.registry.Remove(ctx, id); err != nil {
		return &Error{Op: op, ID: id, Err: err}
	}

	dir, name, err := ResolvePath(rec.StoragePath, rec.StoredName)
	if err != nil {
		s.logger.Warn("Skipping backend delete for unresolvable path", ArgsToFields("id", id, "error", err)...)
		return nil
	}

	_ = s.inst.TraceOperation(ctx, op, s.backend.Kind(), id, func(ctx context.Context) error {
		return s.cleanup(ctx, op, id, dir, name)
	})

	s.logger.Info("Asset deleted", ArgsToFields("id", id)...)
	return nil
}

// Copy duplicates everything under sourcePath to targetPath, both relative
// to the configured base path. It returns targetPath on success and ""
// on any failure; no registry record is touched.
func (s *Service) Copy(ctx context.Context, sourcePath, targetPath string) string {
	const op = "copy"

	src, err := s.resolveRelative(sourcePath)
	if err != nil {
		s.logger.Warn("Copy rejected", ArgsToFields("source", sourcePath, "error", err)...)
		return ""
	}
	dst, err := s.resolveRelative(targetPath)
	if err != nil {
		s.logger.Warn("Copy rejected", ArgsToFields("target", targetPath, "error", err)...)
		return ""
	}

	err = s.inst.TraceOperation(ctx, op, s.backend.Kind(), src, func(ctx context.Context) error {
		return bounded(ctx, s.cfg.OperationTimeout, func(ctx context.Context) error {
			return s.backend.Copy(ctx, src, dst)
		})
	})
	if err != nil {
		s.logger.Error("Copy failed", ArgsToFields("source", src, "target", dst, "error", err)...)
		return ""
	}

	return targetPath
}

// Replace swaps the content of asset id and persists the updated record.
// Concurrent Replace and Delete calls for the same id run one at a time.
func (s *Service) Replace(ctx context.Context, id, originalName string, size int64, open SourceFunc) (*Asset, error) {
	const op = "replace"

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.lookup(ctx, op, id)
	if err != nil {
		return nil, err
	}

	var updated *Asset
	err = s.inst.TraceOperation(ctx, op, s.backend.Kind(), id, func(ctx context.Context) error {
		var err error
		updated, err = s.replacer.Replace(ctx, rec, originalName, size, open)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.registry.UpdateContent(ctx, updated.Clone()); err != nil {
		// The backend already serves the new content.
		s.logger.Error("Asset replaced but record update failed",
			ArgsToFields("id", id, "old_size", rec.Size, "new_size", updated.Size,
				"old_extension", rec.Extension, "new_extension", updated.Extension, "error", err)...)
		return nil, &Error{Op: op, ID: id, Err: err}
	}

	if fresh, err := s.registry.Get(ctx, id); err == nil {
		updated = fresh
	}

	s.logger.Info("Asset replaced", ArgsToFields("id", id, "size", updated.Size)...)
	return updated, nil
}

// Get returns the record for id
func (s *Service) Get(ctx context.Context, id string) (*Asset, error) {
	return s.lookup(ctx, "get", id)
}

// Recover repairs an asset whose replace was interrupted, restoring the
// parked content or removing a stale temp object.
func (s *Service) Recover(ctx context.Context, id string) (*Asset, error) {
	const op = "recover"

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.lookup(ctx, op, id)
	if err != nil {
		return nil, err
	}

	var changed bool
	err = s.inst.TraceOperation(ctx, op, s.backend.Kind(), id, func(ctx context.Context) error {
		var err error
		changed, err = s.replacer.RecoverStale(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("Asset recovered", ArgsToFields("id", id)...)
	}
	return rec, nil
}

func (s *Service) lookup(ctx context.Context, op, id string) (*Asset, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(op, id, ErrAssetNotFound, errors.New("empty id"))
	}
	rec, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, newError(op, id, ErrAssetNotFound, err)
		}
		return nil, &Error{Op: op, ID: id, Err: err}
	}
	if rec == nil {
		return nil, newError(op, id, ErrAssetNotFound, nil)
	}
	return rec.Clone(), nil
}

// cleanup deletes dir/name best-effort. Failures are logged and counted but
// never surfaced to the caller of the public operation.
func (s *Service) cleanup(ctx context.Context, op, id, dir, name string) error {
	err := bounded(ctx, s.cfg.OperationTimeout, func(ctx context.Context) error {
		return s.backend.Delete(ctx, dir, name)
	})
	if err != nil {
		s.inst.RecordCleanupFailure(op)
		wrapped := newError(op, id, ErrBackendDelete, err)
		s.logger.Warn("Backend delete failed",
			ArgsToFields("id", id, "name", name, "error", wrapped)...)
		return wrapped
	}
	return nil
}

// resolveRelative joins p under the base path, rejecting escapes.
func (s *Service) resolveRelative(p string) (string, error) {
	dir, name, err := ResolvePath(s.cfg.BasePath, p)
	if err != nil {
		return "", err
	}
	return JoinPath(dir, name), nil
}

// baseName strips any client-side directory from an uploaded filename.
func baseName(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
