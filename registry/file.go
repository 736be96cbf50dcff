package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
)

// File keeps records in a JSON manifest. The whole manifest is cached in
// memory and rewritten on every mutation.
type File struct {
	path   string
	logger logx.Logger

	mu     sync.RWMutex
	assets map[string]*assetx.Asset
}

var (
	_ assetx.Registry = (*File)(nil)
	_ Lister          = (*File)(nil)
)

// NewFile opens the manifest at path, creating its directory if needed. A
// missing manifest starts an empty registry.
func NewFile(path string, logger logx.Logger) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: registry path is required", assetx.ErrInvalidConfig)
	}
	if logger == nil {
		logger = logx.NewNoopLogger()
	}

	f := &File{
		path:   path,
		logger: logger,
		assets: make(map[string]*assetx.Asset),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the manifest location
func (f *File) Path() string { return f.path }

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &f.assets); err != nil {
		return fmt.Errorf("decode manifest %s: %w", f.path, err)
	}
	f.logger.Debug("Registry manifest loaded", assetx.ArgsToFields("path", f.path, "assets", len(f.assets))...)
	return nil
}

// flushLocked writes the manifest through a temp file so a crash never
// leaves it half written. Callers hold f.mu.
func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(f.assets, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".manifest-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Get implements assetx.Registry
func (f *File) Get(_ context.Context, id string) (*assetx.Asset, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	a, ok := f.assets[id]
	if !ok {
		return nil, notFound(id)
	}
	return a.Clone(), nil
}

// Save implements assetx.Registry
func (f *File) Save(_ context.Context, asset *assetx.Asset) error {
	if asset == nil || asset.ID == "" {
		return fmt.Errorf("registry: asset id is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.assets[asset.ID]
	f.assets[asset.ID] = asset.Clone()
	if err := f.flushLocked(); err != nil {
		if had {
			f.assets[asset.ID] = prev
		} else {
			delete(f.assets, asset.ID)
		}
		return fmt.Errorf("save asset %s: %w", asset.ID, err)
	}
	return nil
}

// Remove implements assetx.Registry
func (f *File) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.assets[id]
	if !had {
		return nil
	}
	delete(f.assets, id)
	if err := f.flushLocked(); err != nil {
		f.assets[id] = prev
		return fmt.Errorf("remove asset %s: %w", id, err)
	}
	return nil
}

// UpdateContent implements assetx.Registry
func (f *File) UpdateContent(_ context.Context, asset *assetx.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[asset.ID]
	if !ok {
		return notFound(asset.ID)
	}
	prev := a.Clone()
	a.SetContent(asset)
	if err := f.flushLocked(); err != nil {
		f.assets[asset.ID] = prev
		return fmt.Errorf("update asset %s: %w", asset.ID, err)
	}
	return nil
}

// IncrementDownloadCount implements assetx.Registry
func (f *File) IncrementDownloadCount(_ context.Context, id string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[id]
	if !ok {
		return notFound(id)
	}
	a.DownloadCount += delta
	if err := f.flushLocked(); err != nil {
		a.DownloadCount -= delta
		return fmt.Errorf("update download count %s: %w", id, err)
	}
	return nil
}

// List returns every record ordered by creation time
func (f *File) List(_ context.Context) ([]*assetx.Asset, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return sorted(f.assets), nil
}
