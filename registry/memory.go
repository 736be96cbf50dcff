// Package registry provides the reference implementations of
// assetx.Registry: an in-process map and a JSON manifest on disk.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gostratum/assetx"
)

// Lister is implemented by registries that can enumerate their records.
type Lister interface {
	List(ctx context.Context) ([]*assetx.Asset, error)
}

// Memory keeps records in a map. Records are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	assets map[string]*assetx.Asset
}

var (
	_ assetx.Registry = (*Memory)(nil)
	_ Lister          = (*Memory)(nil)
)

// NewMemory creates an empty in-memory registry
func NewMemory() *Memory {
	return &Memory{assets: make(map[string]*assetx.Asset)}
}

// Get implements assetx.Registry
func (m *Memory) Get(_ context.Context, id string) (*assetx.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, notFound(id)
	}
	return a.Clone(), nil
}

// Save implements assetx.Registry
func (m *Memory) Save(_ context.Context, asset *assetx.Asset) error {
	if asset == nil || asset.ID == "" {
		return fmt.Errorf("registry: asset id is required")
	}

	m.mu.Lock()
	m.assets[asset.ID] = asset.Clone()
	m.mu.Unlock()
	return nil
}

// Remove implements assetx.Registry
func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.assets, id)
	m.mu.Unlock()
	return nil
}

// UpdateContent implements assetx.Registry
func (m *Memory) UpdateContent(_ context.Context, asset *assetx.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[asset.ID]
	if !ok {
		return notFound(asset.ID)
	}
	a.SetContent(asset)
	return nil
}

// IncrementDownloadCount implements assetx.Registry
func (m *Memory) IncrementDownloadCount(_ context.Context, id string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[id]
	if !ok {
		return notFound(id)
	}
	a.DownloadCount += delta
	return nil
}

// List returns every record ordered by creation time
func (m *Memory) List(_ context.Context) ([]*assetx.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sorted(m.assets), nil
}

// Len returns the number of records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", assetx.ErrAssetNotFound, id)
}

func sorted(assets map[string]*assetx.Asset) []*assetx.Asset {
	out := make([]*assetx.Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
