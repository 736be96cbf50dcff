package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/gostratum/assetx"
)

// Registry method names accepted by MockRegistry.Fail and Calls.
const (
	MethodGet       = "get"
	MethodSave      = "save"
	MethodRemove    = "remove"
	MethodUpdate    = "update"
	MethodIncrement = "increment"
)

// MockRegistry is a thread-safe in-memory assetx.Registry that counts calls
// and can fail chosen methods.
type MockRegistry struct {
	mu       sync.Mutex
	assets   map[string]*assetx.Asset
	calls    map[string]int
	failures map[string]error
}

var _ assetx.Registry = (*MockRegistry)(nil)

// NewMockRegistry creates an empty registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		assets:   make(map[string]*assetx.Asset),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Fail makes every call to method return err; a nil err clears it
func (r *MockRegistry) Fail(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, method)
		return
	}
	r.failures[method] = err
}

// Calls returns how many times method was called
func (r *MockRegistry) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// Seed stores a record without counting a call
func (r *MockRegistry) Seed(a *assetx.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = a.Clone()
}

// Len returns the number of records
func (r *MockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

func (r *MockRegistry) enter(method string) error {
	r.calls[method]++
	return r.failures[method]
}

// Get implements assetx.Registry
func (r *MockRegistry) Get(_ context.Context, id string) (*assetx.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodGet); err != nil {
		return nil, err
	}
	a, ok := r.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", assetx.ErrAssetNotFound, id)
	}
	return a.Clone(), nil
}

// Save implements assetx.Registry
func (r *MockRegistry) Save(_ context.Context, a *assetx.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodSave); err != nil {
		return err
	}
	r.assets[a.ID] = a.Clone()
	return nil
}

// Remove implements assetx.Registry
func (r *MockRegistry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodRemove); err != nil {
		return err
	}
	delete(r.assets, id)
	return nil
}

// UpdateContent implements assetx.Registry
func (r *MockRegistry) UpdateContent(_ context.Context, a *assetx.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodUpdate); err != nil {
		return err
	}
	cur, ok := r.assets[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", assetx.ErrAssetNotFound, a.ID)
	}
	cur.SetContent(a)
	return nil
}

// IncrementDownloadCount implements assetx.Registry
func (r *MockRegistry) IncrementDownloadCount(_ context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(MethodIncrement); err != nil {
		return err
	}
	a, ok := r.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", assetx.ErrAssetNotFound, id)
	}
	a.DownloadCount += delta
	return nil
}
