package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gostratum/assetx"
)

// Backend method names accepted by Fail, FailOnCall and Calls.
const (
	MethodUpload   = "upload"
	MethodDownload = "download"
	MethodDelete   = "delete"
	MethodExists   = "exists"
	MethodRename   = "rename"
	MethodCopy     = "copy"
)

type failure struct {
	err    error
	onCall int // 0 fails every call
}

// MockBackend is a thread-safe in-memory assetx.Backend for testing. It
// counts calls per method, can fail chosen calls, and can delay every call
// to widen race windows.
type MockBackend struct {
	kind assetx.BackendKind

	mu        sync.Mutex
	objects   map[string][]byte
	calls     map[string]int
	failures  map[string]failure
	delay     time.Duration
	inFlight  map[string]int
	maxFlight map[string]int
}

var _ assetx.Backend = (*MockBackend)(nil)

// NewMockBackend creates an empty mock that reports itself as kind
func NewMockBackend(kind assetx.BackendKind) *MockBackend {
	if kind == "" {
		kind = assetx.BackendLocal
	}
	return &MockBackend{
		kind:      kind,
		objects:   make(map[string][]byte),
		calls:     make(map[string]int),
		failures:  make(map[string]failure),
		inFlight:  make(map[string]int),
		maxFlight: make(map[string]int),
	}
}

// Fail makes every call to method return err
func (m *MockBackend) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = failure{err: err}
}

// FailOnCall makes only the n-th subsequent call (1-based) to method
// return err
func (m *MockBackend) FailOnCall(method string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = failure{err: err, onCall: m.calls[method] + n}
}

// ClearFailures removes all injected failures
func (m *MockBackend) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]failure)
}

// SetDelay makes every call sleep for d, honouring context cancellation
func (m *MockBackend) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times method was called
func (m *MockBackend) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of calls across all methods
func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of simultaneous calls observed
// for the object at p. Calls on p's temp name count towards p.
func (m *MockBackend) MaxInFlight(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight[p]
}

// Put stores data at p without counting a call
func (m *MockBackend) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = append([]byte(nil), data...)
}

// Object returns a copy of the data stored at p
func (m *MockBackend) Object(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[p]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths returns every stored path in sorted order
func (m *MockBackend) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Kind implements assetx.Backend
func (m *MockBackend) Kind() assetx.BackendKind { return m.kind }

// enter records a call and returns the injected error, if any. The
// returned func must be called when the call ends.
func (m *MockBackend) enter(ctx context.Context, method, p string) (func(), error) {
	m.mu.Lock()
	m.calls[method]++
	n := m.calls[method]
	f, hasFailure := m.failures[method]
	delay := m.delay

	key := strings.TrimSuffix(p, assetx.TempSuffix)
	m.inFlight[key]++
	if m.inFlight[key] > m.maxFlight[key] {
		m.maxFlight[key] = m.inFlight[key]
	}
	m.mu.Unlock()

	leave := func() {
		m.mu.Lock()
		m.inFlight[key]--
		m.mu.Unlock()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return leave, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return leave, err
	}
	if hasFailure && (f.onCall == 0 || f.onCall == n) {
		return leave, f.err
	}
	return leave, nil
}

// Upload implements assetx.Backend
func (m *MockBackend) Upload(ctx context.Context, dir, name string, r io.Reader, size int64) (string, error) {
	p := assetx.JoinPath(dir, name)
	leave, err := m.enter(ctx, MethodUpload, p)
	defer leave()
	if err != nil {
		return "", &assetx.Error{Op: MethodUpload, ID: p, Err: err}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &assetx.Error{Op: MethodUpload, ID: p, Err: err}
	}
	if size >= 0 && int64(len(data)) != size {
		return "", &assetx.Error{Op: MethodUpload, ID: p, Err: fmt.Errorf("declared size %d but read %d bytes", size, len(data))}
	}

	m.mu.Lock()
	m.objects[p] = data
	m.mu.Unlock()
	return p, nil
}

// Download implements assetx.Backend
func (m *MockBackend) Download(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	p := assetx.JoinPath(dir, name)
	leave, err := m.enter(ctx, MethodDownload, p)
	defer leave()
	if err != nil {
		return 0, &assetx.Error{Op: MethodDownload, ID: p, Err: err}
	}

	m.mu.Lock()
	data, ok := m.objects[p]
	m.mu.Unlock()
	if !ok {
		return 0, &assetx.Error{Op: MethodDownload, ID: p, Err: assetx.ErrObjectNotFound}
	}
	return io.Copy(w, bytes.NewReader(data))
}

// Delete implements assetx.Backend
func (m *MockBackend) Delete(ctx context.Context, dir, name string) error {
	p := assetx.JoinPath(dir, name)
	leave, err := m.enter(ctx, MethodDelete, p)
	defer leave()
	if err != nil {
		return &assetx.Error{Op: MethodDelete, ID: p, Err: err}
	}

	m.mu.Lock()
	delete(m.objects, p)
	m.mu.Unlock()
	return nil
}

// Exists implements assetx.Backend
func (m *MockBackend) Exists(ctx context.Context, dir, name string) (bool, error) {
	p := assetx.JoinPath(dir, name)
	leave, err := m.enter(ctx, MethodExists, p)
	defer leave()
	if err != nil {
		return false, &assetx.Error{Op: MethodExists, ID: p, Err: err}
	}

	m.mu.Lock()
	_, ok := m.objects[p]
	m.mu.Unlock()
	return ok, nil
}

// Rename implements assetx.Backend
func (m *MockBackend) Rename(ctx context.Context, dir, oldName, newName string) error {
	src := assetx.JoinPath(dir, oldName)
	leave, err := m.enter(ctx, MethodRename, src)
	defer leave()
	if err != nil {
		return &assetx.Error{Op: MethodRename, ID: src, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return &assetx.Error{Op: MethodRename, ID: src, Err: assetx.ErrObjectNotFound}
	}
	delete(m.objects, src)
	m.objects[assetx.JoinPath(dir, newName)] = data
	return nil
}

// Copy implements assetx.Backend. A path naming an object copies that
// object; otherwise every object below it is copied.
func (m *MockBackend) Copy(ctx context.Context, srcPath, dstPath string) error {
	leave, err := m.enter(ctx, MethodCopy, srcPath)
	defer leave()
	if err != nil {
		return &assetx.Error{Op: MethodCopy, ID: srcPath, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.objects[srcPath]; ok {
		m.objects[dstPath] = append([]byte(nil), data...)
		return nil
	}

	prefix := strings.TrimSuffix(srcPath, "/") + "/"
	copied := make(map[string][]byte)
	for p, data := range m.objects {
		if strings.HasPrefix(p, prefix) {
			copied[assetx.JoinPath(dstPath, strings.TrimPrefix(p, prefix))] = append([]byte(nil), data...)
		}
	}
	if len(copied) == 0 {
		return &assetx.Error{Op: MethodCopy, ID: srcPath, Err: assetx.ErrObjectNotFound}
	}
	for p, data := range copied {
		m.objects[p] = data
	}
	return nil
}
