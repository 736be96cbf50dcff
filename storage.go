// Package assetx stores dashboard assets (images, backgrounds) behind a
// pluggable storage backend and keeps their metadata in a registry.
package assetx

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Domain Errors - use errors.Is or KindOf for checking
var (
	// ErrUnsupportedExtension indicates the file extension is not in the allow-list
	ErrUnsupportedExtension = errors.New("assetx: unsupported file extension")

	// ErrStreamAcquisition indicates a source or sink stream could not be opened
	ErrStreamAcquisition = errors.New("assetx: stream acquisition failed")

	// ErrBackendUpload indicates the backend could not accept the content
	ErrBackendUpload = errors.New("assetx: backend upload failed")

	// ErrBackendDownload indicates the backend could not deliver the content
	ErrBackendDownload = errors.New("assetx: backend download failed")

	// ErrBackendRename indicates the pre-replace rename failed
	ErrBackendRename = errors.New("assetx: backend rename failed")

	// ErrBackendDelete indicates a backend delete failed
	ErrBackendDelete = errors.New("assetx: backend delete failed")

	// ErrAssetNotFound indicates no asset record exists for the id
	ErrAssetNotFound = errors.New("assetx: asset not found")

	// ErrObjectNotFound indicates the backend holds no object at the path
	ErrObjectNotFound = errors.New("assetx: object not found")

	// ErrTimeout indicates a backend call exceeded the operation timeout
	ErrTimeout = errors.New("assetx: operation timeout")

	// ErrInvalidPath indicates a path is empty or escapes its base
	ErrInvalidPath = errors.New("assetx: invalid path")

	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("assetx: invalid configuration")
)

// Kind is the closed set of failure kinds callers branch on.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupportedExtension
	KindStreamAcquisition
	KindBackendUpload
	KindBackendDownload
	KindBackendRename
	KindBackendDelete
	KindAssetNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindUnsupportedExtension: "unsupported_extension",
	KindStreamAcquisition:    "stream_acquisition",
	KindBackendUpload:        "backend_upload",
	KindBackendDownload:      "backend_download",
	KindBackendRename:        "backend_rename",
	KindBackendDelete:        "backend_delete",
	KindAssetNotFound:        "asset_not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// kindOrder is checked in sequence; validation kinds come first so an
// error wrapping several sentinels reports the most specific cause.
var kindOrder = []struct {
	kind Kind
	err  error
}{
	{KindUnsupportedExtension, ErrUnsupportedExtension},
	{KindAssetNotFound, ErrAssetNotFound},
	{KindStreamAcquisition, ErrStreamAcquisition},
	{KindBackendRename, ErrBackendRename},
	{KindBackendUpload, ErrBackendUpload},
	{KindBackendDownload, ErrBackendDownload},
	{KindBackendDelete, ErrBackendDelete},
}

// KindOf classifies err. It returns KindUnknown for nil or foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Error wraps underlying errors with additional context
type Error struct {
	Op  string // operation that failed
	ID  string // asset id or object path (if applicable)
	Err error  // underlying error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("assetx %s %q: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("assetx %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error whose chain carries both the sentinel and the cause.
func newError(op, id string, sentinel, cause error) *Error {
	if cause == nil || errors.Is(cause, sentinel) {
		if cause == nil {
			cause = sentinel
		}
		return &Error{Op: op, ID: id, Err: cause}
	}
	return &Error{Op: op, ID: id, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// IsNotFound reports whether err is or wraps ErrAssetNotFound or ErrObjectNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound) || errors.Is(err, ErrObjectNotFound)
}

// BackendKind identifies a storage medium.
type BackendKind string

const (
	BackendLocal            BackendKind = "local"
	BackendObjectStore      BackendKind = "object-store"
	BackendRemoteFileServer BackendKind = "remote-file-server"
)

// Valid reports whether k names a known backend.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendLocal, BackendObjectStore, BackendRemoteFileServer:
		return true
	}
	return false
}

// Backend performs byte transfer against one physical medium. All methods
// must be safe for concurrent use. dir is a slash-separated path relative
// to the backend root; name is a single path element.
type Backend interface {
	// Kind reports which medium this backend writes to
	Kind() BackendKind

	// Upload stores r under dir/name and returns the stored path.
	// size < 0 means unknown; a known size that does not match the bytes
	// read fails the upload.
	Upload(ctx context.Context, dir, name string, r io.Reader, size int64) (string, error)

	// Download streams dir/name into w and returns the bytes written.
	// Missing objects yield an error wrapping ErrObjectNotFound.
	Download(ctx context.Context, dir, name string, w io.Writer) (int64, error)

	// Delete removes dir/name. Deleting a missing object is not an error.
	Delete(ctx context.Context, dir, name string) error

	// Exists reports whether dir/name exists
	Exists(ctx context.Context, dir, name string) (bool, error)

	// Rename moves dir/oldName to dir/newName
	Rename(ctx context.Context, dir, oldName, newName string) error

	// Copy duplicates everything at srcPath (one object or a whole
	// directory/prefix) to dstPath.
	Copy(ctx context.Context, srcPath, dstPath string) error
}
