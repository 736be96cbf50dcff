package assetx

import (
	"context"
	"io"
	"time"
)

// Asset is the metadata record for one stored file.
type Asset struct {
	// ID is the opaque unique identifier
	ID string `json:"id"`

	// OriginalName is the user-supplied filename
	OriginalName string `json:"originalName"`

	// StoredName is the backend-internal name, {id}.{extension}; it never
	// changes across replace operations
	StoredName string `json:"storedName"`

	// StoragePath is the backend base path StoredName lives under
	StoragePath string `json:"storagePath"`

	// Size is the byte length of the current content
	Size int64 `json:"size"`

	// Extension is the lower-cased file extension
	Extension string `json:"extension"`

	// URL is the external reference, URLPrefix + "/" + StoredName
	URL string `json:"url"`

	// DownloadCount is maintained by the registry
	DownloadCount int64 `json:"downloadCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to mutate.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// SetContent copies the fields a replace changes from src. ID, StoredName,
// StoragePath, DownloadCount and CreatedAt are left alone.
func (a *Asset) SetContent(src *Asset) {
	a.OriginalName = src.OriginalName
	a.Size = src.Size
	a.Extension = src.Extension
	a.URL = src.URL
	a.UpdatedAt = src.UpdatedAt
}

// Registry persists asset records. It behaves as a synchronous key-value
// store keyed by id.
type Registry interface {
	// Get returns the record for id, or an error wrapping ErrAssetNotFound
	Get(ctx context.Context, id string) (*Asset, error)

	// Save inserts or replaces the record
	Save(ctx context.Context, asset *Asset) error

	// Remove deletes the record; removing a missing id is not an error
	Remove(ctx context.Context, id string) error

	// UpdateContent applies asset's content fields (see Asset.SetContent)
	// to the stored record in one step. It returns an error wrapping
	// ErrAssetNotFound when there is no record.
	UpdateContent(ctx context.Context, asset *Asset) error

	// IncrementDownloadCount adds delta to the record's download counter
	IncrementDownloadCount(ctx context.Context, id string, delta int64) error
}

// SourceFunc opens the content to upload. It is called only after input
// validation passes, immediately before the backend call.
type SourceFunc func() (io.ReadCloser, error)

// SinkFunc opens the destination for a download once the record is known,
// so callers can set headers from it before bytes flow.
type SinkFunc func(asset *Asset) (io.WriteCloser, error)

// FromReader adapts an io.Reader to a SourceFunc. If r is an io.Closer it
// is closed by the service.
func FromReader(r io.Reader) SourceFunc {
	return func() (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}
}

// ToWriter adapts an io.Writer to a SinkFunc. The writer is not closed.
func ToWriter(w io.Writer) SinkFunc {
	return func(*Asset) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
