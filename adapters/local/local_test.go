package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gostratum/assetx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return b
}

func TestUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	want := "hello, assets"

	stored, err := b.Upload(ctx, "assets", "a.png", strings.NewReader(want), int64(len(want)))
	require.NoError(t, err)
	assert.Equal(t, "assets/a.png", stored)

	var buf bytes.Buffer
	n, err := b.Download(ctx, "assets", "a.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	assert.Equal(t, want, buf.String())
}

func TestUploadOverwritesCleanly(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, ".", "f.png", strings.NewReader("first"), -1)
	require.NoError(t, err)
	_, err = b.Upload(ctx, ".", "f.png", strings.NewReader("second"), -1)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = b.Download(ctx, ".", "f.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, "second", buf.String())

	entries, err := os.ReadDir(b.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestUploadSizeMismatchLeavesNothing(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, "assets", "a.png", strings.NewReader("abc"), 10)
	require.Error(t, err)

	exists, err := b.Exists(ctx, "assets", "a.png")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(filepath.Join(b.Root(), "assets"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadHonorsDeadline(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := b.Upload(ctx, "assets", "a.png", strings.NewReader("abc"), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDownloadMissing(t *testing.T) {
	b := newTestBackend(t)

	var buf bytes.Buffer
	n, err := b.Download(context.Background(), "assets", "nope.png", &buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrObjectNotFound))
	assert.Zero(t, n)
}

func TestPathEscapeRejected(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, "../outside", "a.png", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrInvalidPath))

	_, err = b.Download(ctx, "..", "etc", io.Discard)
	assert.True(t, errors.Is(err, assetx.ErrInvalidPath))
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, "assets", "a.png", strings.NewReader("x"), 1)
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, "assets", "a.png"))
	require.NoError(t, b.Delete(ctx, "assets", "a.png"))

	exists, err := b.Exists(ctx, "assets", "a.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, "assets", "a.png", strings.NewReader("x"), 1)
	require.NoError(t, err)

	require.NoError(t, b.Rename(ctx, "assets", "a.png", "a.png.temp"))

	exists, _ := b.Exists(ctx, "assets", "a.png")
	assert.False(t, exists)
	exists, _ = b.Exists(ctx, "assets", "a.png.temp")
	assert.True(t, exists)

	err = b.Rename(ctx, "assets", "a.png", "b.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrObjectNotFound))
}

func TestCopyFileAndTree(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Upload(ctx, "dash/1", "bg.png", strings.NewReader("bg"), 2)
	require.NoError(t, err)
	_, err = b.Upload(ctx, "dash/1/icons", "i.svg", strings.NewReader("svg"), 3)
	require.NoError(t, err)

	require.NoError(t, b.Copy(ctx, "dash/1/bg.png", "dash/single.png"))
	require.NoError(t, b.Copy(ctx, "dash/1", "dash/2"))

	for _, tc := range []struct{ dir, name, want string }{
		{"dash", "single.png", "bg"},
		{"dash/2", "bg.png", "bg"},
		{"dash/2/icons", "i.svg", "svg"},
	} {
		var buf bytes.Buffer
		_, err := b.Download(ctx, tc.dir, tc.name, &buf)
		require.NoError(t, err, tc.dir+"/"+tc.name)
		assert.Equal(t, tc.want, buf.String())
	}

	err = b.Copy(ctx, "missing", "dst")
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrObjectNotFound))
}

func TestKind(t *testing.T) {
	assert.Equal(t, assetx.BackendLocal, newTestBackend(t).Kind())
}

func TestHealthCheck(t *testing.T) {
	b := newTestBackend(t)
	hc := NewHealthCheck(b)

	assert.Equal(t, "assetx.local", hc.Name())
	assert.NoError(t, hc.Check(context.Background()))

	require.NoError(t, os.RemoveAll(b.Root()))
	assert.Error(t, hc.Check(context.Background()))
}
