package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gostratum/assetx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func sampleAsset(id string, created time.Time) *assetx.Asset {
	return &assetx.Asset{
		ID:           id,
		OriginalName: "chart-bg.png",
		StoredName:   id + ".png",
		StoragePath:  "assets",
		Size:         1024,
		Extension:    "png",
		URL:          "/" + id + ".png",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// registries runs fn against every implementation.
func registries(t *testing.T, fn func(t *testing.T, r assetx.Registry)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("file", func(t *testing.T) {
		f, err := NewFile(filepath.Join(t.TempDir(), "manifest.json"), nil)
		require.NoError(t, err)
		fn(t, f)
	})
}

func TestRegistry_SaveGetRemove(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		ctx := context.Background()
		a := sampleAsset("a1", time.Unix(100, 0).UTC())

		require.NoError(t, r.Save(ctx, a))

		got, err := r.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, a.StoredName, got.StoredName)
		assert.Equal(t, int64(1024), got.Size)

		// Returned records are copies.
		got.Size = 1
		again, err := r.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(1024), again.Size)

		require.NoError(t, r.Remove(ctx, "a1"))
		_, err = r.Get(ctx, "a1")
		assert.True(t, errors.Is(err, assetx.ErrAssetNotFound))

		// Removing twice is fine.
		assert.NoError(t, r.Remove(ctx, "a1"))
	})
}

func TestRegistry_GetMissing(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		_, err := r.Get(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, assetx.ErrAssetNotFound))
	})
}

func TestRegistry_SaveRequiresID(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		assert.Error(t, r.Save(context.Background(), &assetx.Asset{}))
		assert.Error(t, r.Save(context.Background(), nil))
	})
}

func TestRegistry_IncrementDownloadCount(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		ctx := context.Background()
		require.NoError(t, r.Save(ctx, sampleAsset("a1", time.Now())))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.IncrementDownloadCount(ctx, "a1", 1))
			}()
		}
		wg.Wait()

		got, err := r.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.DownloadCount)

		err = r.IncrementDownloadCount(ctx, "missing", 1)
		assert.True(t, errors.Is(err, assetx.ErrAssetNotFound))
	})
}

func TestRegistry_UpdateContentKeepsCounter(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		ctx := context.Background()
		created := time.Unix(100, 0).UTC()
		require.NoError(t, r.Save(ctx, sampleAsset("a1", created)))
		require.NoError(t, r.IncrementDownloadCount(ctx, "a1", 2))

		// A snapshot taken before the downloads carries a stale counter.
		stale := sampleAsset("a1", created)
		stale.OriginalName = "new.jpg"
		stale.Extension = "jpg"
		stale.Size = 2048
		stale.UpdatedAt = created.Add(time.Hour)
		stale.StoredName = "other.jpg"
		require.NoError(t, r.UpdateContent(ctx, stale))

		got, err := r.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.DownloadCount)
		assert.Equal(t, "new.jpg", got.OriginalName)
		assert.Equal(t, "jpg", got.Extension)
		assert.Equal(t, int64(2048), got.Size)
		assert.Equal(t, "a1.png", got.StoredName)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.True(t, got.UpdatedAt.Equal(created.Add(time.Hour)))

		err = r.UpdateContent(ctx, sampleAsset("missing", created))
		assert.True(t, errors.Is(err, assetx.ErrAssetNotFound))
	})
}

func TestRegistry_List(t *testing.T) {
	registries(t, func(t *testing.T, r assetx.Registry) {
		ctx := context.Background()
		require.NoError(t, r.Save(ctx, sampleAsset("b", time.Unix(200, 0))))
		require.NoError(t, r.Save(ctx, sampleAsset("a", time.Unix(100, 0))))
		require.NoError(t, r.Save(ctx, sampleAsset("c", time.Unix(200, 0))))

		lister, ok := r.(Lister)
		require.True(t, ok)

		all, err := lister.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, "b", all[1].ID)
		assert.Equal(t, "c", all[2].ID)
	})
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "manifest.json")

	f, err := NewFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx, sampleAsset("a1", time.Unix(100, 0).UTC())))
	require.NoError(t, f.IncrementDownloadCount(ctx, "a1", 3))

	reopened, err := NewFile(path, nil)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "chart-bg.png", got.OriginalName)
	assert.Equal(t, int64(3), got.DownloadCount)
	assert.True(t, got.CreatedAt.Equal(time.Unix(100, 0)))

	// No temp files are left next to the manifest.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manifest.json", entries[0].Name())
}

func TestFile_CorruptManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFile(path, nil)
	assert.Error(t, err)
}

func TestFile_EmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	f, err := NewFile(path, nil)
	require.NoError(t, err)
	all, err := f.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewFile_RequiresPath(t *testing.T) {
	_, err := NewFile("", nil)
	assert.True(t, errors.Is(err, assetx.ErrInvalidConfig))
}

func TestNew(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, r)

	r, err = New(&assetx.RegistryConfig{Kind: assetx.RegistryMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, r)

	r, err = New(&assetx.RegistryConfig{Kind: assetx.RegistryFile, Path: filepath.Join(t.TempDir(), "m.json")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &File{}, r)

	_, err = New(&assetx.RegistryConfig{Kind: "redis"}, nil)
	assert.True(t, errors.Is(err, assetx.ErrInvalidConfig))
}

func TestModule(t *testing.T) {
	cfg := assetx.DefaultConfig()
	cfg.Registry = assetx.RegistryConfig{Kind: assetx.RegistryFile, Path: filepath.Join(t.TempDir(), "m.json")}

	var reg assetx.Registry
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&reg),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.IsType(t, &File{}, reg)
}
