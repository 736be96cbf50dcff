package adapters

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/adapters/local"
	"github.com/gostratum/assetx/adapters/s3"
	"github.com/gostratum/assetx/adapters/sftp"
	"github.com/gostratum/core"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestNewBackend_Local(t *testing.T) {
	cfg := assetx.DefaultConfig()
	cfg.Local.Root = t.TempDir()

	b, err := NewBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &local.Backend{}, b)
	assert.Equal(t, assetx.BackendLocal, b.Kind())
}

func TestNewBackend_ObjectStore(t *testing.T) {
	mem := s3mem.New()
	require.NoError(t, mem.CreateBucket("assets"))
	ts := httptest.NewServer(gofakes3.New(mem).Server())
	defer ts.Close()

	cfg := assetx.DefaultConfig()
	cfg.Backend = assetx.BackendObjectStore
	cfg.ObjectStore.Bucket = "assets"
	cfg.ObjectStore.Endpoint = ts.URL
	cfg.ObjectStore.UsePathStyle = true
	cfg.ObjectStore.AccessKey = "test"
	cfg.ObjectStore.SecretKey = "test"

	b, err := NewBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &s3.Backend{}, b)
	assert.Equal(t, assetx.BackendObjectStore, b.Kind())
}

func TestNewBackend_RemoteFileServer(t *testing.T) {
	cfg := assetx.DefaultConfig()
	cfg.Backend = assetx.BackendRemoteFileServer
	cfg.RemoteFileServer.Host = "files.internal"
	cfg.RemoteFileServer.User = "assets"
	cfg.RemoteFileServer.Password = "secret"

	// Sessions are dialed lazily, so construction succeeds offline.
	b, err := NewBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &sftp.Backend{}, b)
	assert.Equal(t, assetx.BackendRemoteFileServer, b.Kind())
}

func TestNewBackend_Invalid(t *testing.T) {
	_, err := NewBackend(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrInvalidConfig))

	cfg := assetx.DefaultConfig()
	cfg.Backend = "ftp"
	_, err = NewBackend(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrInvalidConfig))
}

func TestNewHealthCheck(t *testing.T) {
	lb, err := local.New(t.TempDir(), nil)
	require.NoError(t, err)

	hc := NewHealthCheck(lb)
	require.NotNil(t, hc)
	assert.Equal(t, "assetx.local", hc.Name())
	assert.Equal(t, core.Readiness, hc.Kind())

	assert.Nil(t, NewHealthCheck(nil))
}

func TestModule(t *testing.T) {
	cfg := assetx.DefaultConfig()
	cfg.Local.Root = t.TempDir()

	var (
		backend assetx.Backend
		checks  []core.Check
	)
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Invoke(func(b assetx.Backend) { backend = b }),
		fx.Invoke(fx.Annotate(func(cs []core.Check) { checks = cs }, fx.ParamTags(`group:"health_checkers"`))),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, backend)
	assert.Equal(t, assetx.BackendLocal, backend.Kind())
	require.Len(t, checks, 1)
	assert.NoError(t, checks[0].Check(context.Background()))
}
