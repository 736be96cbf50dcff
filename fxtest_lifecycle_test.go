package assetx_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/internal/testutil"
	"github.com/gostratum/core/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// closingBackend is a MockBackend that records Close calls, standing in for
// backends that hold connections.
type closingBackend struct {
	*testutil.MockBackend
	closed   atomic.Int32
	closeErr error
}

func (b *closingBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

func TestModuleLifecycleProvidesService(t *testing.T) {
	var svc *assetx.Service
	var backend *testutil.MockBackend

	app := fxtest.New(t,
		testutil.TestModule,
		assetx.ServiceModule(),
		fx.Provide(func() logx.Logger { return logx.NewNoopLogger() }),
		fx.Populate(&svc, &backend),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, svc)
	a, err := svc.Upload(context.Background(), "a.png", 1, assetx.FromReader(strings.NewReader("x")))
	require.NoError(t, err)
	_, ok := backend.Object("assets/" + a.StoredName)
	assert.True(t, ok)
}

func TestModuleLifecycleLogsAndClosesBackend(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	backend := &closingBackend{MockBackend: testutil.NewMockBackend(assetx.BackendObjectStore)}

	app := fxtest.New(t,
		fx.Supply(testutil.NewTestConfig()),
		fx.Provide(func() logx.Logger { return logx.ProvideAdapter(zap.New(core)) }),
		assetx.WithCustomBackend(backend),
		assetx.WithCustomRegistry(testutil.NewMockRegistry()),
		assetx.ServiceModule(),
	)

	app.RequireStart()
	assert.Equal(t, 1, logs.FilterMessage("AssetX module started").Len())
	assert.Zero(t, backend.closed.Load())

	app.RequireStop()
	assert.Equal(t, int32(1), backend.closed.Load())
	assert.Equal(t, 1, logs.FilterMessage("AssetX module stopped").Len())
}

func TestModuleLifecycleCloseErrorFailsStop(t *testing.T) {
	backend := &closingBackend{
		MockBackend: testutil.NewMockBackend(assetx.BackendRemoteFileServer),
		closeErr:    errors.New("session already closed"),
	}

	app := fxtest.New(t,
		fx.Supply(testutil.NewTestConfig()),
		assetx.WithCustomBackend(backend),
		assetx.WithCustomRegistry(testutil.NewMockRegistry()),
		assetx.ServiceModule(),
	)

	require.NoError(t, app.Start(context.Background()))
	err := app.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session already closed")
}
