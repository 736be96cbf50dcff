// Package adapters selects and constructs the storage backend named by
// assetx.Config.Backend.
package adapters

import (
	"context"
	"fmt"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/adapters/local"
	"github.com/gostratum/assetx/adapters/s3"
	"github.com/gostratum/assetx/adapters/sftp"
	"github.com/gostratum/core"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"
)

// NewBackend builds the backend selected by cfg.Backend. It is called once
// at startup; the result is safe for concurrent use.
func NewBackend(ctx context.Context, cfg *assetx.Config, logger logx.Logger) (assetx.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", assetx.ErrInvalidConfig)
	}
	if logger == nil {
		logger = logx.NewNoopLogger()
	}

	switch cfg.Backend {
	case assetx.BackendLocal:
		return local.New(cfg.Local.Root, logger)
	case assetx.BackendObjectStore:
		return s3.NewBackend(ctx, &cfg.ObjectStore, logger)
	case assetx.BackendRemoteFileServer:
		return sftp.New(&cfg.RemoteFileServer, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", assetx.ErrInvalidConfig, cfg.Backend)
	}
}

// NewHealthCheck returns the readiness check matching b's concrete type,
// or nil for backends that have none.
func NewHealthCheck(b assetx.Backend) core.Check {
	switch v := b.(type) {
	case *local.Backend:
		return local.NewHealthCheck(v)
	case *s3.Backend:
		return s3.NewHealthCheck(v)
	case *sftp.Backend:
		return sftp.NewHealthCheck(v)
	}
	return nil
}

// Module provides the configured assetx.Backend and its readiness check.
//
// Example usage:
//
//	app := core.New(
//	    assetx.Module(),
//	    adapters.Module(),
//	    registry.Module(),
//	)
func Module() fx.Option {
	return fx.Module("assetx-adapters",
		fx.Provide(provideBackend),
		fx.Provide(
			fx.Annotated{
				Target: NewHealthCheck,
				Group:  "health_checkers",
			},
		),
	)
}

type backendParams struct {
	fx.In

	Config *assetx.Config
	Logger logx.Logger `optional:"true"`
}

func provideBackend(p backendParams) (assetx.Backend, error) {
	b, err := NewBackend(context.Background(), p.Config, p.Logger)
	if err != nil {
		return nil, err
	}
	if p.Logger != nil {
		p.Logger.Info("Asset backend selected", assetx.ArgsToFields("backend", string(b.Kind()))...)
	}
	return b, nil
}
