package s3

import (
	"context"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"
)

// Module returns an fx.Module which provides the object-store backend on
// its own, for applications that never select another medium. Most
// applications use adapters.Module() instead.
func Module() fx.Option {
	return fx.Module("assetx-s3",
		fx.Provide(
			provideBackend,
			func(b *Backend) assetx.Backend { return b },
		),
		fx.Provide(
			fx.Annotated{
				Target: func(b *Backend) core.Check {
					return NewHealthCheck(b)
				},
				Group: "health_checkers",
			},
		),
	)
}

type backendParams struct {
	fx.In

	Config *assetx.Config
	Logger logx.Logger `optional:"true"`
}

// provideBackend connects during graph construction; the backend is closed
// by the assetx lifecycle hook.
func provideBackend(p backendParams) (*Backend, error) {
	return NewBackend(context.Background(), &p.Config.ObjectStore, p.Logger)
}
