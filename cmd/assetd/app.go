package main

import (
	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/adapters"
	"github.com/gostratum/assetx/registry"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// coreOptions wires configuration, logging, the backend, the registry and
// the service. Callers add their own invokes.
func coreOptions(cfg *assetx.Config, z *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, z),
		fx.Provide(func(z *zap.Logger) logx.Logger { return logx.ProvideAdapter(z) }),
		fx.WithLogger(func(z *zap.Logger) fxevent.Logger {
			if !verbose {
				return fxevent.NopLogger
			}
			return &fxevent.ZapLogger{Logger: z}
		}),
		assetx.ServiceModule(),
		adapters.Module(),
		registry.Module(),
	)
}
