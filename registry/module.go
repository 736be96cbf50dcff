package registry

import (
	"fmt"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"
)

// Module provides an assetx.Registry chosen by Config.Registry.Kind.
func Module() fx.Option {
	return fx.Module("assetx.registry",
		fx.Provide(provideRegistry),
	)
}

type registryParams struct {
	fx.In

	Config *assetx.Config
	Logger logx.Logger `optional:"true"`
}

func provideRegistry(p registryParams) (assetx.Registry, error) {
	return New(&p.Config.Registry, p.Logger)
}

// New builds the registry described by cfg
func New(cfg *assetx.RegistryConfig, logger logx.Logger) (assetx.Registry, error) {
	if cfg == nil {
		return NewMemory(), nil
	}
	switch cfg.Kind {
	case "", assetx.RegistryMemory:
		return NewMemory(), nil
	case assetx.RegistryFile:
		return NewFile(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported registry kind %q", assetx.ErrInvalidConfig, cfg.Kind)
	}
}
