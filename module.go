package assetx

import (
	"context"
	"fmt"

	"github.com/gostratum/core/configx"
	"github.com/gostratum/core/logx"
	"github.com/gostratum/metricsx"
	"github.com/gostratum/tracingx"
	"go.uber.org/fx"
)

// Module provides configuration, instrumentation and the Service for fx.
// It does NOT include a backend or a registry. Include adapters.Module()
// (or a single adapter module) and registry.Module(), or supply your own
// with WithCustomBackend / WithCustomRegistry.
//
// Example usage:
//
//	app := core.New(
//	    assetx.Module(),
//	    adapters.Module(),
//	    registry.Module(),
//	    fx.Invoke(func(svc *assetx.Service) {
//	        // Use svc...
//	    }),
//	)
func Module() fx.Option {
	return fx.Module("assetx",
		fx.Provide(NewConfig),
		serviceProviders(),
	)
}

// ServiceModule is Module without configuration loading; the caller
// supplies *Config (for example with fx.Supply).
func ServiceModule() fx.Option {
	return fx.Module("assetx-service", serviceProviders())
}

func serviceProviders() fx.Option {
	return fx.Options(
		fx.Provide(
			NewObservabilityInstrumenter,
			NewServiceFromParams,
		),
		fx.Invoke(registerLifecycle),
	)
}

// NewConfig creates a new configuration from the configx loader
func NewConfig(loader configx.Loader) (*Config, error) {
	cfg := DefaultConfig()
	if err := loader.Bind(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Sanitize and validate
	cfg = cfg.Sanitize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ObservabilityDeps defines optional observability dependencies
type ObservabilityDeps struct {
	fx.In

	Metrics metricsx.Metrics `optional:"true"`
	Tracer  tracingx.Tracer  `optional:"true"`
}

// NewObservabilityInstrumenter creates an instrumenter for asset operations
func NewObservabilityInstrumenter(deps ObservabilityDeps) *Instrumenter {
	return NewInstrumenter(deps.Metrics, deps.Tracer)
}

// ServiceParams defines the parameters needed for service creation
type ServiceParams struct {
	fx.In

	Config       *Config
	Backend      Backend
	Registry     Registry
	Logger       logx.Logger   `optional:"true"`
	Instrumenter *Instrumenter `optional:"true"`
}

// NewServiceFromParams builds the Service from the fx graph
func NewServiceFromParams(params ServiceParams) (*Service, error) {
	opts := []Option{WithInstrumenter(params.Instrumenter)}
	if params.Logger != nil {
		opts = append(opts, WithLogger(params.Logger))
	}
	return NewService(params.Config, params.Backend, params.Registry, opts...)
}

// LifecycleParams defines parameters for lifecycle management
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *Config
	Backend   Backend
	Logger    logx.Logger `optional:"true"`
}

// registerLifecycle logs the effective configuration on start and closes
// the backend on stop when it holds connections.
func registerLifecycle(params LifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if params.Logger != nil {
				params.Logger.Info("AssetX module started", logx.Any("config", params.Config.ConfigSummary()))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if params.Logger != nil {
				params.Logger.Info("AssetX module stopping")
			}

			if closer, ok := params.Backend.(interface{ Close() error }); ok {
				if err := closer.Close(); err != nil {
					if params.Logger != nil {
						params.Logger.Error("Error closing backend", ArgsToFields("error", err)...)
					}
					return err
				}
			}

			if params.Logger != nil {
				params.Logger.Info("AssetX module stopped")
			}
			return nil
		},
	})
}

// WithCustomBackend provides a concrete Backend to the fx graph. Useful
// for tests or for backends constructed outside of adapter modules.
func WithCustomBackend(b Backend) fx.Option {
	return fx.Provide(func() Backend { return b })
}

// WithCustomRegistry provides a concrete Registry to the fx graph
func WithCustomRegistry(r Registry) fx.Option {
	return fx.Provide(func() Registry { return r })
}
