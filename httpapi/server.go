package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
	"go.uber.org/fx"
)

// Config configures the HTTP listener.
type Config struct {
	// Addr is the listen address
	Addr string `mapstructure:"addr" yaml:"addr" default:":8080"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" default:"5m"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" default:"30s"`

	// MaxUploadBytes caps request bodies on upload and replace
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" default:"52428800"`

	// MultipartMemory is how much of a multipart body is kept in memory
	// before spilling to temp files
	MultipartMemory int64 `mapstructure:"multipart_memory" yaml:"multipart_memory" default:"8388608"`

	// AllowedOrigins lists CORS origins
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Prefix implements configx.Configurable
func (Config) Prefix() string { return "http" }

// DefaultConfig returns the listener defaults
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.MultipartMemory <= 0 {
		c.MultipartMemory = 8 << 20
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	return c
}

// Module serves the asset API for the lifetime of the fx app. It needs an
// *assetx.Service; a Config is optional.
func Module() fx.Option {
	return fx.Module("assetx.httpapi",
		fx.Provide(
			newHandlerFromParams,
			newServer,
		),
		fx.Invoke(registerServer),
	)
}

type handlerParams struct {
	fx.In

	Service *assetx.Service
	Config  *Config     `optional:"true"`
	Logger  logx.Logger `optional:"true"`
}

func newHandlerFromParams(p handlerParams) *Handler {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = p.Config.withDefaults()
	}
	return NewHandler(p.Service, cfg, p.Logger)
}

func newServer(h *Handler) *http.Server {
	return &http.Server{
		Addr:         h.cfg.Addr,
		Handler:      h.Routes(),
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
	}
}

type serverParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Server    *http.Server
	Handler   *Handler
}

func registerServer(p serverParams) {
	logger := p.Handler.logger
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", p.Server.Addr)
			if err != nil {
				return err
			}
			logger.Info("HTTP server listening", assetx.ArgsToFields("addr", ln.Addr().String())...)
			go func() {
				if err := p.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server error", assetx.ArgsToFields("error", err)...)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, p.Handler.cfg.ShutdownTimeout)
			defer cancel()
			logger.Info("HTTP server shutting down")
			return p.Server.Shutdown(ctx)
		},
	})
}
