package assetx

import (
	"time"

	"github.com/google/uuid"
	"github.com/gostratum/core/logx"
)

// IDGenerator mints identifiers for newly uploaded assets
type IDGenerator func() string

// Options holds functional options for customizing service behavior
type Options struct {
	logger       logx.Logger
	clock        func() time.Time
	idGenerator  IDGenerator
	instrumenter *Instrumenter
}

// Option is a functional option for configuring the Service
type Option func(*Options)

// WithLogger sets a custom core logx.Logger
func WithLogger(logger logx.Logger) Option {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithClock sets a custom time provider (useful for testing)
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.clock = clock
	}
}

// WithIDGenerator overrides how asset ids are minted on upload
func WithIDGenerator(gen IDGenerator) Option {
	return func(opts *Options) {
		opts.idGenerator = gen
	}
}

// WithInstrumenter attaches metrics and tracing
func WithInstrumenter(inst *Instrumenter) Option {
	return func(opts *Options) {
		opts.instrumenter = inst
	}
}

// applyDefaults applies default values to unset options
func (opts *Options) applyDefaults() {
	if opts.logger == nil {
		opts.logger = logx.NewNoopLogger()
	}
	if opts.clock == nil {
		opts.clock = time.Now
	}
	if opts.idGenerator == nil {
		opts.idGenerator = uuid.NewString
	}
	if opts.instrumenter == nil {
		opts.instrumenter = NewInstrumenter(nil, nil)
	}
}

// GetLogger returns the configured logger
func (opts *Options) GetLogger() logx.Logger {
	if opts.logger == nil {
		return logx.NewNoopLogger()
	}
	return opts.logger
}

// GetClock returns the configured clock function
func (opts *Options) GetClock() func() time.Time {
	if opts.clock == nil {
		return time.Now
	}
	return opts.clock
}

func newOptions(options ...Option) *Options {
	opts := &Options{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	opts.applyDefaults()
	return opts
}
