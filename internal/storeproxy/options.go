package storeproxy

import "log/slog"

type config struct {
	logger *slog.Logger
	ids    RequestIDGenerator
}

func newConfig(opts []Option) config {
	cfg := config{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures an Owner, Proxy or UIProxy.
type Option func(*config)

// WithLogger sets the logger. Request outcomes are logged at Debug.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithRequestIDGenerator replaces the UUIDv7 request IDs, mainly so tests
// get stable log output.
func WithRequestIDGenerator(g RequestIDGenerator) Option {
	return func(c *config) { c.ids = g }
}
