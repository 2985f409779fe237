package store

import "go.uber.org/zap"

type options struct {
	middlewares []Middleware
	logger      *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithMiddleware appends middleware; earlier middleware wraps later middleware.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) {
		for _, mw := range mws {
			if mw != nil {
				o.middlewares = append(o.middlewares, mw)
			}
		}
	}
}

// WithLogger sets the store logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
