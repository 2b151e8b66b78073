package ringpipe

import "go.uber.org/zap"

// Option configures a Pipe created with New.
type Option func(*Pipe)

// WithLogger sets the logger used for lifecycle events (init, reset, flush,
// close). Reads and writes never log.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithName sets the name attached to log lines and metrics.
func WithName(name string) Option {
	return func(p *Pipe) {
		p.name = name
	}
}
