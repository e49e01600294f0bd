package gbn

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/clock"
)

// Option configures a Host.
type Option func(cfg *config)

// WithLogger sets the logger of the host.
func WithLogger(logger btclog.Logger) Option {
	return func(cfg *config) {
		cfg.log = logger
	}
}

// WithClock sets the clock used to measure response times. Simulations pass
// their virtual clock.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithTimeoutOptions passes options on to the timeout manager of the host.
func WithTimeoutOptions(opts ...TimeoutOption) Option {
	return func(cfg *config) {
		cfg.timeoutOpts = append(cfg.timeoutOpts, opts...)
	}
}
