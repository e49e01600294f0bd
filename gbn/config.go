package gbn

import (
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/clock"
)

// config holds the configuration values for an instance of Host.
type config struct {
	// n is the window size. The sender can have a maximum of n frames
	// outstanding before requiring an ack from the receiver for the first
	// frame in the window.
	n int32

	// resendTimeout is the duration the retransmission timer is started
	// with, unless a dynamic timeout is enabled via timeoutOpts.
	resendTimeout time.Duration

	// log is the logger of the host. If nil, the package logger prefixed
	// with the entity is used.
	log btclog.Logger

	// clock is used to sample response times for a dynamic resend
	// timeout.
	clock clock.Clock

	timeoutOpts []TimeoutOption
}

// newConfig constructs a new config struct.
func newConfig(n int32, resendTimeout time.Duration) *config {
	return &config{
		n:             n,
		resendTimeout: resendTimeout,
		clock:         clock.NewDefaultClock(),
	}
}
