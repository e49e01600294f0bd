package gbn

import (
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	defaultResendMultiplier       = 5
	defaultTimeoutUpdateFrequency = 100
	defaultMinimumResendTimeout   = 10 * time.Millisecond
)

// TimeoutOption configures a TimeoutManager.
type TimeoutOption func(manager *TimeoutManager)

// WithDynamicResendTimeout makes the timeout manager derive the resend
// timeout from measured ACK response times instead of keeping the interval it
// was created with.
func WithDynamicResendTimeout() TimeoutOption {
	return func(manager *TimeoutManager) {
		manager.useStaticTimeout = false
	}
}

// WithResendMultiplier sets the multiplier applied to a measured response
// time to get the resend timeout.
func WithResendMultiplier(multiplier int) TimeoutOption {
	return func(manager *TimeoutManager) {
		if multiplier > 0 {
			manager.resendMultiplier = multiplier
		}
	}
}

// WithTimeoutUpdateFrequency sets how many response time samples are taken
// between two updates of the resend timeout.
func WithTimeoutUpdateFrequency(frequency int) TimeoutOption {
	return func(manager *TimeoutManager) {
		if frequency > 0 {
			manager.timeoutUpdateFrequency = frequency
		}
	}
}

// WithMinimumResendTimeout sets the floor of a dynamically set resend timeout.
func WithMinimumResendTimeout(timeout time.Duration) TimeoutOption {
	return func(manager *TimeoutManager) {
		if timeout > 0 {
			manager.minimumResendTimeout = timeout
		}
	}
}

// TimeoutManager owns the retransmission interval of a host.
//
// NOTE: a TimeoutManager is driven by the same single caller as its host and
// is not safe for concurrent use.
type TimeoutManager struct {
	// useStaticTimeout is true unless the dynamic resend timeout was
	// requested. A static resend timeout never changes.
	useStaticTimeout bool

	// hasSetDynamicTimeout is used to indicate whether the resendTimeout
	// has ever been set dynamically.
	hasSetDynamicTimeout bool

	// resendTimeout is the interval the retransmission timer is started
	// with.
	resendTimeout time.Duration

	// minimumResendTimeout is the lowest value a dynamic update may set.
	minimumResendTimeout time.Duration

	// resendMultiplier defines the multiplier used when multiplying the
	// duration it took for the other party to respond when setting the
	// resendTimeout.
	resendMultiplier int

	// responseCounter represents the current number of corresponding
	// responses received since last updating the resend timeout.
	responseCounter int

	// timeoutUpdateFrequency represents the frequency of how many
	// corresponding responses we need to receive until the resend timeout
	// will be updated.
	timeoutUpdateFrequency int

	// sentTimes holds the first transmission time of every outstanding
	// sequence number that has not been retransmitted.
	sentTimes map[int32]time.Time

	clock clock.Clock

	log btclog.Logger
}

// NewTimeOutManager creates a new timeout manager that starts out with the
// given resend timeout.
func NewTimeOutManager(logger btclog.Logger, clk clock.Clock,
	resendTimeout time.Duration, opts ...TimeoutOption) *TimeoutManager {

	if logger == nil {
		logger = log
	}

	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	m := &TimeoutManager{
		useStaticTimeout:       true,
		resendTimeout:          resendTimeout,
		minimumResendTimeout:   defaultMinimumResendTimeout,
		resendMultiplier:       defaultResendMultiplier,
		timeoutUpdateFrequency: defaultTimeoutUpdateFrequency,
		sentTimes:              make(map[int32]time.Time),
		clock:                  clk,
		log:                    logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Sent should be called whenever a DATA frame is handed to the network. The
// resent parameter should be set to true if the frame is a retransmission.
func (m *TimeoutManager) Sent(seq int32, resent bool) {
	if m.useStaticTimeout {
		return
	}

	// An ACK arriving after a retransmission can't be matched to either
	// transmission, so the sequence is no longer sampled.
	if resent {
		delete(m.sentTimes, seq)

		return
	}

	m.sentTimes[seq] = m.clock.Now()
}

// Received should be called for every ACK that advanced the window. The ACK
// is cumulative, so every sample up to and including ack is settled.
func (m *TimeoutManager) Received(ack int32) {
	if m.useStaticTimeout {
		return
	}

	receivedAt := m.clock.Now()

	sentAt, sampled := m.sentTimes[ack]
	for seq := range m.sentTimes {
		if seq <= ack {
			delete(m.sentTimes, seq)
		}
	}

	if !sampled {
		return
	}

	m.responseCounter++

	reachedFrequency := m.responseCounter%m.timeoutUpdateFrequency == 0

	if !m.hasSetDynamicTimeout || reachedFrequency {
		m.responseCounter = 0

		m.updateResendTimeout(receivedAt.Sub(sentAt))
	}
}

// updateResendTimeout sets the resend timeout to the given response time
// multiplied by the resend multiplier, bounded below by the minimum resend
// timeout.
func (m *TimeoutManager) updateResendTimeout(responseTime time.Duration) {
	m.hasSetDynamicTimeout = true

	multipliedTimeout := time.Duration(m.resendMultiplier) * responseTime

	if multipliedTimeout < m.minimumResendTimeout {
		m.log.Tracef("Setting resendTimeout to minimum %v as the new "+
			"dynamic timeout %v is below it",
			m.minimumResendTimeout, multipliedTimeout)

		multipliedTimeout = m.minimumResendTimeout
	}

	m.log.Tracef("Updating resendTimeout to %v", multipliedTimeout)

	m.resendTimeout = multipliedTimeout
}

// GetResendTimeout returns the current resend timeout.
func (m *TimeoutManager) GetResendTimeout() time.Duration {
	return m.resendTimeout
}

// IsStatic returns true if the resend timeout is never updated.
func (m *TimeoutManager) IsStatic() bool {
	return m.useStaticTimeout
}
