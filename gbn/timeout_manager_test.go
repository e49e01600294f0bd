package gbn

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// sendAndReceive simulates that a DATA frame was sent and that its ACK
// arrived after the given response time.
func sendAndReceive(t *testing.T, tm *TimeoutManager, c *clock.TestClock,
	seq int32, responseTime time.Duration) {

	t.Helper()

	tm.Sent(seq, false)
	c.SetTime(c.Now().Add(responseTime))
	tm.Received(seq)
}

// TestStaticTimeout ensures the resend timeout never changes unless a dynamic
// timeout was requested.
func TestStaticTimeout(t *testing.T) {
	t.Parallel()

	c := clock.NewTestClock(testTime)
	tm := NewTimeOutManager(nil, c, 30*time.Millisecond)
	require.True(t, tm.IsStatic())

	for seq := int32(0); seq < 10; seq++ {
		sendAndReceive(t, tm, c, seq, time.Second)
	}

	require.Equal(t, 30*time.Millisecond, tm.GetResendTimeout())
	require.Empty(t, tm.sentTimes)
}

// TestDataPackageDynamicTimeout ensures that the resend timeout is dynamically
// set as expected when DATA frames and their ACKs are exchanged.
func TestDataPackageDynamicTimeout(t *testing.T) {
	t.Parallel()

	c := clock.NewTestClock(testTime)

	// The update frequency is set to a high value so that we're sure it
	// isn't the reason for the first change.
	tm := NewTimeOutManager(
		nil, c, time.Second, WithDynamicResendTimeout(),
		WithTimeoutUpdateFrequency(1000),
	)
	require.False(t, tm.IsStatic())

	// The first sample always sets the timeout.
	sendAndReceive(t, tm, c, 0, 20*time.Millisecond)
	require.Equal(
		t, defaultResendMultiplier*20*time.Millisecond,
		tm.GetResendTimeout(),
	)

	// Now let's test that the timeout update frequency works as expected.
	tm.timeoutUpdateFrequency = 2
	tm.resendMultiplier = 10

	sendAndReceive(t, tm, c, 1, 30*time.Millisecond)
	require.Equal(t, 100*time.Millisecond, tm.GetResendTimeout())

	sendAndReceive(t, tm, c, 2, 30*time.Millisecond)
	require.Equal(t, 300*time.Millisecond, tm.GetResendTimeout())

	// A response faster than the minimum results in the minimum.
	tm.timeoutUpdateFrequency = 1
	tm.resendMultiplier = 1
	sendAndReceive(t, tm, c, 3, time.Millisecond)
	require.Equal(t, defaultMinimumResendTimeout, tm.GetResendTimeout())
}

// TestResentNotSampled ensures that a sequence number that was retransmitted
// doesn't produce a response time sample.
func TestResentNotSampled(t *testing.T) {
	t.Parallel()

	c := clock.NewTestClock(testTime)
	tm := NewTimeOutManager(
		nil, c, time.Second, WithDynamicResendTimeout(),
		WithMinimumResendTimeout(time.Millisecond),
	)

	tm.Sent(0, false)
	c.SetTime(c.Now().Add(time.Second))
	tm.Sent(0, true)
	c.SetTime(c.Now().Add(time.Millisecond))
	tm.Received(0)

	require.Equal(t, time.Second, tm.GetResendTimeout())
	require.Empty(t, tm.sentTimes)
}

// TestCumulativeACKSettlesSamples ensures a cumulative ACK removes the samples
// of every sequence number it covers.
func TestCumulativeACKSettlesSamples(t *testing.T) {
	t.Parallel()

	c := clock.NewTestClock(testTime)
	tm := NewTimeOutManager(
		nil, c, time.Second, WithDynamicResendTimeout(),
		WithResendMultiplier(2),
		WithMinimumResendTimeout(time.Millisecond),
	)

	for seq := int32(0); seq < 4; seq++ {
		tm.Sent(seq, false)
		c.SetTime(c.Now().Add(5 * time.Millisecond))
	}

	// The ACK for 2 samples the response time of 2 only.
	tm.Received(2)
	require.Equal(t, 20*time.Millisecond, tm.GetResendTimeout())
	require.Len(t, tm.sentTimes, 1)
	require.Contains(t, tm.sentTimes, int32(3))
}
