package gbn

import (
	"time"
)

type timerState uint8

const (
	// timerIdle means no retransmission timer is running. The window is
	// empty.
	timerIdle timerState = iota

	// timerArmed means a retransmission timer is running for at least one
	// outstanding frame.
	timerArmed
)

// String returns the name of the timer state.
func (s timerState) String() string {
	switch s {
	case timerIdle:
		return "idle"
	case timerArmed:
		return "armed"
	default:
		return "unknown"
	}
}

// retransmitTimer tracks the single retransmission timer of a host. The timer
// itself is owned by the network the host is attached to, this only records
// what was asked of it.
type retransmitTimer struct {
	state timerState

	// interval returns the duration the timer is started with.
	interval func() time.Duration

	start func(interval time.Duration)
	stop  func()
}

// arm starts the timer. The state becomes armed.
func (t *retransmitTimer) arm() {
	t.start(t.interval())
	t.state = timerArmed
}

// disarm stops the timer if it is running.
func (t *retransmitTimer) disarm() {
	if t.state != timerArmed {
		return
	}

	t.stop()
	t.state = timerIdle
}

// isArmed returns true while a timer is running.
func (t *retransmitTimer) isArmed() bool {
	return t.state == timerArmed
}
