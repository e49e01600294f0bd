package netsim

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/lightninglabs/gbn-sim/gbn"
)

var (
	// ErrMissingPayload is returned by Report.Verify if a payload
	// submitted at one host was never delivered at the other.
	ErrMissingPayload = errors.New("payload not delivered")

	// ErrMisdelivered is returned by Report.Verify if a host delivered a
	// payload out of order, twice or one that was never submitted.
	ErrMisdelivered = errors.New("payload delivered out of order")
)

// EntityReport describes what happened at one host during a run.
type EntityReport struct {
	Entity gbn.Entity

	// Submitted is the number of payloads the application of the host
	// submitted.
	Submitted int

	// Delivered is the number of payloads the host delivered to its
	// application.
	Delivered int

	Stats gbn.Stats
}

// Report is the outcome of a simulation run.
type Report struct {
	Seed int64

	// Duration is the simulated time the run took.
	Duration time.Duration

	// Completed is true if the run stopped because nothing was left to
	// simulate rather than because it hit the maximum simulated time.
	Completed bool

	Entities [2]EntityReport

	submitted [2][][]byte
	delivered [2][][]byte
}

// Verify checks that every payload submitted at one host was delivered at the
// other exactly once and in order.
func (r *Report) Verify() error {
	var errs []error
	for _, e := range entities {
		err := verifyDelivery(
			e, r.submitted[e], r.delivered[e.Peer()],
		)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// verifyDelivery compares the payloads submitted at from with the ones its
// peer delivered.
func verifyDelivery(from gbn.Entity, submitted, delivered [][]byte) error {
	to := from.Peer()

	for i, payload := range delivered {
		if i >= len(submitted) {
			return fmt.Errorf("%w: %v delivered %d payloads, %v "+
				"only submitted %d", ErrMisdelivered, to,
				len(delivered), from, len(submitted))
		}

		if !bytes.Equal(payload, submitted[i]) {
			return fmt.Errorf("%w: payload %d delivered at %v "+
				"doesn't match the one submitted at %v",
				ErrMisdelivered, i, to, from)
		}
	}

	if len(delivered) < len(submitted) {
		return fmt.Errorf("%w: %v delivered %d of %d payloads "+
			"submitted at %v", ErrMissingPayload, to,
			len(delivered), len(submitted), from)
	}

	return nil
}

// String returns a one line summary of the run.
func (r *Report) String() string {
	a, b := r.Entities[gbn.EntityA], r.Entities[gbn.EntityB]

	return fmt.Sprintf("seed=%d duration=%v completed=%v "+
		"A->B=%d/%d B->A=%d/%d retransmitted=%d timeouts=%d",
		r.Seed, r.Duration, r.Completed, b.Delivered, a.Submitted,
		a.Delivered, b.Submitted,
		a.Stats.DataRetransmitted+b.Stats.DataRetransmitted,
		a.Stats.Timeouts+b.Stats.Timeouts)
}
