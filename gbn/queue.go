package gbn

import (
	"math"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

type queueCfg struct {
	// n is the window size. At most n frames may be outstanding at once.
	n int32

	log btclog.Logger
}

// queue is the sender side of the window. Outstanding frames live in a ring
// of n slots keyed by sequence number modulo n. Since never more than n
// sequence numbers are outstanding, no two of them share a slot.
type queue struct {
	cfg *queueCfg

	// content holds the encoded frames of the outstanding sequence
	// numbers. Slots outside of [sequenceBase, sequenceTop) are nil.
	content [][]byte

	// sequenceBase is the smallest sequence number that has not been
	// acknowledged yet.
	sequenceBase int32

	// sequenceTop is the sequence number the next new frame will be
	// labelled with. sequenceTop - sequenceBase never exceeds n.
	sequenceTop int32

	// pending holds payloads that arrived while the window was full, in
	// arrival order.
	pending *fn.List[[]byte]
}

// newQueue creates a new queue.
func newQueue(cfg *queueCfg) *queue {
	if cfg.log == nil {
		cfg.log = log
	}

	return &queue{
		cfg:     cfg,
		content: make([][]byte, cfg.n),
		pending: fn.NewList[[]byte](),
	}
}

// size returns the number of outstanding frames.
func (q *queue) size() int32 {
	return q.sequenceTop - q.sequenceBase
}

// isEmpty returns true if no frame is awaiting an acknowledgment.
func (q *queue) isEmpty() bool {
	return q.sequenceBase == q.sequenceTop
}

// hasCapacity returns true if another frame fits into the window. Sequence
// numbers don't wrap, so nothing fits once the top reaches math.MaxInt32.
func (q *queue) hasCapacity() bool {
	if q.sequenceTop == math.MaxInt32 {
		return false
	}

	return int64(q.sequenceTop) < int64(q.sequenceBase)+int64(q.cfg.n)
}

func (q *queue) slot(seq int32) int32 {
	return seq % q.cfg.n
}

// addPacket stores the encoded frame for the sequence number at the top of the
// window and moves the top forward. The caller must check hasCapacity first.
func (q *queue) addPacket(seq int32, packet []byte) {
	q.content[q.slot(seq)] = packet
	q.sequenceTop = seq + 1
}

// processACK processes a cumulative ACK. It returns true if the ACK
// acknowledged at least one outstanding frame and so moved the base.
func (q *queue) processACK(seq int32) bool {
	if !containsSequence(q.sequenceBase, q.sequenceTop, seq) {
		// An ACK can only cover frames that were sent. Anything at or
		// above the top did not come from a receiver talking to us.
		if seq >= q.sequenceTop {
			q.cfg.log.Debugf("Received ack %d beyond top %d. "+
				"Ignoring.", seq, q.sequenceTop)

			return false
		}

		q.cfg.log.Tracef("Received stale ack %d, base is %d. Ignoring.",
			seq, q.sequenceBase)

		return false
	}

	q.cfg.log.Tracef("Received ack %d, moving base from %d to %d", seq,
		q.sequenceBase, seq+1)

	for s := q.sequenceBase; s <= seq; s++ {
		q.content[q.slot(s)] = nil
	}
	q.sequenceBase = seq + 1

	return true
}

// forEachOutstanding calls f for every outstanding frame in sequence order.
func (q *queue) forEachOutstanding(f func(seq int32, packet []byte)) {
	for seq := q.sequenceBase; seq != q.sequenceTop; seq++ {
		f(seq, q.content[q.slot(seq)])
	}
}

// enqueuePending queues a payload until the window has room for it.
func (q *queue) enqueuePending(payload []byte) {
	q.pending.PushBack(payload)
}

// dequeuePending removes and returns the oldest queued payload.
func (q *queue) dequeuePending() ([]byte, bool) {
	front := q.pending.Front()
	if front == nil {
		return nil, false
	}

	return q.pending.Remove(front), true
}

// numPending returns the number of queued payloads.
func (q *queue) numPending() int {
	return q.pending.Len()
}

// containsSequence returns true if seq lies within [base, top).
func containsSequence(base, top, seq int32) bool {
	return base <= seq && seq < top
}
