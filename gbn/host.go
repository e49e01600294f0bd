package gbn

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btclog/v2"
)

// Entity identifies one of the two endpoints of a link.
type Entity uint8

const (
	// EntityA is the first endpoint.
	EntityA Entity = iota

	// EntityB is the second endpoint.
	EntityB
)

// String returns the name of the entity.
func (e Entity) String() string {
	switch e {
	case EntityA:
		return "A"
	case EntityB:
		return "B"
	default:
		return fmt.Sprintf("Entity(%d)", uint8(e))
	}
}

// Peer returns the entity at the other end of the link.
func (e Entity) Peer() Entity {
	if e == EntityA {
		return EntityB
	}

	return EntityA
}

// Network is the environment a Host is attached to. The host calls out to it
// to transmit frames, deliver payloads and run its retransmission timer.
type Network interface {
	// PassToNetworkLayer hands an encoded frame to the link.
	PassToNetworkLayer(entity Entity, frame []byte, isACK bool)

	// PassToApplicationLayer delivers a payload received in order.
	PassToApplicationLayer(entity Entity, payload []byte)

	// StartTimer starts the retransmission timer of the entity. When it
	// expires the network calls Host.TimerInterrupt.
	StartTimer(entity Entity, interval time.Duration)

	// StopTimer stops the retransmission timer of the entity.
	StopTimer(entity Entity)
}

// Stats counts what a host has done so far.
type Stats struct {
	// DataSent is the number of DATA frames sent for the first time.
	DataSent uint64

	// DataRetransmitted is the number of DATA frames sent again after a
	// timeout.
	DataRetransmitted uint64

	// ACKsSent is the number of new ACKs sent for in order data.
	ACKsSent uint64

	// ACKsResent is the number of times the last ACK was sent again.
	ACKsResent uint64

	// ACKsReceived is the number of uncorrupted ACKs received.
	ACKsReceived uint64

	// StaleACKs is the number of received ACKs that didn't advance the
	// window.
	StaleACKs uint64

	// Corrupt is the number of frames that failed their integrity check
	// or could not be decoded.
	Corrupt uint64

	// OutOfOrder is the number of DATA frames that weren't the next one
	// expected.
	OutOfOrder uint64

	// Delivered is the number of payloads passed to the application.
	Delivered uint64

	// Queued is the number of payloads that had to wait for room in the
	// window.
	Queued uint64

	// Timeouts is the number of timer interrupts that led to a
	// retransmission.
	Timeouts uint64
}

// Host is one Go-Back-N endpoint. It is both a sender and a receiver: it sends
// the payloads its application hands it and delivers the payloads its peer
// sends.
//
// A Host is driven by a single caller. None of its methods block and none of
// them may be called concurrently.
type Host struct {
	cfg *config

	entity Entity

	network Network

	sendQueue *queue

	recv *sequencer

	timer *retransmitTimer

	timeoutManager *TimeoutManager

	stats Stats

	log btclog.Logger
}

// NewHost creates a host for the given entity with a window of windowSize
// frames, which retransmits the window timerInterval after the timer was last
// started.
func NewHost(entity Entity, network Network, windowSize int,
	timerInterval time.Duration, opts ...Option) (*Host, error) {

	if network == nil {
		return nil, errors.New("network must be set")
	}

	if windowSize < 1 || windowSize > math.MaxInt32 {
		return nil, fmt.Errorf("window size must be between 1 and %d, "+
			"got %d", math.MaxInt32, windowSize)
	}

	if timerInterval <= 0 {
		return nil, fmt.Errorf("timer interval must be positive, got %v",
			timerInterval)
	}

	cfg := newConfig(int32(windowSize), timerInterval)
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.log == nil {
		cfg.log = log.WithPrefix(fmt.Sprintf("Host(%v):", entity))
	}

	h := &Host{
		cfg:     cfg,
		entity:  entity,
		network: network,
		sendQueue: newQueue(&queueCfg{
			n:   cfg.n,
			log: cfg.log,
		}),
		recv: newSequencer(),
		timeoutManager: NewTimeOutManager(
			cfg.log, cfg.clock, cfg.resendTimeout,
			cfg.timeoutOpts...,
		),
		log: cfg.log,
	}

	h.timer = &retransmitTimer{
		interval: h.timeoutManager.GetResendTimeout,
		start: func(interval time.Duration) {
			h.log.Tracef("Starting timer (%v)", interval)
			h.network.StartTimer(h.entity, interval)
		},
		stop: func() {
			h.log.Tracef("Stopping timer")
			h.network.StopTimer(h.entity)
		},
	}

	return h, nil
}

// ReceiveFromApplicationLayer accepts a payload for transmission. It is sent
// right away if the window has room, otherwise it waits until ACKs make room
// for it.
func (h *Host) ReceiveFromApplicationLayer(payload []byte) {
	if uint64(len(payload)) > MaxPayloadSize {
		h.log.Errorf("Dropping payload of %d bytes, maximum is %d",
			len(payload), uint64(MaxPayloadSize))

		return
	}

	// Payloads already waiting go first.
	if !h.sendQueue.hasCapacity() || h.sendQueue.numPending() > 0 {
		h.log.Tracef("The window is full, queueing payload (base=%d, "+
			"next=%d)", h.sendQueue.sequenceBase,
			h.sendQueue.sequenceTop)

		h.sendQueue.enqueuePending(payload)
		h.stats.Queued++

		return
	}

	h.sendData(payload)
}

// sendData frames a payload with the next sequence number, records it as
// outstanding and transmits it. The caller must make sure the window has room.
func (h *Host) sendData(payload []byte) {
	seq := h.sendQueue.sequenceTop

	packet, err := NewDataFrame(seq, payload).Serialize()
	if err != nil {
		h.log.Errorf("Unable to frame data %d: %v", seq, err)

		return
	}

	wasEmpty := h.sendQueue.isEmpty()

	h.sendQueue.addPacket(seq, packet)

	h.log.Tracef("Sending data %d", seq)
	h.network.PassToNetworkLayer(h.entity, packet, false)
	h.timeoutManager.Sent(seq, false)
	h.stats.DataSent++

	if wasEmpty {
		h.timer.arm()
	}
}

// ReceiveFromNetworkLayer processes an encoded frame that arrived from the
// link. Frames that fail their integrity check are answered with the last ACK.
func (h *Host) ReceiveFromNetworkLayer(b []byte) {
	frame, err := Classify(b)
	if err != nil {
		h.log.Debugf("Got corrupt frame (%v), resending ack %d", err,
			h.recv.lastACKNum)

		h.stats.Corrupt++
		h.resendLastACK()

		return
	}

	switch frame.Kind {
	case ACK:
		h.processACK(frame)

	case DATA:
		h.processData(frame)
	}
}

// processACK handles an uncorrupted ACK.
func (h *Host) processACK(frame *Frame) {
	h.stats.ACKsReceived++

	if !h.sendQueue.processACK(frame.Number) {
		h.stats.StaleACKs++

		return
	}

	h.timeoutManager.Received(frame.Number)

	// The window moved. Restart the timer for whatever is still
	// outstanding.
	h.timer.disarm()
	if !h.sendQueue.isEmpty() {
		h.timer.arm()
	}

	h.drainPending()
}

// drainPending sends queued payloads in arrival order for as long as the
// window has room.
func (h *Host) drainPending() {
	for h.sendQueue.hasCapacity() {
		payload, ok := h.sendQueue.dequeuePending()
		if !ok {
			return
		}

		h.sendData(payload)
	}
}

// processData handles an uncorrupted DATA frame.
func (h *Host) processData(frame *Frame) {
	if !h.recv.isExpected(frame) {
		// This is either a frame we already delivered whose ACK got
		// lost, or a frame after a gap. Either way the last ACK tells
		// the sender where we are.
		h.log.Debugf("Got unexpected data %d, expected %d", frame.Number,
			h.recv.expectedSeq)

		h.stats.OutOfOrder++
		h.resendLastACK()

		return
	}

	h.log.Tracef("Got expected data %d", frame.Number)

	h.network.PassToApplicationLayer(h.entity, frame.Payload)
	h.stats.Delivered++

	ack := h.recv.advance()
	h.network.PassToNetworkLayer(h.entity, ack, true)
	h.stats.ACKsSent++
}

// resendLastACK sends the cached last ACK again.
func (h *Host) resendLastACK() {
	h.log.Tracef("Resending ack %d", h.recv.lastACKNum)

	h.network.PassToNetworkLayer(h.entity, h.recv.lastACK, true)
	h.stats.ACKsResent++
}

// TimerInterrupt is called by the network when the retransmission timer
// expires. The timer is restarted and every outstanding frame is sent again,
// unchanged and in order.
func (h *Host) TimerInterrupt() {
	if h.sendQueue.isEmpty() || !h.timer.isArmed() {
		h.log.Debugf("Timer interrupt with nothing outstanding. " +
			"Ignoring.")

		return
	}

	h.stats.Timeouts++

	h.log.Debugf("Timeout, resending %d..%d", h.sendQueue.sequenceBase,
		h.sendQueue.sequenceTop-1)

	// The timer that fired is no longer running, so it is started again
	// without being stopped first.
	h.timer.arm()

	h.sendQueue.forEachOutstanding(func(seq int32, packet []byte) {
		h.network.PassToNetworkLayer(h.entity, packet, false)
		h.timeoutManager.Sent(seq, true)
		h.stats.DataRetransmitted++

		h.log.Tracef("Resent %d", seq)
	})
}

// Entity returns the entity of the host.
func (h *Host) Entity() Entity {
	return h.entity
}

// WindowSize returns the configured window size.
func (h *Host) WindowSize() int {
	return int(h.cfg.n)
}

// WindowBase returns the smallest sequence number not acknowledged yet.
func (h *Host) WindowBase() int32 {
	return h.sendQueue.sequenceBase
}

// NextSeqNum returns the sequence number the next new payload will get.
func (h *Host) NextSeqNum() int32 {
	return h.sendQueue.sequenceTop
}

// ExpectedSeqNum returns the sequence number the receiver side waits for.
func (h *Host) ExpectedSeqNum() int32 {
	return h.recv.expectedSeq
}

// LastACK returns the number of the last ACK sent.
func (h *Host) LastACK() int32 {
	return h.recv.lastACKNum
}

// PendingPayloads returns the number of payloads waiting for room in the
// window.
func (h *Host) PendingPayloads() int {
	return h.sendQueue.numPending()
}

// TimerArmed returns true while the host has a retransmission timer running.
func (h *Host) TimerArmed() bool {
	return h.timer.isArmed()
}

// TimerInterval returns the interval the next timer start will use.
func (h *Host) TimerInterval() time.Duration {
	return h.timeoutManager.GetResendTimeout()
}

// Stats returns a copy of the counters of the host.
func (h *Host) Stats() Stats {
	return h.stats
}
