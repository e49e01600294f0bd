package gbn

// initialACK is the acknowledgment number sent before any data has been
// received in order.
const initialACK int32 = -1

// sequencer is the receiver side of a host. It only ever accepts the next
// sequence number in order and never buffers data that arrives early, so the
// last ACK it sent fully describes its state to the peer.
type sequencer struct {
	// expectedSeq is the sequence number of the next DATA frame to be
	// delivered. Every sequence number below it has been delivered exactly
	// once.
	expectedSeq int32

	// lastACK is the encoded ACK most recently sent, resent whenever a
	// frame is corrupt or out of order.
	lastACK []byte

	// lastACKNum is the number carried by lastACK.
	lastACKNum int32
}

// newSequencer creates a sequencer expecting sequence number zero, with the
// sentinel ACK(-1) as its last ACK.
func newSequencer() *sequencer {
	lastACK, _ := encodeFrame(ackTag, initialACK, nil)

	return &sequencer{
		lastACK:    lastACK,
		lastACKNum: initialACK,
	}
}

// isExpected returns true if the DATA frame is the next one in order.
func (s *sequencer) isExpected(f *Frame) bool {
	return f.Number == s.expectedSeq
}

// advance acknowledges the expected sequence number, caches the new ACK and
// moves on to the next sequence number. It returns the encoded ACK.
func (s *sequencer) advance() []byte {
	s.lastACK, _ = encodeFrame(ackTag, s.expectedSeq, nil)
	s.lastACKNum = s.expectedSeq
	s.expectedSeq++

	return s.lastACK
}
