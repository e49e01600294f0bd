package gbn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueSize(t *testing.T) {
	q := newQueue(&queueCfg{n: 4})

	require.Equal(t, int32(0), q.size())
	require.True(t, q.isEmpty())
	require.True(t, q.hasCapacity())

	for seq := int32(0); seq < 4; seq++ {
		q.addPacket(seq, []byte{byte(seq)})
	}
	require.Equal(t, int32(4), q.size())
	require.False(t, q.hasCapacity())

	q.sequenceBase = 2
	require.Equal(t, int32(2), q.size())
	require.True(t, q.hasCapacity())
}

// TestQueueRingSlots checks that outstanding frames keep their slots while the
// window slides past the end of the ring.
func TestQueueRingSlots(t *testing.T) {
	q := newQueue(&queueCfg{n: 3})

	var seq int32
	send := func() {
		q.addPacket(seq, []byte{byte(seq)})
		seq++
	}

	send()
	send()
	send()

	require.True(t, q.processACK(1))
	send()
	send()

	require.Equal(t, int32(2), q.sequenceBase)
	require.Equal(t, int32(5), q.sequenceTop)

	var (
		seqs    []int32
		packets [][]byte
	)
	q.forEachOutstanding(func(s int32, packet []byte) {
		seqs = append(seqs, s)
		packets = append(packets, packet)
	})
	require.Equal(t, []int32{2, 3, 4}, seqs)
	require.Equal(t, [][]byte{{2}, {3}, {4}}, packets)
}

func TestQueueProcessACK(t *testing.T) {
	q := newQueue(&queueCfg{n: 4})
	for seq := int32(0); seq < 3; seq++ {
		q.addPacket(seq, []byte{byte(seq)})
	}

	// ACK(-1) is what a receiver sends before it got anything.
	require.False(t, q.processACK(-1))

	// ACKs beyond what was sent are ignored.
	require.False(t, q.processACK(3))
	require.Equal(t, int32(0), q.sequenceBase)

	// A cumulative ACK acknowledges everything up to it and frees the
	// slots.
	require.True(t, q.processACK(1))
	require.Equal(t, int32(2), q.sequenceBase)
	require.Nil(t, q.content[0])
	require.Nil(t, q.content[1])
	require.NotNil(t, q.content[2])

	// Duplicates are stale.
	require.False(t, q.processACK(1))
	require.False(t, q.processACK(0))

	require.True(t, q.processACK(2))
	require.True(t, q.isEmpty())
}

func TestQueuePendingFIFO(t *testing.T) {
	q := newQueue(&queueCfg{n: 1})

	_, ok := q.dequeuePending()
	require.False(t, ok)

	q.enqueuePending([]byte("first"))
	q.enqueuePending([]byte("second"))
	q.enqueuePending([]byte("third"))
	require.Equal(t, 3, q.numPending())

	for _, want := range []string{"first", "second", "third"} {
		payload, ok := q.dequeuePending()
		require.True(t, ok)
		require.Equal(t, want, string(payload))
	}
	require.Zero(t, q.numPending())
}

func TestContainsSequence(t *testing.T) {
	require.False(t, containsSequence(3, 3, 3))
	require.True(t, containsSequence(3, 5, 3))
	require.True(t, containsSequence(3, 5, 4))
	require.False(t, containsSequence(3, 5, 5))
	require.False(t, containsSequence(3, 5, 2))
}

// TestQueueCapacityNearMaxSequence checks the window bound when sequence
// numbers approach the end of the int32 range.
func TestQueueCapacityNearMaxSequence(t *testing.T) {
	q := newQueue(&queueCfg{n: 4})
	q.sequenceBase = math.MaxInt32 - 2
	q.sequenceTop = math.MaxInt32 - 2

	// base+n lies beyond MaxInt32 but the window still has room.
	require.True(t, q.hasCapacity())

	q.addPacket(math.MaxInt32-2, []byte{1})
	require.True(t, q.hasCapacity())

	q.addPacket(math.MaxInt32-1, []byte{2})
	require.Equal(t, int32(2), q.size())

	// The sequence space is used up.
	require.False(t, q.hasCapacity())

	require.True(t, q.processACK(math.MaxInt32-1))
	require.True(t, q.isEmpty())
	require.False(t, q.hasCapacity())
}
