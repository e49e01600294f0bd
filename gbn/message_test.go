package gbn

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMsgSerializeDeserialize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind    FrameKind
		number  int32
		payload []byte
	}{
		{
			kind:   ACK,
			number: 128,
		},
		{
			kind:   ACK,
			number: -1,
		},
		{
			kind:    DATA,
			number:  10,
			payload: []byte{1, 2, 4, 5, 6, 7, 100},
		},
		{
			kind:    DATA,
			number:  0,
			payload: []byte{},
		},
		{
			kind:    DATA,
			number:  math.MaxInt32,
			payload: []byte("odd"),
		},
		{
			kind:    DATA,
			number:  7,
			payload: bytes.Repeat([]byte{0xff}, 1500),
		},
	}

	for idx, tc := range testCases {
		tc := tc

		t.Run(fmt.Sprintf("%d", idx), func(t *testing.T) {
			t.Parallel()

			serialized, err := Encode(tc.kind, tc.number, tc.payload)
			require.NoError(t, err)
			require.Len(t, serialized, HeaderSize+len(tc.payload))
			require.False(t, IsCorrupt(serialized))

			deserialized, err := Classify(serialized)
			require.NoError(t, err)

			require.Equal(t, tc.kind, deserialized.Kind)
			require.Equal(t, tc.number, deserialized.Number)
			require.True(t, bytes.Equal(tc.payload, deserialized.Payload))
		})
	}
}

// TestWireLayout checks the byte layout of an encoded frame.
func TestWireLayout(t *testing.T) {
	t.Parallel()

	f := NewDataFrame(-2, []byte("hi"))
	b, err := f.Serialize()
	require.NoError(t, err)

	require.Equal(t, []byte{0x00, 0x80}, b[0:2])
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xfe}, b[2:6])
	require.Equal(t, []byte{byte(f.Checksum >> 8), byte(f.Checksum)}, b[6:8])
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x02}, b[8:12])
	require.Equal(t, []byte("hi"), b[12:])

	ack, err := Encode(ACK, 3, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00}, ack[0:2])
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, ack[8:12])
}

// TestChecksum checks the checksum against the worked example of RFC 1071 and
// the padding of odd length input.
func TestChecksum(t *testing.T) {
	t.Parallel()

	rfcExample := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	require.Equal(t, uint16(0x220d), Checksum(rfcExample))

	require.Equal(t, Checksum([]byte{0xab, 0xcd, 0x12, 0x00}),
		Checksum([]byte{0xab, 0xcd, 0x12}))

	require.Equal(t, uint16(0xffff), Checksum(nil))

	// The checksum of a frame computed with the checksum field zeroed
	// equals the one the encoder put into the field.
	b, err := Encode(DATA, 42, []byte("payload"))
	require.NoError(t, err)

	zeroed := append([]byte(nil), b...)
	zeroed[6], zeroed[7] = 0, 0
	require.Equal(t, Checksum(zeroed), uint16(b[6])<<8|uint16(b[7]))
}

// referenceChecksum is a direct RFC 1071 checksum without chunking.
func referenceChecksum(b []byte) uint16 {
	var sum uint64
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint64(b[i])<<8 | uint64(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint64(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}

	return ^uint16(sum)
}

// TestChecksumLargeInput compares the checksum with a direct computation for
// inputs around and well beyond the chunk size.
func TestChecksumLargeInput(t *testing.T) {
	t.Parallel()

	sizes := []int{
		0, 1, checksumChunk - 1, checksumChunk, checksumChunk + 1,
		3*checksumChunk + 7, 300001,
	}

	for _, size := range sizes {
		counting := make([]byte, size)
		for i := range counting {
			counting[i] = byte(i * 7)
		}
		ones := bytes.Repeat([]byte{0xff}, size)

		for _, b := range [][]byte{counting, ones} {
			require.Equal(t, referenceChecksum(b), Checksum(b),
				"size %d", size)
		}

		frame, err := Encode(DATA, 3, counting)
		require.NoError(t, err)
		require.False(t, IsCorrupt(frame), "size %d", size)

		zeroed := append([]byte(nil), frame...)
		zeroed[6], zeroed[7] = 0, 0
		require.Equal(t, referenceChecksum(zeroed),
			uint16(frame[6])<<8|uint16(frame[7]), "size %d", size)
	}
}

// TestSingleBitFlipIsCorrupt flips every bit of encoded frames one at a time
// and checks that each flip is detected.
func TestSingleBitFlipIsCorrupt(t *testing.T) {
	t.Parallel()

	data, err := Encode(DATA, 5, []byte("the quick brown fox"))
	require.NoError(t, err)

	ack, err := Encode(ACK, 5, nil)
	require.NoError(t, err)

	for _, frame := range [][]byte{data, ack} {
		for bit := 0; bit < len(frame)*8; bit++ {
			flipped := append([]byte(nil), frame...)
			flipped[bit/8] ^= 1 << (bit % 8)

			require.True(t, IsCorrupt(flipped), "bit %d", bit)

			_, err := Classify(flipped)
			require.ErrorIs(t, err, ErrCorruptFrame, "bit %d", bit)
		}
	}
}

// TestCorruptAndRestore corrupts a byte and then restores it. Only the
// restored frame passes the integrity check.
func TestCorruptAndRestore(t *testing.T) {
	t.Parallel()

	b, err := Encode(DATA, 9, []byte("restore me"))
	require.NoError(t, err)

	original := b[14]
	b[14] ^= 0x5a
	require.True(t, IsCorrupt(b))

	b[14] = original
	require.False(t, IsCorrupt(b))

	// Changing two words by amounts that cancel out in the ones'
	// complement sum goes unnoticed, since the checksum truly matches.
	b[12]++
	b[14]--
	require.Equal(t, frameChecksum(b), uint16(b[6])<<8|uint16(b[7]))
	require.False(t, IsCorrupt(b))
}

func TestDeserializeErrors(t *testing.T) {
	t.Parallel()

	data, err := Encode(DATA, 1, []byte("abcd"))
	require.NoError(t, err)

	t.Run("short header", func(t *testing.T) {
		_, err := Deserialize(data[:HeaderSize-1])
		require.ErrorIs(t, err, ErrShortFrame)
		require.ErrorIs(t, err, ErrCorruptFrame)
		require.True(t, IsCorrupt(data[:3]))
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := Deserialize(data[:len(data)-1])

		var framingErr *FramingError
		require.True(t, errors.As(err, &framingErr))
		require.Equal(t, uint32(4), framingErr.Declared)
		require.Equal(t, 3, framingErr.Available)
		require.ErrorIs(t, err, ErrCorruptFrame)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := Deserialize(append(append([]byte(nil), data...), 0))

		var framingErr *FramingError
		require.True(t, errors.As(err, &framingErr))
		require.Equal(t, 5, framingErr.Available)
	})

	t.Run("unknown kind", func(t *testing.T) {
		b := append([]byte(nil), data...)
		b[1] = 0x01
		_, err := Deserialize(b)
		require.ErrorIs(t, err, ErrUnknownKind)

		// A frame with an unknown tag but a correct checksum is
		// still rejected.
		b, _ = encodeFrame(0x0001, 1, nil)
		require.False(t, IsCorrupt(b))
		_, err = Classify(b)
		require.ErrorIs(t, err, ErrCorruptFrame)
	})

	t.Run("ack with payload", func(t *testing.T) {
		_, err := Encode(ACK, 1, []byte("x"))
		require.ErrorIs(t, err, ErrACKPayload)

		b, _ := encodeFrame(ackTag, 1, []byte("x"))
		_, err = Classify(b)
		require.ErrorIs(t, err, ErrACKPayload)
	})
}
