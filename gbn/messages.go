package gbn

import (
	"errors"
	"fmt"
	"math"

	"github.com/kkdai/bstream"
)

// FrameKind distinguishes a frame carrying application data from a frame
// acknowledging it.
type FrameKind uint8

const (
	// ACK is a cumulative acknowledgment. Its number is the highest
	// sequence number received in order.
	ACK FrameKind = iota

	// DATA carries an application payload labelled with a sequence number.
	DATA
)

// String returns a human readable name for the frame kind.
func (k FrameKind) String() string {
	switch k {
	case ACK:
		return "ACK"
	case DATA:
		return "DATA"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

const (
	// ackTag and dataTag are the values of the kind field on the wire.
	ackTag  = 0x0000
	dataTag = 0x0080

	// HeaderSize is the size of the fixed frame header:
	// kind(16) | number(32) | checksum(16) | length(32).
	HeaderSize = 12

	// MaxPayloadSize is the largest payload the length field can describe.
	MaxPayloadSize = math.MaxUint32

	// checksumOffset is the byte offset of the checksum field.
	checksumOffset = 6
)

var (
	// ErrCorruptFrame is the error every frame that can't be trusted wraps.
	// A checksum mismatch and a frame that fails to decode are handled the
	// same way by the host.
	ErrCorruptFrame = errors.New("corrupt frame")

	// ErrShortFrame is returned for input too short to hold a header.
	ErrShortFrame = fmt.Errorf("%w: shorter than %d byte header",
		ErrCorruptFrame, HeaderSize)

	// ErrUnknownKind is returned when the kind field is neither the ACK
	// nor the DATA tag.
	ErrUnknownKind = fmt.Errorf("%w: unknown frame kind", ErrCorruptFrame)

	// ErrChecksumMismatch is returned when the transmitted checksum doesn't
	// match the one computed over the received bytes.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch",
		ErrCorruptFrame)

	// ErrACKPayload is returned for ACK frames that carry a payload.
	ErrACKPayload = fmt.Errorf("%w: ACK with payload", ErrCorruptFrame)
)

// FramingError is returned when the length declared in a frame header doesn't
// match the number of payload bytes that follow it.
type FramingError struct {
	// Declared is the payload length found in the header.
	Declared uint32

	// Available is the number of bytes following the header.
	Available int
}

// Error returns a description of the framing error.
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: header declares %d payload bytes, "+
		"%d available", e.Declared, e.Available)
}

// Unwrap allows a FramingError to be matched against ErrCorruptFrame.
func (e *FramingError) Unwrap() error {
	return ErrCorruptFrame
}

// Frame is a single Go-Back-N packet.
type Frame struct {
	Kind FrameKind

	// Number is the sequence number of a DATA frame or the acknowledgment
	// number of an ACK frame.
	Number int32

	// Checksum is set by Serialize and Deserialize.
	Checksum uint16

	Payload []byte
}

// NewDataFrame creates a DATA frame with the given sequence number.
func NewDataFrame(seq int32, payload []byte) *Frame {
	return &Frame{
		Kind:    DATA,
		Number:  seq,
		Payload: payload,
	}
}

// NewACKFrame creates an ACK frame acknowledging every sequence number up to
// and including ack.
func NewACKFrame(ack int32) *Frame {
	return &Frame{
		Kind:   ACK,
		Number: ack,
	}
}

// Serialize lays the frame out in network byte order and fills in its
// checksum.
func (f *Frame) Serialize() ([]byte, error) {
	var tag uint16
	switch f.Kind {
	case ACK:
		if len(f.Payload) != 0 {
			return nil, ErrACKPayload
		}
		tag = ackTag

	case DATA:
		tag = dataTag

	default:
		return nil, fmt.Errorf("cannot serialize %v", f.Kind)
	}

	if uint64(len(f.Payload)) > MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds maximum of "+
			"%d", len(f.Payload), uint64(MaxPayloadSize))
	}

	b, checksum := encodeFrame(tag, f.Number, f.Payload)
	f.Checksum = checksum

	return b, nil
}

// Encode builds the wire representation of a frame of the given kind.
func Encode(kind FrameKind, number int32, payload []byte) ([]byte, error) {
	f := &Frame{
		Kind:    kind,
		Number:  number,
		Payload: payload,
	}

	return f.Serialize()
}

// encodeFrame serializes the header with a zero checksum, computes the
// checksum over the whole frame and then writes the header again with the real
// checksum in place.
func encodeFrame(tag uint16, number int32, payload []byte) ([]byte, uint16) {
	length := uint32(len(payload))

	b := make([]byte, 0, HeaderSize+len(payload))
	b = append(b, writeHeader(tag, number, 0, length)...)
	b = append(b, payload...)

	checksum := Checksum(b)
	copy(b[:HeaderSize], writeHeader(tag, number, checksum, length))

	return b, checksum
}

// frameHeader is the decoded fixed size part of a frame.
type frameHeader struct {
	tag      uint16
	number   int32
	checksum uint16
	length   uint32
}

func writeHeader(tag uint16, number int32, checksum uint16,
	length uint32) []byte {

	w := bstream.NewBStreamWriter(HeaderSize)
	w.WriteBits(uint64(tag), 16)
	w.WriteBits(uint64(uint32(number)), 32)
	w.WriteBits(uint64(checksum), 16)
	w.WriteBits(uint64(length), 32)

	return w.Bytes()
}

func readHeader(b []byte) (*frameHeader, error) {
	if len(b) < HeaderSize {
		return nil, ErrShortFrame
	}

	// The reader consumes the slice it is given, so hand it a copy.
	raw := make([]byte, HeaderSize)
	copy(raw, b[:HeaderSize])
	r := bstream.NewBStreamReader(raw)

	var fields [4]uint64
	for i, nbits := range []int{16, 32, 16, 32} {
		v, err := r.ReadBits(nbits)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShortFrame, err)
		}
		fields[i] = v
	}

	return &frameHeader{
		tag:      uint16(fields[0]),
		number:   int32(uint32(fields[1])),
		checksum: uint16(fields[2]),
		length:   uint32(fields[3]),
	}, nil
}

// Deserialize parses a frame. It does not verify the checksum, see Classify
// for that.
func Deserialize(b []byte) (*Frame, error) {
	h, err := readHeader(b)
	if err != nil {
		return nil, err
	}

	var kind FrameKind
	switch h.tag {
	case ackTag:
		kind = ACK
	case dataTag:
		kind = DATA
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownKind, h.tag)
	}

	available := len(b) - HeaderSize
	if uint64(h.length) != uint64(available) {
		return nil, &FramingError{
			Declared:  h.length,
			Available: available,
		}
	}

	if kind == ACK && h.length != 0 {
		return nil, ErrACKPayload
	}

	payload := make([]byte, available)
	copy(payload, b[HeaderSize:])

	return &Frame{
		Kind:     kind,
		Number:   h.number,
		Checksum: h.checksum,
		Payload:  payload,
	}, nil
}
