package gbn

import (
	"fmt"

	"github.com/google/netstack/tcpip/header"
)

// checksumChunk bounds the number of bytes summed by a single call to
// header.Checksum so its 32-bit accumulator can't overflow. It must be even.
const checksumChunk = 1 << 16

// onesComplementSum adds the 16-bit words of b to initial using end-around
// carry.
func onesComplementSum(b []byte, initial uint16) uint16 {
	sum := initial
	for len(b) > checksumChunk {
		sum = header.Checksum(b[:checksumChunk], sum)
		b = b[checksumChunk:]
	}

	return header.Checksum(b, sum)
}

// Checksum returns the Internet checksum (RFC 1071) of b: the ones' complement
// of the ones' complement sum of its big endian 16-bit words. An odd trailing
// byte is padded with a zero byte.
func Checksum(b []byte) uint16 {
	return ^onesComplementSum(b, 0)
}

// frameChecksum computes the checksum of an encoded frame as if its checksum
// field was zero. The field sits on a word boundary, so summing the bytes
// around it is the same as summing a zeroed copy.
func frameChecksum(b []byte) uint16 {
	sum := onesComplementSum(b[:checksumOffset], 0)
	sum = onesComplementSum(b[checksumOffset+2:], sum)

	return ^sum
}

// verifyChecksum checks the checksum carried in an encoded frame against the
// one computed over its contents.
func verifyChecksum(b []byte) error {
	h, err := readHeader(b)
	if err != nil {
		return err
	}

	if got := frameChecksum(b); got != h.checksum {
		return fmt.Errorf("%w: computed 0x%04x, carried 0x%04x",
			ErrChecksumMismatch, got, h.checksum)
	}

	return nil
}

// IsCorrupt reports whether an encoded frame fails its integrity check.
func IsCorrupt(b []byte) bool {
	return verifyChecksum(b) != nil
}

// Classify verifies the integrity of an encoded frame and decodes it. Every
// error it returns wraps ErrCorruptFrame.
func Classify(b []byte) (*Frame, error) {
	if err := verifyChecksum(b); err != nil {
		return nil, err
	}

	return Deserialize(b)
}
