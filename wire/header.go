// Package wire implements the fixed-size binary header that precedes every
// UDP fragment of a JPEG frame: a big-endian uTimestamp/packetIndex/
// packetCount/bodyLength quadruple, matching VideoUDPShared's on-wire
// layout byte for byte.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLength is the fixed size in bytes of the fragment header.
const HeaderLength = 20

// ErrMalformedHeader is returned when a byte slice shorter than
// HeaderLength is handed to Decode.
var ErrMalformedHeader = errors.New("wire: malformed header")

// Header is one UDP fragment's framing metadata. UTimestamp identifies the
// JPEG frame the fragment belongs to; PacketIndex and PacketCount locate it
// within the frame's fragmentation; BodyLength is the length of the
// fragment's payload that follows the header on the wire.
type Header struct {
	UTimestamp  uint64
	PacketIndex uint32
	PacketCount uint32
	BodyLength  uint32
}

// Encode writes h into the first HeaderLength bytes of dst, big-endian.
// dst must be at least HeaderLength bytes long.
func Encode(dst []byte, h Header) {
	if len(dst) < HeaderLength {
		panic(fmt.Sprintf("wire: Encode: dst too short: %d < %d", len(dst), HeaderLength))
	}
	binary.BigEndian.PutUint64(dst[0:8], h.UTimestamp)
	binary.BigEndian.PutUint32(dst[8:12], h.PacketIndex)
	binary.BigEndian.PutUint32(dst[12:16], h.PacketCount)
	binary.BigEndian.PutUint32(dst[16:20], h.BodyLength)
}

// Decode parses a Header from the first HeaderLength bytes of src. It
// returns ErrMalformedHeader if src is shorter than HeaderLength;
// a socket partial receive is a fatal condition upstream, not a condition
// this package recovers from.
func Decode(src []byte) (Header, error) {
	if len(src) < HeaderLength {
		return Header{}, fmt.Errorf("%w: got %d bytes, want at least %d", ErrMalformedHeader, len(src), HeaderLength)
	}
	return Header{
		UTimestamp:  binary.BigEndian.Uint64(src[0:8]),
		PacketIndex: binary.BigEndian.Uint32(src[8:12]),
		PacketCount: binary.BigEndian.Uint32(src[12:16]),
		BodyLength:  binary.BigEndian.Uint32(src[16:20]),
	}, nil
}
