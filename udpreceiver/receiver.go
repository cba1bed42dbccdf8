// Package udpreceiver reassembles UDP datagram fragments back into whole
// JPEG frames, matching VideoUDPReceiver's reassembly-state-reset-on-new-
// timestamp semantics: loss, duplication, and reordering are all tolerated,
// and at most one frame's worth of fragments is buffered at a time.
package udpreceiver

import (
	"errors"
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/TheChrisland/FastMJPG/udpsocket"
	"github.com/TheChrisland/FastMJPG/wire"
)

// ErrSocketMisconfigured is returned if the underlying socket unexpectedly
// reports EAGAIN/EWOULDBLOCK; this package's socket is always blocking, so
// seeing it indicates the fd was tampered with outside this package.
var ErrSocketMisconfigured = errors.New("udpreceiver: socket was misconfigured non-blocking")

// ErrEmptyDatagram is returned when recvfrom yields a zero-length datagram.
var ErrEmptyDatagram = errors.New("udpreceiver: received 0 length packet")

// ErrPartialReceive is returned when a datagram is shorter than the fixed
// fragment header.
var ErrPartialReceive = errors.New("udpreceiver: socket partial receive")

// ErrLengthMismatch is returned when a fragment's declared body length does
// not match the bytes actually received.
var ErrLengthMismatch = errors.New("udpreceiver: packet length mismatch")

// sysRecvfrom is overridden in tests so ReceiveFrame's reassembly logic can
// be exercised without a real socket.
var sysRecvfrom = sys.Recvfrom

// Frame is one fully reassembled JPEG frame.
type Frame struct {
	UTimestamp uint64
	Payload    []byte
}

// Receiver reassembles fragmented JPEG frames received on one UDP socket.
type Receiver struct {
	maxPacketLength     uint32
	maxPacketBodyLength uint32
	maxPacketsPerJPEG   uint32
	fd                  int
	packet              []byte
	jpegBuffer          []byte

	trackedUTimestamp  uint64
	trackedInitialized bool
	flags              []bool
	packetsFlagged     uint32
	jpegBufferLength   uint32
}

// New creates a Receiver bound to localAddr/localPort.
func New(maxPacketLength, maxJPEGLength uint32, localAddr [4]byte, localPort int) (*Receiver, error) {
	if maxPacketLength <= wire.HeaderLength {
		return nil, fmt.Errorf("udpreceiver: maxPacketLength %d must exceed header length %d", maxPacketLength, wire.HeaderLength)
	}

	fd, err := udpsocket.Create(localAddr, localPort)
	if err != nil {
		return nil, err
	}

	maxPacketBodyLength := maxPacketLength - wire.HeaderLength
	maxPacketsPerJPEG := maxJPEGLength/maxPacketBodyLength + 1
	r := &Receiver{
		maxPacketLength:     maxPacketLength,
		maxPacketBodyLength: maxPacketBodyLength,
		maxPacketsPerJPEG:   maxPacketsPerJPEG,
		fd:                  fd,
		packet:              make([]byte, maxPacketLength),
		jpegBuffer:          make([]byte, maxJPEGLength),
		flags:               make([]bool, maxPacketsPerJPEG),
	}
	return r, nil
}

// ReceiveFrame blocks, reassembling datagrams, until either a full frame has
// arrived (ok == true) or the socket was closed out from under it by a
// shutdown signal (ok == false, matching EBADF in the original). Any other
// socket error is fatal and returned.
func (r *Receiver) ReceiveFrame() (frame Frame, ok bool, err error) {
	for {
		n, _, recvErr := sysRecvfrom(r.fd, r.packet, 0)
		if recvErr != nil {
			if errors.Is(recvErr, sys.EINTR) {
				continue
			}
			if errors.Is(recvErr, sys.EBADF) {
				return Frame{}, false, nil
			}
			if errors.Is(recvErr, sys.EAGAIN) || errors.Is(recvErr, sys.EWOULDBLOCK) {
				return Frame{}, false, ErrSocketMisconfigured
			}
			return Frame{}, false, fmt.Errorf("udpreceiver: recvfrom: %w", recvErr)
		}
		if n == 0 {
			return Frame{}, false, ErrEmptyDatagram
		}
		if n < wire.HeaderLength {
			return Frame{}, false, ErrPartialReceive
		}

		h, decodeErr := wire.Decode(r.packet[:n])
		if decodeErr != nil {
			return Frame{}, false, fmt.Errorf("udpreceiver: %w", decodeErr)
		}
		if wire.HeaderLength+int(h.BodyLength) != n {
			return Frame{}, false, ErrLengthMismatch
		}

		body := r.packet[wire.HeaderLength:n]
		start := h.PacketIndex * r.maxPacketBodyLength
		copy(r.jpegBuffer[start:], body)

		if !r.trackedInitialized || r.trackedUTimestamp != h.UTimestamp {
			r.trackedUTimestamp = h.UTimestamp
			r.trackedInitialized = true
			r.packetsFlagged = 0
			for i := range r.flags {
				r.flags[i] = false
			}
		}

		if r.flags[h.PacketIndex] {
			continue
		}

		if h.PacketIndex == h.PacketCount-1 {
			r.jpegBufferLength = (h.PacketCount-1)*r.maxPacketBodyLength + h.BodyLength
		}

		r.flags[h.PacketIndex] = true
		r.packetsFlagged++

		if r.packetsFlagged == h.PacketCount {
			return Frame{
				UTimestamp: r.trackedUTimestamp,
				Payload:    r.jpegBuffer[:r.jpegBufferLength],
			}, true, nil
		}
	}
}

// Close closes the receiver's socket file descriptor. Closing the fd is the
// one signal-safe way to unblock a ReceiveFrame call parked in recvfrom
// from outside its goroutine.
func (r *Receiver) Close() error {
	return sys.Close(r.fd)
}
