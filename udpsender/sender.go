// Package udpsender fragments a single JPEG frame across one or more UDP
// datagrams bounded by maxPacketLength, matching VideoUDPSender's framing
// and retransmission-rounds behaviour.
package udpsender

import (
	"errors"
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/TheChrisland/FastMJPG/udpsocket"
	"github.com/TheChrisland/FastMJPG/wire"
)

// ErrEmptyPayload is returned by SendFrame when jpegLength is zero.
var ErrEmptyPayload = errors.New("udpsender: payload length was zero")

// ErrPayloadTooLarge is returned by SendFrame when jpegLength exceeds the
// sender's configured MaxJPEGLength.
var ErrPayloadTooLarge = errors.New("udpsender: payload length exceeds max jpeg length")

// sysSendto is overridden in tests so SendFrame's fragmentation logic can be
// exercised without a real socket.
var sysSendto = sys.Sendto

// Sender fragments and transmits JPEG frames as UDP datagrams to one fixed
// remote endpoint.
type Sender struct {
	maxPacketLength     uint32
	maxJPEGLength       uint32
	maxPacketBodyLength uint32
	maxPacketsPerJPEG   uint32
	fd                  int
	remote              sys.SockaddrInet4
	packet              []byte
}

// New creates a Sender bound to localAddr/localPort and targeting
// remoteAddr/remotePort. maxPacketLength must exceed wire.HeaderLength.
func New(maxPacketLength, maxJPEGLength uint32, localAddr [4]byte, localPort int, remoteAddr [4]byte, remotePort int) (*Sender, error) {
	if maxPacketLength <= wire.HeaderLength {
		return nil, fmt.Errorf("udpsender: maxPacketLength %d must exceed header length %d", maxPacketLength, wire.HeaderLength)
	}

	fd, err := udpsocket.Create(localAddr, localPort)
	if err != nil {
		return nil, err
	}

	maxPacketBodyLength := maxPacketLength - wire.HeaderLength
	s := &Sender{
		maxPacketLength:     maxPacketLength,
		maxJPEGLength:       maxJPEGLength,
		maxPacketBodyLength: maxPacketBodyLength,
		maxPacketsPerJPEG:   maxJPEGLength/maxPacketBodyLength + 1,
		fd:                  fd,
		remote:              sys.SockaddrInet4{Port: remotePort, Addr: remoteAddr},
		packet:              make([]byte, maxPacketLength),
	}
	return s, nil
}

// SendFrame fragments jpeg[:jpegLength] into one or more datagrams and
// transmits the full fragmentation sendRounds times, matching the original
// retransmission-rounds behaviour used to trade bandwidth for loss
// tolerance on lossy links.
func (s *Sender) SendFrame(uTimestamp uint64, jpeg []byte, jpegLength uint32, sendRounds uint32) error {
	if jpegLength == 0 {
		return ErrEmptyPayload
	}
	if jpegLength > s.maxJPEGLength {
		return ErrPayloadTooLarge
	}

	packetCount := (jpegLength + s.maxPacketBodyLength - 1) / s.maxPacketBodyLength

	for round := uint32(0); round < sendRounds; round++ {
		for packetIndex := uint32(0); packetIndex < packetCount; packetIndex++ {
			bodyLength := s.maxPacketBodyLength
			if packetIndex == packetCount-1 {
				bodyLength = jpegLength - packetIndex*s.maxPacketBodyLength
			}

			wire.Encode(s.packet, wire.Header{
				UTimestamp:  uTimestamp,
				PacketIndex: packetIndex,
				PacketCount: packetCount,
				BodyLength:  bodyLength,
			})
			start := packetIndex * s.maxPacketBodyLength
			copy(s.packet[wire.HeaderLength:], jpeg[start:start+bodyLength])

			if err := s.sendWithRetry(s.packet[:wire.HeaderLength+bodyLength]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sender) sendWithRetry(buf []byte) error {
	for {
		err := sysSendto(s.fd, buf, 0, &s.remote)
		if err == nil {
			return nil
		}
		if errors.Is(err, sys.EINTR) {
			continue
		}
		if errors.Is(err, sys.EAGAIN) || errors.Is(err, sys.EWOULDBLOCK) {
			return fmt.Errorf("udpsender: socket was misconfigured non-blocking: %w", err)
		}
		return fmt.Errorf("udpsender: sendto: %w", err)
	}
}

// Close closes the sender's socket file descriptor.
func (s *Sender) Close() error {
	return sys.Close(s.fd)
}
