package pipeline

import (
	"github.com/TheChrisland/FastMJPG/capture"
	"github.com/TheChrisland/FastMJPG/frame"
	"github.com/TheChrisland/FastMJPG/udpreceiver"
)

// CaptureSource adapts a capture.Device to Source. Release returns the
// lease to the driver; the capture source always needs this per frame.
type CaptureSource struct {
	Device *capture.Device
}

func (s CaptureSource) Next() (frame.Envelope, bool, error) {
	f, err := s.Device.GetFrame()
	if err != nil {
		return frame.Envelope{}, false, err
	}
	return frame.Envelope{UTimestampUs: f.UTimestampUs, Payload: f.Payload}, true, nil
}

func (s CaptureSource) Release() error {
	return s.Device.ReturnFrame()
}

// ReceiveSource adapts a udpreceiver.Receiver to Source. Release is a
// no-op: the receiver's jpegBuffer has no per-frame lease discipline; its
// contents are overwritten by the packets the next ReceiveFrame call reads.
type ReceiveSource struct {
	Receiver *udpreceiver.Receiver
}

func (s ReceiveSource) Next() (frame.Envelope, bool, error) {
	f, ok, err := s.Receiver.ReceiveFrame()
	if err != nil {
		return frame.Envelope{}, false, err
	}
	if !ok {
		return frame.Envelope{}, false, nil
	}
	return frame.Envelope{UTimestampUs: f.UTimestamp, Payload: f.Payload}, true, nil
}

func (s ReceiveSource) Release() error {
	return nil
}
