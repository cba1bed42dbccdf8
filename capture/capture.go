// Package capture implements the capture-and-lease protocol against a V4L2
// video device: driver negotiation, a ring of three memory-mapped buffers,
// monotonic-to-wall-clock timestamp reconciliation, and the strict
// single-frame lease that bounds copy and latency.
package capture

import (
	"errors"
	"fmt"
	"time"

	sys "golang.org/x/sys/unix"

	"github.com/TheChrisland/FastMJPG/v4l2"
)

// Mockable v4l2 functions, reassigned in tests so the lease protocol's
// state machine can be exercised without a real kernel device.
var (
	v4l2OpenDevice             = v4l2.OpenDevice
	v4l2GetCapability          = v4l2.GetCapability
	v4l2TryFormat              = v4l2.TryFormat
	v4l2SetFormat              = v4l2.SetFormat
	v4l2SetCaptureTimePerFrame = v4l2.SetCaptureTimePerFrame
	v4l2RequestBuffers         = v4l2.RequestBuffers
	v4l2QueryBuffer            = v4l2.QueryBuffer
	v4l2MapMemoryBuffer        = v4l2.MapMemoryBuffer
	v4l2UnmapMemoryBuffer      = v4l2.UnmapMemoryBuffer
	v4l2QueueBuffer            = v4l2.QueueBuffer
	v4l2DequeueBuffer          = v4l2.DequeueBuffer
	v4l2StreamOn               = v4l2.StreamOn
	v4l2StreamOff              = v4l2.StreamOff
	v4l2CloseDevice            = v4l2.CloseDevice
)

// bufferCount is fixed at three: the capture ring requires
// at least two buffers queued with the driver and at most one leased, at
// every steady-state instant.
const bufferCount = 3

// bufferState is the three-state machine each FrameBuffer in the ring moves
// through. Outside of startup/teardown a buffer is always queued or leased.
type bufferState int

const (
	stateUninitialized bufferState = iota
	stateQueued
	stateLeased
)

// frameBuffer is one entry of the three-buffer ring.
type frameBuffer struct {
	data        []byte
	bytesUsed   uint32
	timestampUs uint64
	state       bufferState
}

// Device drives the capture-and-lease protocol against one V4L2 capture
// device. It is not safe for concurrent use: the scheduler (package
// pipeline) calls GetFrame and ReturnFrame from a single goroutine.
type Device struct {
	fd         uintptr
	width      uint32
	height     uint32
	buffers    [bufferCount]frameBuffer
	leasedIdx  int // -1 when no buffer is leased
	epochShift int64
}

// Open negotiates MJPEG capture at width x height and a tbNum/tbDen
// seconds-per-frame timebase against the device at deviceName, maps three
// buffers, and starts streaming. Every fatal condition here
// is a program-ending error: there is no degraded mode to fall back to.
func Open(deviceName string, width, height, tbNum, tbDen uint32) (*Device, error) {
	d := &Device{
		width:      width,
		height:     height,
		leasedIdx:  -1,
		epochShift: epochTimeShift(),
	}

	fd, err := v4l2OpenDevice(deviceName)
	if err != nil {
		return nil, err
	}
	d.fd = fd

	cap, err := v4l2GetCapability(d.fd)
	if err != nil {
		v4l2CloseDevice(d.fd)
		return nil, err
	}
	if !cap.IsVideoCaptureSupported() || !cap.IsStreamingSupported() {
		v4l2CloseDevice(d.fd)
		return nil, fmt.Errorf("capture: %s: %w", deviceName, v4l2.ErrUnsupportedDevice)
	}

	want := v4l2.PixFormat{Width: width, Height: height, PixelFormat: v4l2.PixelFmtMJPEG}
	tried, err := v4l2TryFormat(d.fd, want)
	if err != nil {
		v4l2CloseDevice(d.fd)
		return nil, err
	}
	if tried.Width != width || tried.Height != height || tried.PixelFormat != v4l2.PixelFmtMJPEG {
		v4l2CloseDevice(d.fd)
		return nil, fmt.Errorf("capture: %s: %w (got %s)", deviceName, v4l2.ErrFormatRejected, tried)
	}
	if _, err := v4l2SetFormat(d.fd, want); err != nil {
		v4l2CloseDevice(d.fd)
		return nil, err
	}

	if err := v4l2SetCaptureTimePerFrame(d.fd, tbNum, tbDen); err != nil {
		v4l2CloseDevice(d.fd)
		return nil, err
	}

	granted, err := v4l2RequestBuffers(d.fd, bufferCount)
	if err != nil {
		v4l2CloseDevice(d.fd)
		return nil, err
	}
	if granted != bufferCount {
		v4l2CloseDevice(d.fd)
		return nil, fmt.Errorf("capture: %s: %w (got %d)", deviceName, v4l2.ErrBufferCountRejected, granted)
	}

	for i := 0; i < bufferCount; i++ {
		buf, err := v4l2QueryBuffer(d.fd, uint32(i))
		if err != nil {
			d.unmapUpTo(i)
			v4l2CloseDevice(d.fd)
			return nil, err
		}
		mem, err := v4l2MapMemoryBuffer(d.fd, int64(buf.Offset), int(buf.Length))
		if err != nil {
			d.unmapUpTo(i)
			v4l2CloseDevice(d.fd)
			return nil, err
		}
		d.buffers[i] = frameBuffer{data: mem}
	}

	for i := 0; i < bufferCount; i++ {
		if err := v4l2QueueBuffer(d.fd, uint32(i)); err != nil {
			d.unmapUpTo(bufferCount)
			v4l2CloseDevice(d.fd)
			return nil, err
		}
		d.buffers[i].state = stateQueued
	}

	if err := v4l2StreamOn(d.fd); err != nil {
		d.unmapUpTo(bufferCount)
		v4l2CloseDevice(d.fd)
		return nil, err
	}

	return d, nil
}

func (d *Device) unmapUpTo(n int) {
	for i := 0; i < n; i++ {
		if d.buffers[i].data != nil {
			v4l2UnmapMemoryBuffer(d.buffers[i].data)
			d.buffers[i].data = nil
		}
	}
}

// epochTimeShift computes the one-shot offset added to every driver
// monotonic timestamp to yield wall-clock microseconds: wall_us(now) -
// monotonic_us(now), matching the original VideoCapture.c formula.
func epochTimeShift() int64 {
	wallUs := time.Now().UnixMicro()
	monoUs := monotonicMicros()
	return wallUs - monoUs
}

// Frame is a leased view over one capture buffer. Payload is a non-owning
// slice into the device's mmap'd ring; it is valid only until the matching
// ReturnFrame call.
type Frame struct {
	UTimestampUs uint64
	Payload      []byte
}

// GetFrame blocks until the driver has a filled buffer, then leases it to
// the caller. At most one frame may be leased at a time; callers must call
// ReturnFrame exactly once per GetFrame before calling GetFrame again.
func (d *Device) GetFrame() (Frame, error) {
	if d.leasedIdx != -1 {
		panic("capture: GetFrame called while a frame is already leased")
	}

	buf, err := v4l2DequeueBuffer(d.fd)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: get frame: %w", err)
	}

	idx := int(buf.Index)
	d.buffers[idx].bytesUsed = buf.BytesUsed
	d.buffers[idx].timestampUs = buf.TimestampUs + uint64(d.epochShift)
	d.buffers[idx].state = stateLeased
	d.leasedIdx = idx

	return Frame{
		UTimestampUs: d.buffers[idx].timestampUs,
		Payload:      d.buffers[idx].data[:d.buffers[idx].bytesUsed],
	}, nil
}

// ReturnFrame re-enqueues the currently leased buffer with the driver. It is
// undefined behaviour (the internal lease cap is violated) to call this
// without an outstanding lease; the caller contract is enforced with a
// panic rather than silently ignored.
func (d *Device) ReturnFrame() error {
	if d.leasedIdx == -1 {
		panic("capture: ReturnFrame called with no outstanding lease")
	}
	idx := d.leasedIdx
	if err := v4l2QueueBuffer(d.fd, uint32(idx)); err != nil {
		return fmt.Errorf("capture: return frame: %w", err)
	}
	d.buffers[idx].state = stateQueued
	d.leasedIdx = -1
	return nil
}

// Width and Height report the negotiated capture resolution.
func (d *Device) Width() uint32  { return d.width }
func (d *Device) Height() uint32 { return d.height }

// Close stops streaming, unmaps all buffers, and closes the device file
// descriptor. It is idempotent against a shutdown signal that may have
// already closed the fd from async-signal context.
func (d *Device) Close() error {
	if err := v4l2StreamOff(d.fd); err != nil && !errors.Is(err, sys.EBADF) {
		return err
	}
	d.unmapUpTo(bufferCount)
	return v4l2CloseDevice(d.fd)
}

// leasedCount reports how many buffers currently hold the leased state.
// Exercised only by tests verifying the lease-cap invariant.
func (d *Device) leasedCount() int {
	n := 0
	for _, b := range d.buffers {
		if b.state == stateLeased {
			n++
		}
	}
	return n
}

// queuedCount reports how many buffers currently hold the queued state.
func (d *Device) queuedCount() int {
	n := 0
	for _, b := range d.buffers {
		if b.state == stateQueued {
			n++
		}
	}
	return n
}
