package capture

import (
	"errors"
	"testing"

	"github.com/TheChrisland/FastMJPG/v4l2"
)

// fakeCapability returns a Capability advertising both required capabilities
// via the device-caps field, matching go4vl's device_test.go fixture shape.
func fakeCapability() v4l2.Capability {
	return v4l2.Capability{
		Driver:             "fakedriver",
		Card:               "fakecard",
		Capabilities:       v4l2.CapDeviceCaps,
		DeviceCapabilities: v4l2.CapVideoCapture | v4l2.CapStreaming,
	}
}

// installHappyPathMocks wires every v4l2 indirection to a success path that
// negotiates width x height MJPEG with a 3-buffer ring, and returns the
// number of times each hook was invoked via the returned counters map.
func installHappyPathMocks(t *testing.T, width, height uint32) (calls map[string]int, restore func()) {
	t.Helper()
	calls = map[string]int{}

	origOpen := v4l2OpenDevice
	origCap := v4l2GetCapability
	origTry := v4l2TryFormat
	origSet := v4l2SetFormat
	origParm := v4l2SetCaptureTimePerFrame
	origReq := v4l2RequestBuffers
	origQueryBuf := v4l2QueryBuffer
	origMap := v4l2MapMemoryBuffer
	origUnmap := v4l2UnmapMemoryBuffer
	origQueue := v4l2QueueBuffer
	origDequeue := v4l2DequeueBuffer
	origOn := v4l2StreamOn
	origOff := v4l2StreamOff
	origClose := v4l2CloseDevice

	v4l2OpenDevice = func(string) (uintptr, error) {
		calls["open"]++
		return 42, nil
	}
	v4l2GetCapability = func(uintptr) (v4l2.Capability, error) {
		calls["cap"]++
		return fakeCapability(), nil
	}
	v4l2TryFormat = func(fd uintptr, want v4l2.PixFormat) (v4l2.PixFormat, error) {
		calls["try"]++
		return want, nil
	}
	v4l2SetFormat = func(fd uintptr, want v4l2.PixFormat) (v4l2.PixFormat, error) {
		calls["set"]++
		return want, nil
	}
	v4l2SetCaptureTimePerFrame = func(fd uintptr, num, den uint32) error {
		calls["parm"]++
		return nil
	}
	v4l2RequestBuffers = func(fd uintptr, count uint32) (uint32, error) {
		calls["req"]++
		return count, nil
	}
	v4l2QueryBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) {
		calls["querybuf"]++
		return v4l2.Buffer{Index: index, Length: 4096, Offset: index * 4096}, nil
	}
	v4l2MapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) {
		calls["map"]++
		return make([]byte, length), nil
	}
	v4l2UnmapMemoryBuffer = func([]byte) error {
		calls["unmap"]++
		return nil
	}
	v4l2QueueBuffer = func(fd uintptr, index uint32) error {
		calls["queue"]++
		return nil
	}
	v4l2DequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		calls["dequeue"]++
		idx := uint32((calls["dequeue"] - 1) % bufferCount)
		return v4l2.Buffer{Index: idx, BytesUsed: 100, TimestampUs: uint64(calls["dequeue"]) * 1000}, nil
	}
	v4l2StreamOn = func(uintptr) error {
		calls["on"]++
		return nil
	}
	v4l2StreamOff = func(uintptr) error {
		calls["off"]++
		return nil
	}
	v4l2CloseDevice = func(uintptr) error {
		calls["close"]++
		return nil
	}

	restore = func() {
		v4l2OpenDevice = origOpen
		v4l2GetCapability = origCap
		v4l2TryFormat = origTry
		v4l2SetFormat = origSet
		v4l2SetCaptureTimePerFrame = origParm
		v4l2RequestBuffers = origReq
		v4l2QueryBuffer = origQueryBuf
		v4l2MapMemoryBuffer = origMap
		v4l2UnmapMemoryBuffer = origUnmap
		v4l2QueueBuffer = origQueue
		v4l2DequeueBuffer = origDequeue
		v4l2StreamOn = origOn
		v4l2StreamOff = origOff
		v4l2CloseDevice = origClose
	}
	return calls, restore
}

func TestOpenNegotiatesAndQueuesAllBuffers(t *testing.T) {
	calls, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Width() != 640 || d.Height() != 480 {
		t.Fatalf("negotiated resolution mismatch: got %dx%d", d.Width(), d.Height())
	}
	if calls["queue"] != bufferCount {
		t.Fatalf("expected all %d buffers queued at startup, got %d", bufferCount, calls["queue"])
	}
	if d.queuedCount() != bufferCount {
		t.Fatalf("expected queuedCount %d, got %d", bufferCount, d.queuedCount())
	}
	if calls["on"] != 1 {
		t.Fatalf("expected StreamOn called once, got %d", calls["on"])
	}
}

func TestOpenRejectsUnsupportedDevice(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	v4l2GetCapability = func(uintptr) (v4l2.Capability, error) {
		return v4l2.Capability{DeviceCapabilities: v4l2.CapDeviceCaps}, nil
	}

	_, err := Open("/dev/video0", 640, 480, 1, 30)
	if !errors.Is(err, v4l2.ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}
}

func TestOpenRejectsSilentFormatDownNegotiation(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	v4l2TryFormat = func(fd uintptr, want v4l2.PixFormat) (v4l2.PixFormat, error) {
		want.Width = 320
		want.Height = 240
		return want, nil
	}

	_, err := Open("/dev/video0", 640, 480, 1, 30)
	if !errors.Is(err, v4l2.ErrFormatRejected) {
		t.Fatalf("expected ErrFormatRejected, got %v", err)
	}
}

func TestOpenRejectsWrongBufferCount(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	v4l2RequestBuffers = func(fd uintptr, count uint32) (uint32, error) {
		return count - 1, nil
	}

	_, err := Open("/dev/video0", 640, 480, 1, 30)
	if !errors.Is(err, v4l2.ErrBufferCountRejected) {
		t.Fatalf("expected ErrBufferCountRejected, got %v", err)
	}
}

func TestGetFrameLeaseCapIsEnforced(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := d.GetFrame(); err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if d.leasedCount() != 1 {
		t.Fatalf("expected exactly one leased buffer, got %d", d.leasedCount())
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on second outstanding GetFrame")
		}
	}()
	_, _ = d.GetFrame()
}

func TestReturnFrameRestoresQueuedState(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := d.GetFrame(); err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if err := d.ReturnFrame(); err != nil {
		t.Fatalf("ReturnFrame: %v", err)
	}
	if d.leasedCount() != 0 {
		t.Fatalf("expected no leased buffers after ReturnFrame, got %d", d.leasedCount())
	}
	if d.queuedCount() != bufferCount {
		t.Fatalf("expected all buffers queued again, got %d", d.queuedCount())
	}
}

func TestReturnFrameWithoutLeasePanics(t *testing.T) {
	_, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic calling ReturnFrame with no outstanding lease")
		}
	}()
	_ = d.ReturnFrame()
}

func TestGetFrameTimestampIsShiftedToWallClock(t *testing.T) {
	calls, restore := installHappyPathMocks(t, 640, 480)
	defer restore()
	_ = calls

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d.epochShift = 5_000_000

	f, err := d.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if f.UTimestampUs != 1000+5_000_000 {
		t.Fatalf("expected shifted timestamp %d, got %d", 1000+5_000_000, f.UTimestampUs)
	}
}

func TestCloseStopsStreamingAndUnmapsAllBuffers(t *testing.T) {
	calls, restore := installHappyPathMocks(t, 640, 480)
	defer restore()

	d, err := Open("/dev/video0", 640, 480, 1, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if calls["off"] != 1 {
		t.Fatalf("expected StreamOff called once, got %d", calls["off"])
	}
	if calls["unmap"] != bufferCount {
		t.Fatalf("expected %d buffers unmapped, got %d", bufferCount, calls["unmap"])
	}
	if calls["close"] != 1 {
		t.Fatalf("expected device fd closed once, got %d", calls["close"])
	}
}
