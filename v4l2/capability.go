package v4l2

/*
#include <linux/videodev2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Capability flags relevant to an MJPEG capture pipeline. The kernel defines
// many more (tuner, SDR, overlay, ...); this package only names the ones
// negotiation actually inspects.
const (
	CapVideoCapture uint32 = C.V4L2_CAP_VIDEO_CAPTURE
	CapStreaming    uint32 = C.V4L2_CAP_STREAMING
	CapDeviceCaps   uint32 = C.V4L2_CAP_DEVICE_CAPS
)

// Capability is the result of VIDIOC_QUERYCAP (v4l2_capability).
type Capability struct {
	Driver             string
	Card               string
	BusInfo            string
	Version            uint32
	Capabilities       uint32
	DeviceCapabilities uint32
}

// capabilities returns the capability bitmask that actually governs this
// opened device node: DeviceCapabilities when the driver provides it
// (CapDeviceCaps set), otherwise the legacy combined Capabilities field.
func (c Capability) capabilities() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCapabilities
	}
	return c.Capabilities
}

// IsVideoCaptureSupported reports whether the device can capture video via
// the single-planar API.
func (c Capability) IsVideoCaptureSupported() bool {
	return c.capabilities()&CapVideoCapture != 0
}

// IsStreamingSupported reports whether the device supports the memory-mapped
// streaming I/O model this package requires.
func (c Capability) IsStreamingSupported() bool {
	return c.capabilities()&CapStreaming != 0
}

func (c Capability) String() string {
	return fmt.Sprintf("driver=%s card=%s bus=%s", c.Driver, c.Card, c.BusInfo)
}

// GetCapability issues VIDIOC_QUERYCAP against fd.
func GetCapability(fd uintptr) (Capability, error) {
	var raw C.struct_v4l2_capability
	if err := ioctl(fd, C.VIDIOC_QUERYCAP, uintptr(unsafe.Pointer(&raw))); err != nil {
		return Capability{}, fmt.Errorf("v4l2: query capability: %w", err)
	}
	return Capability{
		Driver:             C.GoString((*C.char)(unsafe.Pointer(&raw.driver[0]))),
		Card:               C.GoString((*C.char)(unsafe.Pointer(&raw.card[0]))),
		BusInfo:            C.GoString((*C.char)(unsafe.Pointer(&raw.bus_info[0]))),
		Version:            uint32(raw.version),
		Capabilities:       uint32(raw.capabilities),
		DeviceCapabilities: uint32(raw.device_caps),
	}, nil
}
