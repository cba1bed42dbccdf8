package v4l2

/*
#include <linux/videodev2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Fract is a rational seconds-per-frame value (v4l2_fract).
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// SetCaptureTimePerFrame issues VIDIOC_S_PARM with the capture timeperframe
// set to num/den. This is advisory: the driver may choose the closest rate
// it supports and this package does not re-verify the result.
func SetCaptureTimePerFrame(fd uintptr, num, den uint32) error {
	var raw C.struct_v4l2_streamparm
	raw._type = C.__u32(bufTypeVideoCapture)
	capture := (*C.struct_v4l2_captureparm)(unsafe.Pointer(&raw.parm[0]))
	capture.timeperframe.numerator = C.__u32(num)
	capture.timeperframe.denominator = C.__u32(den)

	if err := ioctl(fd, C.VIDIOC_S_PARM, uintptr(unsafe.Pointer(&raw))); err != nil {
		return fmt.Errorf("v4l2: set stream param: %w", err)
	}
	return nil
}
