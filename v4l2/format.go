package v4l2

/*
#include <linux/videodev2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// FourCC is a four-character-code pixel format identifier.
type FourCC = uint32

// PixelFmtMJPEG is the only pixel format this pipeline negotiates.
const PixelFmtMJPEG FourCC = C.V4L2_PIX_FMT_MJPEG

const bufTypeVideoCapture uint32 = C.V4L2_BUF_TYPE_VIDEO_CAPTURE

// PixFormat mirrors the fields of v4l2_pix_format this package cares about.
// Width, Height, and PixelFormat are the three fields format negotiation
// checks for silent down-negotiation; the rest round-trip for completeness.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCC
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

func (f PixFormat) String() string {
	return fmt.Sprintf("%dx%d fourcc=%08x size=%d", f.Width, f.Height, f.PixelFormat, f.SizeImage)
}

func pixFormatFromC(p *C.struct_v4l2_pix_format) PixFormat {
	return PixFormat{
		Width:        uint32(p.width),
		Height:       uint32(p.height),
		PixelFormat:  FourCC(p.pixelformat),
		Field:        uint32(p.field),
		BytesPerLine: uint32(p.bytesperline),
		SizeImage:    uint32(p.sizeimage),
		Colorspace:   uint32(p.colorspace),
	}
}

func (f PixFormat) toC(p *C.struct_v4l2_pix_format) {
	p.width = C.__u32(f.Width)
	p.height = C.__u32(f.Height)
	p.pixelformat = C.__u32(f.PixelFormat)
	p.field = C.__u32(f.Field)
}

// TryFormat issues VIDIOC_TRY_FMT: it asks the driver what format it would
// negotiate for the request without actually changing device state.
func TryFormat(fd uintptr, want PixFormat) (PixFormat, error) {
	var raw C.struct_v4l2_format
	raw._type = C.__u32(bufTypeVideoCapture)
	pix := (*C.struct_v4l2_pix_format)(unsafe.Pointer(&raw.fmt[0]))
	want.toC(pix)

	if err := ioctl(fd, C.VIDIOC_TRY_FMT, uintptr(unsafe.Pointer(&raw))); err != nil {
		return PixFormat{}, fmt.Errorf("v4l2: try format: %w", err)
	}
	return pixFormatFromC(pix), nil
}

// SetFormat issues VIDIOC_S_FMT, committing the pixel format to the device.
func SetFormat(fd uintptr, want PixFormat) (PixFormat, error) {
	var raw C.struct_v4l2_format
	raw._type = C.__u32(bufTypeVideoCapture)
	pix := (*C.struct_v4l2_pix_format)(unsafe.Pointer(&raw.fmt[0]))
	want.toC(pix)

	if err := ioctl(fd, C.VIDIOC_S_FMT, uintptr(unsafe.Pointer(&raw))); err != nil {
		return PixFormat{}, fmt.Errorf("v4l2: set format: %w", err)
	}
	return pixFormatFromC(pix), nil
}
