package v4l2

import (
	"errors"

	sys "golang.org/x/sys/unix"
)

// Sentinel errors returned by this package's ioctl wrappers. Use errors.Is
// to test for a specific condition; the underlying errno is always wrapped
// so %w unwrapping still reaches the raw syscall error.
var (
	// ErrNotCharDevice is returned by OpenDevice when the path does not
	// refer to a character-special file.
	ErrNotCharDevice = errors.New("v4l2: not a character device")

	// ErrUnsupportedDevice is returned when a device lacks the video
	// capture or streaming capability required by this package.
	ErrUnsupportedDevice = errors.New("v4l2: device does not support required capability")

	// ErrFormatRejected is returned when the driver silently negotiates a
	// different width, height, or pixel format than requested.
	ErrFormatRejected = errors.New("v4l2: driver rejected requested format")

	// ErrBufferCountRejected is returned when VIDIOC_REQBUFS grants a
	// different buffer count than requested.
	ErrBufferCountRejected = errors.New("v4l2: driver rejected requested buffer count")
)

// isInterrupted reports whether err is EINTR, the only errno this package's
// callers retry transparently.
func isInterrupted(err error) bool {
	return errors.Is(err, sys.EINTR)
}
