// Package v4l2 wraps the Video4Linux2 ioctl surface needed to negotiate and
// stream Motion-JPEG from a capture device: capability query, format
// negotiation, buffer request/map/queue/dequeue, and stream on/off.
//
// This package applies no policy of its own. Every exported function issues
// exactly one ioctl (or mmap/munmap) against an already-open file descriptor,
// retrying transparently on EINTR. Buffer lifecycle, lease discipline, and
// timestamp reconciliation live one layer up, in package capture.
package v4l2
