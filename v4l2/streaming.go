package v4l2

/*
#include <linux/videodev2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

const memoryMMAP uint32 = C.V4L2_MEMORY_MMAP

// Buffer mirrors the subset of v4l2_buffer this package exposes after a
// VIDIOC_QUERYBUF/QBUF/DQBUF call.
type Buffer struct {
	Index     uint32
	BytesUsed uint32
	Length    uint32
	Offset    uint32
	// TimestampUs is the driver-reported capture timestamp in
	// CLOCK_MONOTONIC microseconds (tv_sec*1e6 + tv_usec), valid only
	// after DequeueBuffer.
	TimestampUs uint64
}

func bufferFromC(raw *C.struct_v4l2_buffer) Buffer {
	return Buffer{
		Index:       uint32(raw.index),
		BytesUsed:   uint32(raw.bytesused),
		Length:      uint32(raw.length),
		Offset:      *(*uint32)(unsafe.Pointer(&raw.m[0])),
		TimestampUs: uint64(raw.timestamp.Sec)*1_000_000 + uint64(raw.timestamp.Usec),
	}
}

// RequestBuffers issues VIDIOC_REQBUFS, asking the driver to allocate count
// memory-mapped capture buffers, and returns the count it actually granted.
func RequestBuffers(fd uintptr, count uint32) (uint32, error) {
	var raw C.struct_v4l2_requestbuffers
	raw.count = C.__u32(count)
	raw._type = C.__u32(bufTypeVideoCapture)
	raw.memory = C.__u32(memoryMMAP)

	if err := ioctl(fd, C.VIDIOC_REQBUFS, uintptr(unsafe.Pointer(&raw))); err != nil {
		return 0, fmt.Errorf("v4l2: request buffers: %w", err)
	}
	return uint32(raw.count), nil
}

// QueryBuffer issues VIDIOC_QUERYBUF, retrieving the length/offset of an
// already-allocated buffer so it can be mmap'd.
func QueryBuffer(fd uintptr, index uint32) (Buffer, error) {
	var raw C.struct_v4l2_buffer
	raw._type = C.__u32(bufTypeVideoCapture)
	raw.memory = C.__u32(memoryMMAP)
	raw.index = C.__u32(index)

	if err := ioctl(fd, C.VIDIOC_QUERYBUF, uintptr(unsafe.Pointer(&raw))); err != nil {
		return Buffer{}, fmt.Errorf("v4l2: query buffer %d: %w", index, err)
	}
	return bufferFromC(&raw), nil
}

// MapMemoryBuffer mmaps a device buffer of length bytes at offset into the
// process address space.
func MapMemoryBuffer(fd uintptr, offset int64, length int) ([]byte, error) {
	data, err := sys.Mmap(int(fd), offset, length, sys.PROT_READ|sys.PROT_WRITE, sys.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("v4l2: mmap buffer: %w", err)
	}
	return data, nil
}

// UnmapMemoryBuffer unmaps a buffer previously returned by MapMemoryBuffer.
func UnmapMemoryBuffer(buf []byte) error {
	if err := sys.Munmap(buf); err != nil {
		return fmt.Errorf("v4l2: munmap buffer: %w", err)
	}
	return nil
}

// QueueBuffer issues VIDIOC_QBUF, returning ownership of buffer index to the
// driver for capture.
func QueueBuffer(fd uintptr, index uint32) error {
	var raw C.struct_v4l2_buffer
	raw._type = C.__u32(bufTypeVideoCapture)
	raw.memory = C.__u32(memoryMMAP)
	raw.index = C.__u32(index)

	if err := ioctl(fd, C.VIDIOC_QBUF, uintptr(unsafe.Pointer(&raw))); err != nil {
		return fmt.Errorf("v4l2: queue buffer %d: %w", index, err)
	}
	return nil
}

// DequeueBuffer issues VIDIOC_DQBUF, blocking until the driver has a filled
// buffer to hand back. EINTR is retried transparently (via ioctl); any
// other error is wrapped and returned to the caller.
func DequeueBuffer(fd uintptr) (Buffer, error) {
	var raw C.struct_v4l2_buffer
	raw._type = C.__u32(bufTypeVideoCapture)
	raw.memory = C.__u32(memoryMMAP)

	if err := ioctl(fd, C.VIDIOC_DQBUF, uintptr(unsafe.Pointer(&raw))); err != nil {
		return Buffer{}, fmt.Errorf("v4l2: dequeue buffer: %w", err)
	}
	return bufferFromC(&raw), nil
}

// StreamOn issues VIDIOC_STREAMON for video-capture buffer type.
func StreamOn(fd uintptr) error {
	bufType := C.__u32(bufTypeVideoCapture)
	if err := ioctl(fd, C.VIDIOC_STREAMON, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("v4l2: stream on: %w", err)
	}
	return nil
}

// StreamOff issues VIDIOC_STREAMOFF for video-capture buffer type.
func StreamOff(fd uintptr) error {
	bufType := C.__u32(bufTypeVideoCapture)
	if err := ioctl(fd, C.VIDIOC_STREAMOFF, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("v4l2: stream off: %w", err)
	}
	return nil
}
