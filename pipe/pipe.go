// Package pipe writes frames to an arbitrary byte-oriented file descriptor
// (a named pipe, typically) using a minimal be64(timestamp) || be32(length)
// || payload framing, chunked to maxPacketLength so large frames cannot
// monopolize a FIFO with a single write(2) call.
package pipe

import (
	"encoding/binary"
	"fmt"

	sys "golang.org/x/sys/unix"
)

// sysWrite is overridden in tests so Writer's chunking and short-write
// handling can be exercised without a real file descriptor.
var sysWrite = sys.Write

// Writer writes framed JPEG payloads to one file descriptor.
type Writer struct {
	fd              int
	maxPacketLength uint32
}

// New creates a Writer bound to fd, chunking frame payload writes to at
// most maxPacketLength bytes per write(2) call.
func New(fd int, maxPacketLength uint32) *Writer {
	return &Writer{fd: fd, maxPacketLength: maxPacketLength}
}

// WriteFrame writes uTimestamp and the length-prefixed payload start[:length]
// to the pipe. Any short write is treated as fatal: a byte pipe offers no
// way to resynchronize a partially-written frame, so this returns
// an error the caller is expected to treat as unrecoverable.
func (w *Writer) WriteFrame(uTimestamp uint64, start []byte, length uint32) error {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uTimestamp)
	if err := w.writeExact(tsBuf[:]); err != nil {
		return fmt.Errorf("pipe: write timestamp: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], length)
	if err := w.writeExact(lenBuf[:]); err != nil {
		return fmt.Errorf("pipe: write length: %w", err)
	}

	payload := start[:length]
	for written := uint32(0); written < length; {
		remaining := length - written
		chunk := remaining
		if chunk > w.maxPacketLength {
			chunk = w.maxPacketLength
		}
		if err := w.writeExact(payload[written : written+chunk]); err != nil {
			return fmt.Errorf("pipe: write frame: %w", err)
		}
		written += chunk
	}
	return nil
}

// writeExact writes all of buf in one write(2) call and fails if the kernel
// accepted fewer bytes than requested, matching the original's short-write
// is fatal discipline for a byte pipe with no resynchronization mechanism.
func (w *Writer) writeExact(buf []byte) error {
	n, err := sysWrite(w.fd, buf)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("short write: wrote %d bytes instead of %d", n, len(buf))
	}
	return nil
}
