package v4l2

import (
	"fmt"
	"io/fs"
	"os"

	sys "golang.org/x/sys/unix"
)

// OpenDevice validates that path is a character-special file, then opens it
// read-write. It uses Openat directly rather than os.OpenFile because some
// V4L2 drivers return EBUSY against the extra bookkeeping the os package
// layers on top of a plain open(2).
func OpenDevice(path string) (uintptr, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("v4l2: stat %s: %w", path, err)
	}
	if fi.Mode()&fs.ModeCharDevice == 0 {
		return 0, fmt.Errorf("v4l2: %s: %w", path, ErrNotCharDevice)
	}

	for {
		fd, err := sys.Openat(sys.AT_FDCWD, path, sys.O_RDWR, 0)
		if err == nil {
			return uintptr(fd), nil
		}
		if isInterrupted(err) {
			continue
		}
		return 0, fmt.Errorf("v4l2: open %s: %w", path, err)
	}
}

// CloseDevice closes a device file descriptor opened with OpenDevice. It is
// safe to call with an fd that may have already been closed from signal
// context; EBADF is swallowed so teardown remains idempotent.
func CloseDevice(fd uintptr) error {
	if err := sys.Close(int(fd)); err != nil && !errIsBADF(err) {
		return fmt.Errorf("v4l2: close: %w", err)
	}
	return nil
}

func errIsBADF(err error) bool {
	return err == sys.EBADF
}

// ioctl issues a single ioctl(2) call, retrying transparently on EINTR.
func ioctl(fd, req, arg uintptr) error {
	for {
		_, _, errno := sys.Syscall(sys.SYS_IOCTL, fd, req, arg)
		if errno == 0 {
			return nil
		}
		if errno == sys.EINTR {
			continue
		}
		return errno
	}
}
