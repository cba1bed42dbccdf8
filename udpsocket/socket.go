// Package udpsocket creates the blocking, SO_REUSEADDR IPv4 UDP socket
// shared by the sender and receiver, matching VideoUDPShared's raw-syscall
// construction rather than net.ListenUDP so both sides share one exact
// socket-option recipe.
package udpsocket

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// Create opens an AF_INET/SOCK_DGRAM socket, sets SO_REUSEADDR, clears
// O_NONBLOCK (the pipeline relies on a blocking recvfrom/sendto), and binds
// it to addr/port. port == 0 lets the kernel pick an ephemeral port, which
// the sender side uses when it has no fixed local endpoint.
func Create(addr [4]byte, port int) (int, error) {
	fd, err := sys.Socket(sys.AF_INET, sys.SOCK_DGRAM, 0)
	if err != nil {
		return -1, fmt.Errorf("udpsocket: socket: %w", err)
	}

	if err := sys.SetsockoptInt(fd, sys.SOL_SOCKET, sys.SO_REUSEADDR, 1); err != nil {
		sys.Close(fd)
		return -1, fmt.Errorf("udpsocket: setsockopt SO_REUSEADDR: %w", err)
	}

	flags, err := sys.FcntlInt(uintptr(fd), sys.F_GETFL, 0)
	if err != nil {
		sys.Close(fd)
		return -1, fmt.Errorf("udpsocket: fcntl F_GETFL: %w", err)
	}
	if _, err := sys.FcntlInt(uintptr(fd), sys.F_SETFL, flags&^sys.O_NONBLOCK); err != nil {
		sys.Close(fd)
		return -1, fmt.Errorf("udpsocket: fcntl F_SETFL: %w", err)
	}

	sa := &sys.SockaddrInet4{Port: port, Addr: addr}
	if err := sys.Bind(fd, sa); err != nil {
		sys.Close(fd)
		return -1, fmt.Errorf("udpsocket: bind: %w", err)
	}

	return fd, nil
}
