//go:build linux || darwin

package client

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// connIsPeerOpen peeks a zero-length, non-blocking receive to detect a
// half-closed peer without consuming data, per spec §9 ("Non-blocking
// liveness peek") and §4.2 (`connected?`). Abstracted behind this
// function so platform quirks stay out of session.go; generalizes the
// teacher's own platform-specific cmn/cos/err_utils_linux.go split.
func connIsPeerOpen(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}
	var (
		n    int
		errno error
	)
	cerr := raw.Read(func(fd uintptr) bool {
		var buf [1]byte
		n, errno = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		return true
	})
	if cerr != nil {
		return true
	}
	if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
		// no data pending, but peer hasn't closed
		return true
	}
	if errno != nil {
		return false
	}
	// n == 0 on a peeked read means the peer sent EOF (half-close)
	return n != 0
}
