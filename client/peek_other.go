//go:build !linux && !darwin

package client

import "net"

// connIsPeerOpen has no portable zero-byte-peek implementation on
// this platform; callers fall back to trusting the connected flag
// and let the next I/O operation surface a half-close.
func connIsPeerOpen(_ net.Conn) bool { return true }
