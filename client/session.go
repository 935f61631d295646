// Package client implements the synchronous client session that
// drives the vineyard wire protocol (spec §4.2), over either the IPC
// (unix-domain) or RPC (tcp) endpoint.
/*
 * Grounded on original_source/src/client/client_base.cc (ClientBase):
 * connect/disconnect state machine, per-op write-then-read calls, the
 * composite CreateMetaData, and the peer-liveness peek.
 */
package client

import (
	"net"
	"sync/atomic"

	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

// State is the connection lifecycle (spec §3 "Connection").
type State int32

const (
	Disconnected State = iota
	Connected
)

// ProtocolVersion is advertised in the register handshake (spec §6
// "On handshake the client sends a register frame").
const ProtocolVersion = "1"

// Session is a client-side connection to one vineyard instance. It is
// safe to share across goroutines for Disconnect (guarded by a
// reentrant mutex); per spec §5, request/reply on one session is
// otherwise serial (bounded in-flight window of one) and is the
// caller's responsibility to serialize if shared.
type Session struct {
	conn  net.Conn
	state atomic.Int32

	mu         reentrantMutex
	instanceID core.InstanceID
}

// Dial connects to a vineyard instance over the given network
// ("unix" for the IPC endpoint, "tcp" for the RPC endpoint) and
// completes the register handshake.
func Dial(network, address string) (*Session, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, cos.Wrap(cos.ErrIOError, "dial %s %s: %v", network, address, err)
	}
	return DialConn(conn)
}

// DialConn completes the register handshake over an already-connected
// net.Conn. Exported so tests can drive a Session over an in-memory
// net.Pipe without a real listener.
func DialConn(conn net.Conn) (*Session, error) {
	s := &Session{conn: conn}
	s.state.Store(int32(Connected))

	var reply wire.RegisterReply
	if err := s.call(&wire.RegisterReq{Type: wire.Register, Version: ProtocolVersion}, &reply); err != nil {
		s.Disconnect()
		return nil, err
	}
	s.instanceID = reply.InstanceID
	return s, nil
}

func (s *Session) InstanceID() core.InstanceID { return s.instanceID }

// Connected reports whether the session believes it is connected,
// additionally peeking a zero-length, non-blocking receive to catch a
// peer half-close the local flag hasn't observed yet (spec §4.2).
func (s *Session) Connected() bool {
	if State(s.state.Load()) != Connected {
		return false
	}
	if !connIsPeerOpen(s.conn) {
		s.state.Store(int32(Disconnected))
		return false
	}
	return true
}

// Disconnect best-effort writes an exit frame, closes the socket and
// flips to Disconnected. Safe to call more than once (double-close is
// a no-op) and safe to call re-entrantly from within a callback
// invoked during an in-flight call on this session.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if State(s.state.Load()) != Connected {
		return nil
	}
	_ = s.writeFrame(&wire.ExitReq{Type: wire.Exit}) // best-effort; errors suppressed per spec §7
	err := s.conn.Close()
	s.state.Store(int32(Disconnected))
	if err != nil {
		return cos.Wrap(cos.ErrIOError, "close: %v", err)
	}
	return nil
}

func (s *Session) ensureConnected() error {
	if State(s.state.Load()) != Connected {
		return cos.ErrNotConnected
	}
	return nil
}

func (s *Session) writeFrame(req any) error {
	body, err := wire.Encode(req)
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(s.conn, body); err != nil {
		s.state.Store(int32(Disconnected))
		return err
	}
	return nil
}

func (s *Session) readFrame(reply any) error {
	body, err := wire.ReadFrame(s.conn)
	if err != nil {
		s.state.Store(int32(Disconnected))
		return err
	}
	typ, err := wire.DecodeType(body)
	if err != nil {
		s.state.Store(int32(Disconnected))
		return err
	}
	if wire.Command(typ) == wire.Error {
		var e wire.ErrorReply
		if err := wire.Decode(body, &e); err != nil {
			return err
		}
		return errorFromKind(e.Kind, e.Message)
	}
	return wire.Decode(body, reply)
}

// call performs one request/reply round-trip: verify connected, write
// the request, read exactly one reply (spec §4.2 contract). Any I/O
// failure transitions the session to Disconnected.
func (s *Session) call(req, reply any) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	if err := s.writeFrame(req); err != nil {
		return err
	}
	return s.readFrame(reply)
}

func errorFromKind(kind, msg string) error {
	var sentinel error
	switch kind {
	case "not_connected":
		sentinel = cos.ErrNotConnected
	case "io_error":
		sentinel = cos.ErrIOError
	case "malformed":
		sentinel = cos.ErrMalformed
	case "bad_payload":
		sentinel = cos.ErrBadPayload
	case "not_found":
		sentinel = cos.ErrNotFound
	case "already_exists":
		sentinel = cos.ErrAlreadyExists
	case "not_ready":
		sentinel = cos.ErrNotReady
	case "cancelled":
		sentinel = cos.ErrCancelled
	case "remote_failure":
		sentinel = cos.ErrRemoteFailure
	case "invariant_violation":
		sentinel = cos.ErrInvariantViolation
	default:
		sentinel = cos.ErrRemoteFailure
	}
	if msg == "" {
		return sentinel
	}
	return cos.Wrap(sentinel, "%s", msg)
}
