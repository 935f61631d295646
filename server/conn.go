package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/wire"
)

const (
	endpointIPC = "ipc"
	endpointRPC = "rpc"
)

// connection wraps one accepted stream socket, IPC or RPC (spec §3
// "Connection"): owns send/receive framing and a liveness flag
// observed by deferred requests parked against it.
type connection struct {
	id       uuid.UUID
	conn     net.Conn
	endpoint string // "ipc" or "rpc", for instance_status accounting

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConnection(c net.Conn, endpoint string) *connection {
	return &connection{id: uuid.New(), conn: c, endpoint: endpoint}
}

// alive is the predicate deferred requests close over (spec §4.3).
func (c *connection) alive() bool { return !c.closed.Load() }

func (c *connection) markClosed() { c.closed.Store(true) }

// write encodes and frames one reply. Safe to call from the event
// loop while the connection's own read loop runs concurrently on a
// different goroutine — replies can arrive out of the blocking
// Read() call's control flow once a request is deferred.
func (c *connection) write(v any) error {
	body, err := wire.Encode(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.conn, body)
}

func (c *connection) writeErr(err error) {
	_ = c.write(wire.NewErrorReply(cos.KindOf(err), err.Error()))
}

func (c *connection) readFrame() ([]byte, error) {
	return wire.ReadFrame(c.conn)
}

func (c *connection) close() error {
	c.markClosed()
	return c.conn.Close()
}
