package server

import (
	"context"
	"net"

	"github.com/lichnak/vineyard/cmn/nlog"
)

// ipcEndpoint is the unix-domain stream listener (spec §6
// "Transport"). It holds only a weak reference to the server —
// Current() — resolved once per accepted connection, never retained
// (spec §9 "Self-reference in the server").
type ipcEndpoint struct {
	ln net.Listener
}

func newIPCEndpoint(socketPath string) (*ipcEndpoint, error) {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &ipcEndpoint{ln: ln}, nil
}

func (e *ipcEndpoint) Close() error { return e.ln.Close() }

// serve accepts connections until ctx is cancelled or the listener is
// closed by Stop.
func (e *ipcEndpoint) serve(ctx context.Context) {
	for {
		c, err := e.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				nlog.Warningf("ipc accept: %v", err)
				return
			}
		}
		go serveConnection(c, endpointIPC)
	}
}

// serveConnection reads frames off one connection and submits each as
// a dispatch task to the owning server's event loop, so all handler
// logic runs serialized on that single loop regardless of how many
// connections are concurrently open (spec §5).
func serveConnection(c net.Conn, endpoint string) {
	srv := Current()
	if srv == nil {
		c.Close()
		return
	}
	conn := newConnection(c, endpoint)
	switch endpoint {
	case endpointIPC:
		srv.ipcConns.Add(1)
	case endpointRPC:
		srv.rpcConns.Add(1)
	}

	defer func() {
		conn.close()
		if s := Current(); s != nil {
			s.submit(func() { s.onConnectionClosed(conn, endpoint) })
		}
	}()

	for {
		frame, err := conn.readFrame()
		if err != nil {
			return
		}
		s := Current()
		if s == nil {
			return
		}
		s.submit(func() { s.dispatch(conn, frame) })
	}
}
