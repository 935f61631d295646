package server

import (
	"context"
	"net"

	"github.com/lichnak/vineyard/cmn/nlog"
)

// rpcEndpoint is the TCP stream listener (spec §6 "Transport"),
// carrying the same length-prefixed JSON frames as the IPC endpoint.
type rpcEndpoint struct {
	ln net.Listener
}

func newRPCEndpoint(addr string) (*rpcEndpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &rpcEndpoint{ln: ln}, nil
}

func (e *rpcEndpoint) Close() error { return e.ln.Close() }

func (e *rpcEndpoint) serve(ctx context.Context) {
	for {
		c, err := e.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				nlog.Warningf("rpc accept: %v", err)
				return
			}
		}
		go serveConnection(c, endpointRPC)
	}
}
