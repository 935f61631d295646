// Package server implements the orchestration core: the request
// dispatcher and its deferred-request queue, the readiness
// coordinator, the metadata façade adapter, and the lifecycle
// supervisor that starts and stops the subsystems in dependency
// order.
/*
 * Grounded on the teacher's ais/target and ais/proxy run loops for
 * the overall shape (a long-lived struct owning subsystems, started
 * by a supervisor, stopped once by a guarded Stop), generalized to
 * the single cooperative event-loop model spec §5 requires rather
 * than the teacher's multi-goroutine HTTP handler model.
 */
package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lichnak/vineyard/cmn"
	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/cmn/nlog"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

// task is one unit of work submitted to the server's single event
// loop goroutine (spec §5: "all handlers, deferred-queue inspection,
// metadata-watch callbacks, and readiness transitions execute on that
// loop and are therefore mutually exclusive").
type task func()

// Server owns every subsystem spec §3 "Ownership" assigns it
// exclusively: the bulk store, stream store, deferred queue, and
// metadata façade. Endpoints (ipcEndpoint, rpcEndpoint) only ever see
// Current() — a weak, non-extending handle (spec §9 "Self-reference
// in the server") — never a retained pointer with its own claim on
// Server's lifetime.
type Server struct {
	instanceID core.InstanceID
	spec       *cmn.ServerSpec

	facade MetaFacade
	bulk   core.BulkStore
	stream core.StreamStore

	ready    *readiness
	deferred deferredQueue

	tasks chan task

	ipcConns atomic.Int32
	rpcConns atomic.Int32

	metrics *metricsSet

	stopOnce sync.Once
	stopped  chan struct{}

	fatal chan error // invariant_violation reports (spec §7): fatal, triggers Stop
}

// New constructs a Server from a loaded spec; subsystems are not yet
// started (see lifecycle.go Supervisor.Start).
func New(spec *cmn.ServerSpec, instanceID core.InstanceID, facade MetaFacade, bulk core.BulkStore, stream core.StreamStore) *Server {
	if stream == nil {
		stream = core.NullStreamStore{}
	}
	srv := &Server{
		instanceID: instanceID,
		spec:       spec,
		facade:     facade,
		bulk:       bulk,
		stream:     stream,
		ready:      newReadiness(),
		tasks:      make(chan task, 256),
		metrics:    newMetricsSet(),
		stopped:    make(chan struct{}),
		fatal:      make(chan error, 1),
	}
	facade.Watch(func() { srv.submit(srv.onMetadataUpdate) })
	return srv
}

func (srv *Server) InstanceID() core.InstanceID { return srv.instanceID }

// submit enqueues work for the event loop. Called from endpoint
// goroutines (one per connection) and from the façade's watch
// callback; the loop itself never blocks on submit since the channel
// is buffered and callers never hold the loop.
func (srv *Server) submit(t task) {
	select {
	case srv.tasks <- t:
	case <-srv.stopped:
	}
}

// run is the cooperative event loop (spec §5). Exactly one goroutine
// executes it for the lifetime of the server.
func (srv *Server) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-srv.stopped:
			return
		case t := <-srv.tasks:
			t()
		}
	}
}

// onMetadataUpdate re-tests the deferred queue against the façade's
// latest state (spec §4.3 "Ordering"). Always runs on the loop.
func (srv *Server) onMetadataUpdate() {
	srv.deferred.ProcessDeferred(srv.facade)
	srv.metrics.setDeferred(srv.deferred.Len())
}

// dispatch is the single entry point named in spec §4.3: decode,
// route by type, and either answer immediately or park a deferred
// request. Always invoked from the event loop via submit, so handlers
// may touch the façade and deferred queue without locking.
func (srv *Server) dispatch(conn *connection, frame []byte) {
	typ, err := wire.DecodeType(frame)
	if err != nil {
		conn.writeErr(err)
		return
	}
	cmd := wire.Command(typ)

	if cmd != wire.Register && !srv.ready.BackendReady() {
		// spec §8 S6: reply not_ready, no state mutated.
		conn.writeErr(cos.ErrNotReady)
		return
	}

	h, ok := handlers[cmd]
	if !ok {
		conn.writeErr(cos.Wrap(cos.ErrMalformed, "unknown command %q", typ))
		return
	}
	h(srv, conn, frame)
}

// onConnectionClosed drops every deferred request belonging to conn
// without a reply, satisfying spec §8 invariant 4 within the same
// dispatcher tick rather than waiting for the next metadata update.
func (srv *Server) onConnectionClosed(conn *connection, endpoint string) {
	conn.markClosed()
	srv.deferred.RemoveByConnection(conn.id)
	switch endpoint {
	case endpointIPC:
		srv.ipcConns.Add(-1)
	case endpointRPC:
		srv.rpcConns.Add(-1)
	}
	srv.metrics.setConns(int(srv.ipcConns.Load()), int(srv.rpcConns.Load()))
}

// reportFatal records an invariant_violation (spec §7: "internal
// fatal; logged and propagated") and wakes the supervisor's watcher so
// it can drive Stop. Non-blocking: only the first report matters.
func (srv *Server) reportFatal(where string, err error) {
	nlog.Errorf("invariant_violation in %s: %v", where, err)
	select {
	case srv.fatal <- err:
	default:
	}
}

// Fatal exposes the channel the supervisor watches for invariant
// violations reported from the event loop.
func (srv *Server) Fatal() <-chan error { return srv.fatal }
