package server

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lichnak/vineyard/cmn"
	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/cmn/nlog"
	"github.com/lichnak/vineyard/core"
)

// statusInterval is how often the supervisor republishes this
// instance's status tree to the cluster metadata view (spec §6
// "Persisted state").
const statusInterval = 5 * time.Second

// Supervisor starts subsystems in the dependency order spec §4.6
// names (metadata façade, bulk store, then IPC and RPC) and performs
// orderly, idempotent shutdown. Grounded on the teacher's daemon
// startup sequencing (config → backend → transport), generalized to
// explicit ready-bit signaling and an errgroup-supervised event loop
// plus accept loops instead of the teacher's HTTP server.Serve.
type Supervisor struct {
	srv    *Server
	facade *buntFacade
	ipc    *ipcEndpoint
	rpc    *rpcEndpoint

	group      *errgroup.Group
	cancel     context.CancelFunc
	statusStop chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// NewSupervisor constructs the server from spec without starting any
// subsystem; Start does that in dependency order.
func NewSupervisor(spec *cmn.ServerSpec, bulk core.BulkStore, stream core.StreamStore) (*Supervisor, error) {
	facade, err := NewLocalMetaFacade(spec.Metadata.Path)
	if err != nil {
		return nil, err
	}
	srv := New(spec, newInstanceID(), facade, bulk, stream)
	return &Supervisor{srv: srv, facade: facade}, nil
}

func newInstanceID() core.InstanceID {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[0:8])
	if core.InstanceID(n) == core.UnspecifiedInstanceID {
		n++
	}
	return core.InstanceID(n)
}

func (sup *Supervisor) Server() *Server { return sup.srv }

// Start brings up subsystems in dependency order (spec §4.6): the
// metadata façade is already constructed by NewSupervisor, so its
// readiness bit is signaled immediately; the bulk store is a
// synchronous in-process collaborator and is likewise immediately
// ready; IPC and RPC then bind their listeners. Any failure aborts
// and unwinds whatever already started, in reverse order.
func (sup *Supervisor) Start(ctx context.Context) (err error) {
	srv := sup.srv

	srv.ready.Signal(bitMeta)
	srv.ready.Signal(bitBulk)

	sup.ipc, err = newIPCEndpoint(srv.spec.IPCSocket)
	if err != nil {
		return cos.Wrap(cos.ErrIOError, "start ipc endpoint: %v", err)
	}
	srv.ready.Signal(bitIPC)

	sup.rpc, err = newRPCEndpoint(srv.spec.RPCEndpoint)
	if err != nil {
		sup.ipc.Close()
		return cos.Wrap(cos.ErrIOError, "start rpc endpoint: %v", err)
	}
	srv.ready.Signal(bitRPC)

	setCurrent(srv)

	loopCtx, cancel := context.WithCancel(ctx)
	sup.cancel = cancel
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { srv.run(gctx); return nil })
	g.Go(func() error { sup.ipc.serve(gctx); return nil })
	g.Go(func() error { sup.rpc.serve(gctx); return nil })
	sup.group = g

	sup.statusStop = make(chan struct{})
	go sup.publishStatusLoop()
	go sup.watchFatal()

	nlog.Infof("instance %s ready (ipc=%s rpc=%s)", srv.instanceID, srv.spec.IPCSocket, srv.spec.RPCEndpoint)
	return nil
}

// publishStatusLoop periodically writes this instance's status tree
// into cluster metadata, so peers (and cluster_meta callers) observe
// live occupancy and connection counts.
func (sup *Supervisor) publishStatusLoop() {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			sup.srv.facade.SetInstanceStatus(sup.srv.instanceID, sup.srv.currentStatus())
		case <-sup.statusStop:
			return
		}
	}
}

// watchFatal drives Stop the first time the event loop reports an
// invariant_violation (spec §7: "invariant_violation is fatal and
// triggers Stop").
func (sup *Supervisor) watchFatal() {
	select {
	case err, ok := <-sup.srv.Fatal():
		if !ok {
			return
		}
		nlog.Errorf("fatal error, stopping: %v", err)
		sup.Stop()
	case <-sup.statusStop:
	}
}

// Wait blocks until every supervised goroutine returns (normally only
// after Stop cancels them).
func (sup *Supervisor) Wait() error {
	if sup.group == nil {
		return nil
	}
	return sup.group.Wait()
}

// Stop performs orderly, idempotent shutdown (spec §4.6: "Stop is
// idempotent... exactly one Stop is permitted to produce side
// effects"): cancels pending I/O, drains the deferred queue with
// cancelled replies, and joins subsystems in reverse start order.
func (sup *Supervisor) Stop() error {
	sup.stopOnce.Do(func() {
		srv := sup.srv
		srv.ready.Stopping()

		if sup.statusStop != nil {
			close(sup.statusStop)
		}

		var errs cos.Errs
		if sup.rpc != nil {
			errs.Add(sup.rpc.Close())
		}
		if sup.ipc != nil {
			errs.Add(sup.ipc.Close())
		}

		if sup.cancel != nil {
			sup.cancel()
		}
		if sup.group != nil {
			errs.Add(sup.group.Wait())
		}

		// drain the deferred queue directly: the loop has exited, so
		// nothing else touches the queue any more.
		srv.deferred.DrainCancelled()

		// this instance is departing the cluster: evict whatever it
		// still owns from the metadata view rather than leaving stale
		// entries for peers to trip over.
		if deleted, err := srv.deleteAllAt(srv.instanceID); err != nil {
			errs.Add(err)
		} else if len(deleted) > 0 {
			nlog.Infof("instance %s evicted %d object(s) on departure", srv.instanceID, len(deleted))
		}

		if sup.facade != nil {
			errs.Add(sup.facade.Close())
		}

		clearCurrent(srv)
		srv.ready.Stopped()
		close(srv.stopped)

		nlog.Infof("instance %s stopped", srv.instanceID)
		sup.stopErr = errs.JoinErr()
	})
	return sup.stopErr
}
