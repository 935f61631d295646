package server

import (
	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

type handlerFunc func(srv *Server, conn *connection, frame []byte)

// handlers is the dispatcher's routing table (spec §4.3: "given a
// decoded request... look up the handler for type and invoke it").
var handlers = map[wire.Command]handlerFunc{
	wire.Register:       handleRegister,
	wire.GetData:        handleGetData,
	wire.CreateData:     handleCreateData,
	wire.DelData:        handleDelData,
	wire.ListData:       handleListData,
	wire.Persist:        handlePersist,
	wire.IfPersist:      handleIfPersist,
	wire.Exists:         handleExists,
	wire.ShallowCopy:    handleShallowCopy,
	wire.PutName:        handlePutName,
	wire.GetName:        handleGetName,
	wire.DropName:       handleDropName,
	wire.MigrateObject:  handleMigrateObject,
	wire.ClusterMeta:    handleClusterMeta,
	wire.InstanceStatus: handleInstanceStatus,
	wire.Exit:           handleExit,
}

func handleRegister(srv *Server, conn *connection, frame []byte) {
	var req wire.RegisterReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.RegisterReply{Type: wire.Register, InstanceID: srv.instanceID})
	srv.facade.SetInstanceStatus(srv.instanceID, srv.currentStatus())
}

// allIDsPresent is the get_data trigger predicate, also used to
// decide whether a wait=true request can be answered immediately
// instead of deferred.
func allIDsPresent(f MetaFacade, ids []core.ObjectID) bool {
	for _, id := range ids {
		if _, ok := f.Get(id); !ok {
			return false
		}
	}
	return true
}

func handleGetData(srv *Server, conn *connection, frame []byte) {
	var req wire.GetDataReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}

	// spec §9 Open Question: a single invalid id with sync_remote=true
	// is the redesigned explicit sync, preserved on the wire as a
	// no-reply-content get_data rather than a distinct command.
	if len(req.IDs) == 1 && req.IDs[0] == core.InvalidObjectID {
		if req.SyncRemote {
			srv.facade.Sync()
		}
		conn.write(&wire.GetDataReply{Type: wire.GetData, Content: map[core.ObjectID]core.Tree{}})
		return
	}

	if req.Wait && !allIDsPresent(srv.facade, req.IDs) {
		ids := req.IDs
		sync := req.SyncRemote
		srv.deferred.Push(&deferredReq{
			kind:             deferredGetData,
			connToken:        conn.id,
			arrivedAtVersion: srv.facade.Version(),
			alive:            conn.alive,
			ids:              ids,
			call: func(f MetaFacade) {
				conn.write(&wire.GetDataReply{Type: wire.GetData, Content: f.GetMany(ids, sync)})
			},
			cancel: func() { conn.writeErr(cos.ErrCancelled) },
		})
		srv.metrics.setDeferred(srv.deferred.Len())
		return
	}

	conn.write(&wire.GetDataReply{Type: wire.GetData, Content: srv.facade.GetMany(req.IDs, req.SyncRemote)})
}

func handleCreateData(srv *Server, conn *connection, frame []byte) {
	var req wire.CreateDataReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	tree := req.Content
	if tree == nil {
		tree = core.NewTree()
	}
	// spec §3 invariant: every created object carries id, signature,
	// instance_id, typename, nbytes (default 0), and transient=true.
	tree.EnsureCreateDefaults(srv.instanceID)
	id, sig, err := srv.facade.Put(tree, srv.instanceID)
	if err != nil {
		conn.writeErr(err)
		return
	}
	if id == core.InvalidObjectID {
		// the façade contract guarantees a valid id on a nil error;
		// a violation here means the façade is broken, not the caller.
		err := cos.Wrap(cos.ErrInvariantViolation, "create_data: façade returned invalid id with nil error")
		srv.reportFatal("create_data", err)
		conn.writeErr(err)
		return
	}
	conn.write(&wire.CreateDataReply{Type: wire.CreateData, ID: id, Signature: sig, InstanceID: srv.instanceID})
}

func handleDelData(srv *Server, conn *connection, frame []byte) {
	var req wire.DelDataReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	if _, err := srv.deleteBlobBatch(req.IDs, req.Force, req.Deep); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.DelDataReply{Type: wire.DelData})
}

// deleteBlobBatch drops exactly the requested ids (plus, if deep,
// their member objects) — the del_data path, as opposed to
// deleteAllAt's instance-wide eviction.
func (srv *Server) deleteBlobBatch(ids []core.ObjectID, force, deep bool) ([]core.ObjectID, error) {
	return srv.facade.Delete(ids, force, deep)
}

// deleteAllAt evicts every object stamped with instance, used when an
// instance departs the cluster (lifecycle teardown) rather than in
// response to a del_data request naming specific ids.
func (srv *Server) deleteAllAt(instance core.InstanceID) ([]core.ObjectID, error) {
	ids := srv.facade.ObjectsByInstance(instance)
	if len(ids) == 0 {
		return nil, nil
	}
	return srv.facade.Delete(ids, true, false)
}

func handleListData(srv *Server, conn *connection, frame []byte) {
	var req wire.ListDataReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	content := srv.facade.List(req.Pattern, req.Regex, req.Limit)
	conn.write(&wire.ListDataReply{Type: wire.ListData, Content: content})
}

func handlePersist(srv *Server, conn *connection, frame []byte) {
	var req wire.PersistReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	if err := srv.facade.Persist(req.ID); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.PersistReply{Type: wire.Persist})
}

func handleIfPersist(srv *Server, conn *connection, frame []byte) {
	var req wire.IfPersistReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	persisted, err := srv.facade.Persisted(req.ID)
	if err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.IfPersistReply{Type: wire.IfPersist, Persist: persisted})
}

func handleExists(srv *Server, conn *connection, frame []byte) {
	var req wire.ExistsReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.ExistsReply{Type: wire.Exists, Exists: srv.facade.Exists(req.ID)})
}

func handleShallowCopy(srv *Server, conn *connection, frame []byte) {
	var req wire.ShallowCopyReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	source, ok := srv.facade.Get(req.ID)
	if !ok {
		conn.writeErr(cos.Wrap(cos.ErrNotFound, "shallow_copy: object %s not found", req.ID))
		return
	}
	clone := source.Clone()
	clone.SetTransient(true)
	clone.ClearIncomplete()
	id, _, err := srv.facade.Put(clone, srv.instanceID)
	if err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.ShallowCopyReply{Type: wire.ShallowCopy, TargetID: id})
}

func handlePutName(srv *Server, conn *connection, frame []byte) {
	var req wire.PutNameReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	if err := srv.facade.PutName(req.ID, req.Name); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.PutNameReply{Type: wire.PutName})
}

func handleGetName(srv *Server, conn *connection, frame []byte) {
	var req wire.GetNameReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	if id, ok := srv.facade.GetName(req.Name); ok {
		conn.write(&wire.GetNameReply{Type: wire.GetName, ID: id})
		return
	}
	if !req.Wait {
		conn.writeErr(cos.Wrap(cos.ErrNotFound, "get_name: %q not bound", req.Name))
		return
	}
	name := req.Name
	srv.deferred.Push(&deferredReq{
		kind:             deferredGetName,
		connToken:        conn.id,
		arrivedAtVersion: srv.facade.Version(),
		alive:            conn.alive,
		name:             name,
		call: func(f MetaFacade) {
			id, _ := f.GetName(name)
			conn.write(&wire.GetNameReply{Type: wire.GetName, ID: id})
		},
		cancel: func() { conn.writeErr(cos.ErrCancelled) },
	})
	srv.metrics.setDeferred(srv.deferred.Len())
}

func handleDropName(srv *Server, conn *connection, frame []byte) {
	var req wire.DropNameReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	if err := srv.facade.DropName(req.Name); err != nil {
		conn.writeErr(err)
		return
	}
	conn.write(&wire.DropNameReply{Type: wire.DropName})
}

// handleMigrateObject: object migration transport is a named external
// collaborator (spec §1 Out of scope) with no implementation here;
// the command still gets exactly one reply rather than hanging.
func handleMigrateObject(srv *Server, conn *connection, frame []byte) {
	var req wire.MigrateObjectReq
	if err := wire.Decode(frame, &req); err != nil {
		conn.writeErr(err)
		return
	}
	conn.writeErr(cos.Wrap(cos.ErrRemoteFailure, "migrate_object: no migration transport configured for object %s", req.ID))
}

func handleClusterMeta(srv *Server, conn *connection, frame []byte) {
	meta := srv.facade.ClusterMeta()
	conn.write(&wire.ClusterMetaReply{Type: wire.ClusterMeta, Content: wire.EncodeClusterMetaContent(meta)})
}

func handleInstanceStatus(srv *Server, conn *connection, frame []byte) {
	conn.write(&wire.InstanceStatusReply{Type: wire.InstanceStatus, Content: srv.currentStatus().ToTree()})
}

// handleExit closes the connection; the connection's read loop then
// fails and its cleanup runs onConnectionClosed exactly once.
func handleExit(srv *Server, conn *connection, frame []byte) {
	conn.close()
}

func (srv *Server) currentStatus() core.InstanceStatus {
	used, limit := srv.bulk.Usage(), srv.bulk.Limit()
	srv.metrics.setUsage(used, limit)
	srv.metrics.setDeferred(srv.deferred.Len())
	srv.metrics.setConns(int(srv.ipcConns.Load()), int(srv.rpcConns.Load()))
	return core.InstanceStatus{
		InstanceID:       srv.instanceID,
		Deployment:       string(srv.spec.Deployment),
		MemoryUsage:      uint64(used),
		MemoryLimit:      uint64(limit),
		DeferredRequests: srv.deferred.Len(),
		IPCConnections:   int(srv.ipcConns.Load()),
		RPCConnections:   int(srv.rpcConns.Load()),
	}
}
