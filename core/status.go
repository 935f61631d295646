package core

import "github.com/lichnak/vineyard/cmn/cos"

// InstanceStatus is the value object recovered from
// original_source/src/client/client_base.cc's InstanceStatus: exactly
// the seven fields spec §6 "Persisted state" names for each instance
// in the cluster-metadata view.
type InstanceStatus struct {
	InstanceID        InstanceID `json:"instance_id"`
	Deployment        string     `json:"deployment"`
	MemoryUsage       uint64     `json:"memory_usage"`
	MemoryLimit       uint64     `json:"memory_limit"`
	DeferredRequests  int        `json:"deferred_requests"`
	IPCConnections    int        `json:"ipc_connections"`
	RPCConnections    int        `json:"rpc_connections"`
}

// ToTree renders the status as the instance-status tree persisted
// under the cluster metadata key for this instance (spec §3 "Cluster
// metadata view").
func (s InstanceStatus) ToTree() Tree {
	return Tree{
		KeyInstanceID:      uint64(s.InstanceID),
		"deployment":        s.Deployment,
		"memory_usage":       s.MemoryUsage,
		"memory_limit":       s.MemoryLimit,
		"deferred_requests":  s.DeferredRequests,
		"ipc_connections":    s.IPCConnections,
		"rpc_connections":    s.RPCConnections,
	}
}

// DecodeInstanceStatus rebuilds the typed value from a decoded tree,
// the way the original's InstanceStatus constructor does from a json
// tree it is handed over the wire.
func DecodeInstanceStatus(t Tree) (InstanceStatus, error) {
	var s InstanceStatus
	id, ok := t.GetInstanceID()
	if !ok {
		return s, cos.Wrap(cos.ErrBadPayload, "instance_status: missing instance_id")
	}
	s.InstanceID = id
	s.Deployment, _ = t["deployment"].(string)
	s.MemoryUsage = mustUint(t["memory_usage"])
	s.MemoryLimit = mustUint(t["memory_limit"])
	s.DeferredRequests = int(mustUint(t["deferred_requests"]))
	s.IPCConnections = int(mustUint(t["ipc_connections"]))
	s.RPCConnections = int(mustUint(t["rpc_connections"]))
	return s, nil
}

func mustUint(v any) uint64 {
	n, _ := asUint64(v)
	return n
}
