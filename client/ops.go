package client

import (
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

func (s *Session) GetData(ids []core.ObjectID, syncRemote, wait bool) (map[core.ObjectID]core.Tree, error) {
	var reply wire.GetDataReply
	req := &wire.GetDataReq{Type: wire.GetData, IDs: ids, SyncRemote: syncRemote, Wait: wait}
	if err := s.call(req, &reply); err != nil {
		return nil, err
	}
	return reply.Content, nil
}

func (s *Session) CreateData(content core.Tree) (core.ObjectID, core.Signature, core.InstanceID, error) {
	var reply wire.CreateDataReply
	req := &wire.CreateDataReq{Type: wire.CreateData, Content: content}
	if err := s.call(req, &reply); err != nil {
		return core.InvalidObjectID, core.InvalidSignature, core.UnspecifiedInstanceID, err
	}
	return reply.ID, reply.Signature, reply.InstanceID, nil
}

// CreateMetaData is the composite client-side operation from
// original_source/src/client/client_base.cc (ClientBase::CreateMetaData),
// recovered in SPEC_FULL.md's SUPPLEMENTED FEATURES #1:
//
//  1. stamp the caller's instance_id and mark transient;
//  2. default nbytes to 0 if absent;
//  3. if the tree is flagged incomplete, issue a best-effort
//     sync-only get_data(InvalidObjectID, sync_remote=true, wait=false)
//     purely to force a cluster-side metadata refresh, ignoring its
//     result;
//  4. create the object;
//  5. stamp the returned id/signature/instance_id onto the tree;
//  6. if still incomplete, re-fetch the now-complete metadata and
//     clear the flag.
func (s *Session) CreateMetaData(tree core.Tree) (core.ObjectID, error) {
	tree.EnsureCreateDefaults(s.instanceID)

	if tree.Incomplete() {
		// best-effort: errors are swallowed, matching
		// VINEYARD_SUPPRESS(GetData(...)) in the original.
		_, _ = s.GetData([]core.ObjectID{core.InvalidObjectID}, true, false)
	}

	id, sig, inst, err := s.CreateData(tree)
	if err != nil {
		return core.InvalidObjectID, err
	}
	tree.SetID(id)
	tree.SetSignature(sig)
	tree.SetInstanceID(inst)

	if tree.Incomplete() {
		fetched, err := s.GetData([]core.ObjectID{id}, false, false)
		if err != nil {
			return id, err
		}
		if full, ok := fetched[id]; ok {
			for k, v := range full {
				tree[k] = v
			}
		}
		tree.ClearIncomplete()
	}
	return id, nil
}

func (s *Session) DelData(ids []core.ObjectID, force, deep bool) error {
	var reply wire.DelDataReply
	req := &wire.DelDataReq{Type: wire.DelData, IDs: ids, Force: force, Deep: deep}
	return s.call(req, &reply)
}

func (s *Session) ListData(pattern string, regex bool, limit int) (map[core.ObjectID]core.Tree, error) {
	var reply wire.ListDataReply
	req := &wire.ListDataReq{Type: wire.ListData, Pattern: pattern, Regex: regex, Limit: limit}
	if err := s.call(req, &reply); err != nil {
		return nil, err
	}
	return reply.Content, nil
}

func (s *Session) Persist(id core.ObjectID) error {
	var reply wire.PersistReply
	return s.call(&wire.PersistReq{Type: wire.Persist, ID: id}, &reply)
}

func (s *Session) IfPersist(id core.ObjectID) (bool, error) {
	var reply wire.IfPersistReply
	if err := s.call(&wire.IfPersistReq{Type: wire.IfPersist, ID: id}, &reply); err != nil {
		return false, err
	}
	return reply.Persist, nil
}

func (s *Session) Exists(id core.ObjectID) (bool, error) {
	var reply wire.ExistsReply
	if err := s.call(&wire.ExistsReq{Type: wire.Exists, ID: id}, &reply); err != nil {
		return false, err
	}
	return reply.Exists, nil
}

func (s *Session) ShallowCopy(id core.ObjectID) (core.ObjectID, error) {
	var reply wire.ShallowCopyReply
	if err := s.call(&wire.ShallowCopyReq{Type: wire.ShallowCopy, ID: id}, &reply); err != nil {
		return core.InvalidObjectID, err
	}
	return reply.TargetID, nil
}

func (s *Session) PutName(id core.ObjectID, name string) error {
	var reply wire.PutNameReply
	return s.call(&wire.PutNameReq{Type: wire.PutName, ID: id, Name: name}, &reply)
}

func (s *Session) GetName(name string, wait bool) (core.ObjectID, error) {
	var reply wire.GetNameReply
	if err := s.call(&wire.GetNameReq{Type: wire.GetName, Name: name, Wait: wait}, &reply); err != nil {
		return core.InvalidObjectID, err
	}
	return reply.ID, nil
}

func (s *Session) DropName(name string) error {
	var reply wire.DropNameReply
	return s.call(&wire.DropNameReq{Type: wire.DropName, Name: name}, &reply)
}

func (s *Session) MigrateObject(id core.ObjectID) (core.ObjectID, error) {
	var reply wire.MigrateObjectReply
	if err := s.call(&wire.MigrateObjectReq{Type: wire.MigrateObject, ID: id}, &reply); err != nil {
		return core.InvalidObjectID, err
	}
	return reply.ResultID, nil
}

// ClusterMeta decodes the sentinel-prefixed keys on the client side,
// as original_source's ClientBase::ClusterInfo does.
func (s *Session) ClusterMeta() (map[core.InstanceID]core.Tree, error) {
	var reply wire.ClusterMetaReply
	if err := s.call(&wire.ClusterMetaReq{Type: wire.ClusterMeta}, &reply); err != nil {
		return nil, err
	}
	return wire.DecodeClusterMetaContent(reply.Content), nil
}

// Instances returns just the instance ids known to the cluster
// (original_source's ClientBase::Instances).
func (s *Session) Instances() ([]core.InstanceID, error) {
	meta, err := s.ClusterMeta()
	if err != nil {
		return nil, err
	}
	out := make([]core.InstanceID, 0, len(meta))
	for id := range meta {
		out = append(out, id)
	}
	return out, nil
}

func (s *Session) InstanceStatus() (core.InstanceStatus, error) {
	var reply wire.InstanceStatusReply
	if err := s.call(&wire.InstanceStatusReq{Type: wire.InstanceStatus}, &reply); err != nil {
		return core.InstanceStatus{}, err
	}
	return core.DecodeInstanceStatus(reply.Content)
}
