package wire

import "github.com/lichnak/vineyard/core"

// EncodeClusterMetaContent renders a decoded instance-id keyed map
// into the wire/backend shape: sentinel-prefixed decimal string keys
// (spec §3 "Cluster metadata view", §4.5 decoding rule).
func EncodeClusterMetaContent(m map[core.InstanceID]core.Tree) map[string]core.Tree {
	out := make(map[string]core.Tree, len(m))
	for id, tree := range m {
		out[core.EncodeClusterMetaKey(id)] = tree
	}
	return out
}

// DecodeClusterMetaContent strips the sentinel from every key and
// parses the remainder as a decimal instance id (spec §5 scenario
// "Cluster meta decode"). A key that fails to decode is skipped: the
// backend is schemaless and a foreign key under the same prefix
// should not abort the whole read.
func DecodeClusterMetaContent(m map[string]core.Tree) map[core.InstanceID]core.Tree {
	out := make(map[core.InstanceID]core.Tree, len(m))
	for key, tree := range m {
		id, err := core.DecodeClusterMetaKey(key)
		if err != nil {
			continue
		}
		out[id] = tree
	}
	return out
}
