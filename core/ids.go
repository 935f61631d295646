// Package core holds the object-store data model: identifiers, the
// schemaless metadata tree, name bindings and instance status — the
// types shared by the wire codec, the client session and the server.
/*
 * Grounded on core/meta/bck.go (typed identifiers, reserved-key
 * accessors over a schemaless value) from the teacher repo, and on
 * original_source/src/server/server/vineyard_server.h for the
 * identifier semantics (ObjectID, Signature, InstanceID).
 */
package core

import "strconv"

// ObjectID names an object, globally unique within the cluster.
// Never reused. Opaque to callers beyond equality and the distinguished
// invalid value.
type ObjectID uint64

// InvalidObjectID never names a real object.
const InvalidObjectID ObjectID = 0

func (id ObjectID) Valid() bool   { return id != InvalidObjectID }
func (id ObjectID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Signature distinguishes logically distinct objects with identical
// content; attached at creation and immutable thereafter.
type Signature uint64

// InvalidSignature is never assigned to a real object.
const InvalidSignature Signature = 0

// InstanceID names one server process in the cluster, persisted in
// cluster metadata.
type InstanceID uint64

// UnspecifiedInstanceID marks "no instance" (e.g. a not-yet-resolved
// caller identity); distinct from any real instance id.
const UnspecifiedInstanceID InstanceID = ^InstanceID(0)

func (id InstanceID) Specified() bool { return id != UnspecifiedInstanceID }
func (id InstanceID) String() string  { return strconv.FormatUint(uint64(id), 10) }

// ClusterMetaSentinel prefixes every instance-metadata key stored in
// the external backend (spec §4.5): keys are otherwise indistinguishable
// from other numeric-looking keys in the same namespace.
const ClusterMetaSentinel = 's'

// EncodeClusterMetaKey renders the backend key for an instance id.
func EncodeClusterMetaKey(id InstanceID) string {
	return string(ClusterMetaSentinel) + strconv.FormatUint(uint64(id), 10)
}

// DecodeClusterMetaKey strips the sentinel and parses the decimal
// instance id. Returns an error if the key is too short or the
// remainder isn't a valid uint64 — callers treat either as malformed
// backend state rather than panicking.
func DecodeClusterMetaKey(key string) (InstanceID, error) {
	if len(key) < 2 {
		return UnspecifiedInstanceID, errShortKey(key)
	}
	n, err := strconv.ParseUint(key[1:], 10, 64)
	if err != nil {
		return UnspecifiedInstanceID, err
	}
	return InstanceID(n), nil
}

type errShortKey string

func (e errShortKey) Error() string { return "cluster-meta key too short: " + string(e) }
