package core

import (
	"encoding/json"
	"strconv"
)

// Tree is the unordered, schemaless metadata tree attached to every
// object (spec §3 "Object metadata"). Keys are strings; values are
// trees, strings, integers, floats, booleans or arrays thereof — the
// natural shape of a decoded JSON object, so Tree is simply a
// map[string]any and plays directly with the wire codec's jsoniter
// decode.
type Tree map[string]any

// Reserved keys, recognized by the server and never reinterpreted by
// user content.
const (
	KeyID         = "id"
	KeySignature  = "signature"
	KeyInstanceID = "instance_id"
	KeyTypename   = "typename"
	KeyNBytes     = "nbytes"
	KeyTransient  = "transient"
	KeyIncomplete = "incomplete"
)

func NewTree() Tree { return make(Tree, 8) }

func (t Tree) GetID() (ObjectID, bool) {
	n, ok := asUint64(t[KeyID])
	return ObjectID(n), ok
}

func (t Tree) SetID(id ObjectID) { t[KeyID] = uint64(id) }

func (t Tree) GetSignature() (Signature, bool) {
	n, ok := asUint64(t[KeySignature])
	return Signature(n), ok
}

func (t Tree) SetSignature(sig Signature) { t[KeySignature] = uint64(sig) }

func (t Tree) GetInstanceID() (InstanceID, bool) {
	n, ok := asUint64(t[KeyInstanceID])
	return InstanceID(n), ok
}

func (t Tree) SetInstanceID(id InstanceID) { t[KeyInstanceID] = uint64(id) }

func (t Tree) GetTypename() (string, bool) {
	s, ok := t[KeyTypename].(string)
	return s, ok
}

func (t Tree) SetTypename(name string) { t[KeyTypename] = name }

func (t Tree) GetNBytes() (int64, bool) {
	n, ok := asUint64(t[KeyNBytes])
	return int64(n), ok
}

func (t Tree) SetNBytes(n int64) { t[KeyNBytes] = n }

func (t Tree) HasKey(key string) bool {
	_, ok := t[key]
	return ok
}

func (t Tree) IsTransient() bool {
	b, _ := t[KeyTransient].(bool)
	return b
}

func (t Tree) SetTransient(v bool) { t[KeyTransient] = v }

// Incomplete reports whether the metadata tree references member
// objects that may be resident on other instances (spec §3).
func (t Tree) Incomplete() bool {
	b, _ := t[KeyIncomplete].(bool)
	return b
}

func (t Tree) SetIncomplete(v bool) { t[KeyIncomplete] = v }
func (t Tree) ClearIncomplete()     { delete(t, KeyIncomplete) }

// EnsureCreateDefaults fills in the invariants spec §3 requires of
// every created object's metadata: instance_id, transient=true, and
// nbytes defaulted to 0 when absent. typename is left to the caller
// (it has no sensible default).
func (t Tree) EnsureCreateDefaults(instance InstanceID) {
	t.SetInstanceID(instance)
	t.SetTransient(true)
	if !t.HasKey(KeyNBytes) {
		t.SetNBytes(0)
	}
}

// Clone deep-copies the tree (nested trees and arrays included) so a
// caller may mutate the result without perturbing what the server
// holds, and vice versa.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = cloneValue(vv)
		}
		return out
	case Tree:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Members walks the tree for nested member-object references: any
// nested tree (at any depth) that itself carries an "id" key is taken
// to be a reference to a (possibly remote) member object, per spec §3
// ("a nested metadata tree referencing member objects that are
// resident on other instances").
func (t Tree) Members() []ObjectID {
	var out []ObjectID
	walkMembers(t, true, &out)
	return out
}

func walkMembers(v any, top bool, out *[]ObjectID) {
	switch x := v.(type) {
	case map[string]any:
		if !top {
			if n, ok := asUint64(x[KeyID]); ok {
				*out = append(*out, ObjectID(n))
			}
		}
		for k, vv := range x {
			if k == KeyID {
				continue
			}
			walkMembers(vv, false, out)
		}
	case Tree:
		walkMembers(map[string]any(x), top, out)
	case []any:
		for _, vv := range x {
			walkMembers(vv, false, out)
		}
	}
}

// asUint64 accepts the handful of numeric shapes jsoniter may produce
// for an integer-typed JSON value (float64 from generic decode,
// json.Number, or a plain Go integer set programmatically).
func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		return uint64(x), true
	case int:
		return uint64(x), true
	case float64:
		return uint64(x), true
	case json.Number:
		if n, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return n, true
		}
		f, err := x.Float64()
		return uint64(f), err == nil
	default:
		return 0, false
	}
}
