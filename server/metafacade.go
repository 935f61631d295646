package server

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"github.com/tidwall/match"

	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/core"
)

// MetaFacade is the thin adapter over the external metadata service
// (spec §4.5): get/get-many/put, name bindings, cluster metadata, and
// a watch callback invoked on every change. sync_remote reconciliation
// and the redesigned explicit Sync() live here too (spec §9 Open
// Question).
type MetaFacade interface {
	Get(id core.ObjectID) (core.Tree, bool)
	GetMany(ids []core.ObjectID, syncRemote bool) map[core.ObjectID]core.Tree
	Put(tree core.Tree, instance core.InstanceID) (core.ObjectID, core.Signature, error)
	Delete(ids []core.ObjectID, force, deep bool) (deleted []core.ObjectID, err error)
	List(pattern string, regex bool, limit int) map[core.ObjectID]core.Tree
	Exists(id core.ObjectID) bool
	ObjectsByInstance(instance core.InstanceID) []core.ObjectID
	Persist(id core.ObjectID) error
	Persisted(id core.ObjectID) (bool, error)

	PutName(id core.ObjectID, name string) error
	GetName(name string) (core.ObjectID, bool)
	DropName(name string) error

	ClusterMeta() map[core.InstanceID]core.Tree
	SetInstanceStatus(id core.InstanceID, status core.InstanceStatus)

	// Sync forces reconciliation with peers; see spec §9 Open Question
	// ("expose sync() on the metadata façade and call it explicitly").
	// The local façade has no peers, so this is a no-op that still
	// bumps the version and fires watchers, matching the wire-level
	// behavior of an invalid-id sync-only get_data.
	Sync()

	Watch(cb func()) (unwatch func())
	Version() int64
}

// buntFacade is the local, single-host implementation backed by
// tidwall/buntdb, an embedded ACID KV — playing the role spec §1
// calls out as "the metadata backing store (an external
// consensus/KV system)... external collaborator with named
// interface only" for `deployment: local`. A `distributed`
// implementation (etcd/ZooKeeper-backed) is a named, unimplemented
// seam (see SPEC_FULL.md Open Questions).
type buntFacade struct {
	db      *buntdb.DB
	version atomic.Int64
	watchMu watchList
}

const (
	prefixObj  = "o:"
	prefixName = "n:"
)

func NewLocalMetaFacade(dbPath string) (*buntFacade, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, cos.Wrap(cos.ErrRemoteFailure, "open metadata store: %v", err)
	}
	return &buntFacade{db: db}, nil
}

func (f *buntFacade) Close() error { return f.db.Close() }

func objKey(id core.ObjectID) string { return prefixObj + id.String() }
func nameKey(name string) string     { return prefixName + name }

func (f *buntFacade) encodeTree(t core.Tree) string { return string(cos.MustMarshal(t)) }

// decodeTree keeps numbers as json.Number so 64-bit ids and instance
// ids survive the round-trip through the store without float64
// rounding.
func (f *buntFacade) decodeTree(s string) (core.Tree, error) {
	var t core.Tree
	dec := cos.JSON.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&t); err != nil {
		return nil, err
	}
	return t, nil
}

func (f *buntFacade) bump() {
	f.version.Add(1)
	f.watchMu.notify()
}

func (f *buntFacade) Version() int64 { return f.version.Load() }

func (f *buntFacade) Watch(cb func()) (unwatch func()) { return f.watchMu.add(cb) }

func (f *buntFacade) Get(id core.ObjectID) (core.Tree, bool) {
	var tree core.Tree
	found := false
	f.db.View(func(tx *buntdb.Tx) error {
		s, err := tx.Get(objKey(id))
		if err != nil {
			return nil
		}
		t, err := f.decodeTree(s)
		if err != nil {
			return nil
		}
		tree, found = t, true
		return nil
	})
	return tree, found
}

func (f *buntFacade) Exists(id core.ObjectID) bool {
	_, ok := f.Get(id)
	return ok
}

func (f *buntFacade) GetMany(ids []core.ObjectID, syncRemote bool) map[core.ObjectID]core.Tree {
	if syncRemote {
		f.Sync()
	}
	out := make(map[core.ObjectID]core.Tree, len(ids))
	for _, id := range ids {
		if t, ok := f.Get(id); ok {
			out[id] = t
		}
	}
	return out
}

// Put stores a copy of tree as a new object under a freshly generated
// id/signature pair (google/uuid derived, per SPEC_FULL.md DOMAIN
// STACK), overwriting any id or signature the tree already carries,
// and stamps instance as its instance_id. The caller's tree is not
// modified.
func (f *buntFacade) Put(tree core.Tree, instance core.InstanceID) (core.ObjectID, core.Signature, error) {
	id, sig := newIDAndSignature()
	tree = tree.Clone()
	tree.SetID(id)
	tree.SetSignature(sig)
	tree.SetInstanceID(instance)

	err := f.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(objKey(id), f.encodeTree(tree), nil)
		return err
	})
	if err != nil {
		return core.InvalidObjectID, core.InvalidSignature, cos.Wrap(cos.ErrRemoteFailure, "put object: %v", err)
	}
	f.bump()
	return id, sig, nil
}

func (f *buntFacade) Delete(ids []core.ObjectID, force, deep bool) ([]core.ObjectID, error) {
	var deleted []core.ObjectID
	var missing []core.ObjectID
	err := f.db.Update(func(tx *buntdb.Tx) error {
		for _, id := range ids {
			toDelete := []core.ObjectID{id}
			if deep {
				if t, ok := f.treeInTx(tx, id); ok {
					toDelete = append(toDelete, t.Members()...)
				}
			}
			for _, did := range toDelete {
				if _, err := tx.Delete(objKey(did)); err != nil {
					if err == buntdb.ErrNotFound {
						missing = append(missing, did)
						continue
					}
					return err
				}
				deleted = append(deleted, did)
			}
		}
		return nil
	})
	if err != nil {
		return deleted, cos.Wrap(cos.ErrRemoteFailure, "delete objects: %v", err)
	}
	if len(missing) > 0 && !force {
		return deleted, cos.Wrap(cos.ErrNotFound, "del_data: %d object(s) not found", len(missing))
	}
	if len(deleted) > 0 {
		f.bump()
	}
	return deleted, nil
}

func (f *buntFacade) treeInTx(tx *buntdb.Tx, id core.ObjectID) (core.Tree, bool) {
	s, err := tx.Get(objKey(id))
	if err != nil {
		return nil, false
	}
	t, err := f.decodeTree(s)
	if err != nil {
		return nil, false
	}
	return t, true
}

// Persist clears the transient flag in place (spec §3: "transient is
// true unless the object has been persisted"). The glossary's
// "promoted to durable status" has no real durability backend here
// (spec §1 Non-goals excludes blob-payload durability across
// restarts) — Persist only flips the flag other operations observe.
func (f *buntFacade) Persist(id core.ObjectID) error {
	err := f.db.Update(func(tx *buntdb.Tx) error {
		t, ok := f.treeInTx(tx, id)
		if !ok {
			return buntdb.ErrNotFound
		}
		t.SetTransient(false)
		_, _, err := tx.Set(objKey(id), f.encodeTree(t), nil)
		return err
	})
	if err != nil {
		if err == buntdb.ErrNotFound {
			return cos.Wrap(cos.ErrNotFound, "persist: object %s not found", id)
		}
		return cos.Wrap(cos.ErrRemoteFailure, "persist: %v", err)
	}
	f.bump()
	return nil
}

func (f *buntFacade) Persisted(id core.ObjectID) (bool, error) {
	t, ok := f.Get(id)
	if !ok {
		return false, cos.Wrap(cos.ErrNotFound, "if_persist: object %s not found", id)
	}
	return !t.IsTransient(), nil
}

// List matches each object's typename against pattern — glob by
// default, regex when regex=true — returning at most limit results
// (0 meaning unbounded). Matching against typename mirrors vineyard's
// own ListObjects(pattern) semantics (original_source, by analogy
// with its "list objects whose type matches" behavior).
func (f *buntFacade) List(pattern string, isRegex bool, limit int) map[core.ObjectID]core.Tree {
	out := make(map[core.ObjectID]core.Tree)
	var re *regexp.Regexp
	if isRegex {
		re, _ = regexp.Compile(pattern)
	}
	f.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixObj+"*", func(key, value string) bool {
			if limit > 0 && len(out) >= limit {
				return false
			}
			t, err := f.decodeTree(value)
			if err != nil {
				return true
			}
			name, _ := t.GetTypename()
			matched := pattern == "" ||
				(isRegex && re != nil && re.MatchString(name)) ||
				(!isRegex && match.Match(name, pattern))
			if !matched {
				return true
			}
			if id, ok := t.GetID(); ok {
				out[id] = t
			}
			return true
		})
	})
	return out
}

// ObjectsByInstance lists every object stamped with the given
// instance_id, the enumeration step of the original's instance-wide
// eviction (DeleteAllAt): a departing instance's own objects must be
// found before they can be dropped from the metadata view.
func (f *buntFacade) ObjectsByInstance(instance core.InstanceID) []core.ObjectID {
	var out []core.ObjectID
	f.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixObj+"*", func(key, value string) bool {
			t, err := f.decodeTree(value)
			if err != nil {
				return true
			}
			if inst, ok := t.GetInstanceID(); ok && inst == instance {
				if id, ok := t.GetID(); ok {
					out = append(out, id)
				}
			}
			return true
		})
	})
	return out
}

func (f *buntFacade) PutName(id core.ObjectID, name string) error {
	var existing string
	err := f.db.Update(func(tx *buntdb.Tx) error {
		s, err := tx.Get(nameKey(name))
		if err == nil {
			existing = s
			return nil
		}
		_, _, err = tx.Set(nameKey(name), id.String(), nil)
		return err
	})
	if err != nil {
		return cos.Wrap(cos.ErrRemoteFailure, "put_name: %v", err)
	}
	if existing != "" {
		n, _ := strconv.ParseUint(existing, 10, 64)
		if core.ObjectID(n) != id {
			return cos.Wrap(cos.ErrAlreadyExists, "name %q already bound to a different object", name)
		}
		return nil // idempotent identical binding, spec §8 invariant 6
	}
	f.bump()
	return nil
}

func (f *buntFacade) GetName(name string) (core.ObjectID, bool) {
	var id core.ObjectID
	found := false
	f.db.View(func(tx *buntdb.Tx) error {
		s, err := tx.Get(nameKey(name))
		if err != nil {
			return nil
		}
		n, perr := strconv.ParseUint(s, 10, 64)
		if perr != nil {
			return nil
		}
		id, found = core.ObjectID(n), true
		return nil
	})
	return id, found
}

func (f *buntFacade) DropName(name string) error {
	err := f.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(nameKey(name))
		return err
	})
	if err != nil {
		if err == buntdb.ErrNotFound {
			return cos.Wrap(cos.ErrNotFound, "name %q not bound", name)
		}
		return cos.Wrap(cos.ErrRemoteFailure, "drop_name: %v", err)
	}
	f.bump()
	return nil
}

// ClusterMeta reads every sentinel-prefixed key in the backend,
// decoding the instance id per spec §4.5 ("readers strip the first
// character before parsing the remainder as a 64-bit integer").
func (f *buntFacade) ClusterMeta() map[core.InstanceID]core.Tree {
	out := make(map[core.InstanceID]core.Tree)
	prefix := string(core.ClusterMetaSentinel)
	f.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			// exclude "o:"/"n:" prefixes, which never start with the
			// sentinel byte by construction
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			id, err := core.DecodeClusterMetaKey(key)
			if err != nil {
				return true
			}
			t, err := f.decodeTree(value)
			if err != nil {
				return true
			}
			out[id] = t
			return true
		})
	})
	return out
}

func (f *buntFacade) SetInstanceStatus(id core.InstanceID, status core.InstanceStatus) {
	key := core.EncodeClusterMetaKey(id)
	f.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, f.encodeTree(status.ToTree()), nil)
		return err
	})
	f.bump()
}

// Sync is a no-op for the local façade (no peers to reconcile with)
// but still bumps the version and fires watchers, so a deferred
// request parked behind a sync-only get_data gets re-tested.
func (f *buntFacade) Sync() { f.bump() }

// watchList is a tiny observer registry; the façade invokes every
// registered callback synchronously after each mutating op, on
// whichever goroutine made that op. It holds no lock: add and notify
// must not run concurrently, which holds as long as callbacks are
// registered (Server's one Watch call in New) before the façade is
// shared.
type watchList struct {
	cbs []func()
}

func (w *watchList) add(cb func()) (unwatch func()) {
	w.cbs = append(w.cbs, cb)
	idx := len(w.cbs) - 1
	return func() { w.cbs[idx] = nil }
}

func (w *watchList) notify() {
	for _, cb := range w.cbs {
		if cb != nil {
			cb()
		}
	}
}

// newIDAndSignature derives a fresh (ObjectID, Signature) pair from a
// single UUID, avoiding the need for two independent RNG draws.
func newIDAndSignature() (core.ObjectID, core.Signature) {
	u := uuid.New()
	id := binary.BigEndian.Uint64(u[0:8])
	sig := binary.BigEndian.Uint64(u[8:16])
	if id == uint64(core.InvalidObjectID) {
		id = 1
	}
	return core.ObjectID(id), core.Signature(sig)
}
