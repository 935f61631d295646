package core

import (
	"sync"

	"github.com/lichnak/vineyard/cmn/cos"
)

// BulkStore is the named external collaborator spec §1 calls out as
// out of scope ("the bulk memory allocator and its page/segment
// management"). This module only needs its capability surface:
// reserve/release capacity and report usage for instance_status.
//
// MemStore below is a minimal in-process reference implementation —
// not a real page/segment allocator — sufficient to exercise the
// dispatcher and pass the spec's end-to-end scenarios.
type BulkStore interface {
	Reserve(nbytes int64) error
	Release(nbytes int64)
	Usage() int64
	Limit() int64
}

// MemStore is a capacity-accounting stand-in for the real allocator.
type MemStore struct {
	mu    sync.Mutex
	limit int64
	used  int64
}

func NewMemStore(limit int64) *MemStore { return &MemStore{limit: limit} }

func (m *MemStore) Reserve(nbytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && m.used+nbytes > m.limit {
		return cos.Wrap(cos.ErrRemoteFailure, "bulk store: out of capacity (used=%d, want=%d, limit=%d)", m.used, nbytes, m.limit)
	}
	m.used += nbytes
	return nil
}

func (m *MemStore) Release(nbytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= nbytes
	if m.used < 0 {
		m.used = 0
	}
}

func (m *MemStore) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func (m *MemStore) Limit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

// StreamStore is the named external collaborator for staged
// producer/consumer traffic (spec §1 "the stream-store for staged
// producer/consumer traffic"). Out of scope beyond this interface;
// no implementation is required for the orchestration core, but a
// trivial one is provided so the server can be wired up end-to-end
// in tests.
type StreamStore interface {
	Drop(id ObjectID)
}

type NullStreamStore struct{}

func (NullStreamStore) Drop(ObjectID) {}
