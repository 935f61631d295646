package server

import (
	"github.com/google/uuid"

	"github.com/lichnak/vineyard/cmn/debug"
	"github.com/lichnak/vineyard/core"
)

// deferredReq is the tagged sum of deferred-request shapes from
// spec §9 DESIGN NOTES ("Deferred callbacks as closures" →
// "Implement as a tagged sum of deferred-request shapes (one variant
// per deferrable command) with common fields connection_token and
// arrived_at_version; the predicate and reply become methods on the
// variant"). Only get_data(wait=true) and get_name(wait=true) are
// deferrable (spec §4.3).
type deferredKind int

const (
	deferredGetData deferredKind = iota
	deferredGetName
)

type deferredReq struct {
	kind             deferredKind
	connToken        uuid.UUID
	arrivedAtVersion int64

	alive func() bool // connection-open predicate

	// deferredGetData
	ids []core.ObjectID
	// deferredGetName
	name string

	// call continuation: given the current façade state, format and
	// send the reply.
	call func(f MetaFacade)

	// cancel sends the `cancelled` error reply on shutdown (spec §4.6,
	// §7 `cancelled`).
	cancel func()
}

// trigger reports whether the façade's current state satisfies this
// request (spec §3 "Deferred request... trigger test"). Consulting
// the façade directly, rather than a materialized snapshot struct, is
// equivalent here because the façade is only ever mutated from the
// same single-threaded dispatcher loop that calls trigger (spec §5) —
// there is no snapshot older than "the façade right now".
func (d *deferredReq) trigger(f MetaFacade) bool {
	switch d.kind {
	case deferredGetData:
		for _, id := range d.ids {
			if _, ok := f.Get(id); !ok {
				return false
			}
		}
		return true
	case deferredGetName:
		_, ok := f.GetName(d.name)
		return ok
	default:
		return false
	}
}

// deferredQueue holds requests awaiting a metadata condition (spec §3
// "Deferred request", §4.3 "Deferred-request queue"). Mutated from
// the dispatcher's event loop, and by Supervisor.Stop only after the
// loop has exited — no lock.
type deferredQueue struct {
	items []*deferredReq // FIFO
}

func (q *deferredQueue) Push(d *deferredReq) { q.items = append(q.items, d) }

func (q *deferredQueue) Len() int { return len(q.items) }

// ProcessDeferred re-tests every pending request, in FIFO arrival
// order, against the current façade state (spec §4.3 "Ordering").
// A request whose connection has died is removed without a reply
// (collected); one that now triggers is answered and removed (fired).
// A request that is simultaneously alive-false and trigger-true on
// the same pass is dropped silently, per the §4.3 tie-break.
func (q *deferredQueue) ProcessDeferred(f MetaFacade) {
	if len(q.items) == 0 {
		return
	}
	kept := q.items[:0]
	for _, d := range q.items {
		debug.Assert(d.call != nil, "deferred request missing call continuation")
		if !d.alive() {
			continue // collected: connection closed, no reply
		}
		if d.trigger(f) {
			d.call(f) // fired: exactly one reply, spec §8 invariant 5
			continue
		}
		kept = append(kept, d)
	}
	q.items = kept
}

// DrainCancelled empties the queue without testing triggers, sending
// each still-alive entry its `cancelled` reply (spec §4.6 Stop:
// "drains the deferred queue with cancelled replies", §7 `cancelled`).
func (q *deferredQueue) DrainCancelled() {
	for _, d := range q.items {
		if d.alive() && d.cancel != nil {
			d.cancel()
		}
	}
	q.items = nil
}

// RemoveByConnection collects (without reply) every deferred request
// belonging to a connection that has just closed, ahead of the next
// metadata update — satisfying spec §8 invariant 4 ("Deferred
// liveness") within one dispatcher idle tick rather than waiting for
// the next ProcessDeferred call.
func (q *deferredQueue) RemoveByConnection(token uuid.UUID) {
	if len(q.items) == 0 {
		return
	}
	kept := q.items[:0]
	for _, d := range q.items {
		if d.connToken == token {
			continue
		}
		kept = append(kept, d)
	}
	q.items = kept
}
