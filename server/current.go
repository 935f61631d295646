package server

import "sync/atomic"

// current holds a weak, non-owning back-reference to the running
// Server (spec §9 "Self-reference in the server": "subsystems resolve
// the handle to a borrow for the duration of one callback, never
// retain it"). Endpoints call Current() once per accepted connection
// and never stash the result past that call.
var current atomic.Pointer[Server]

// Current returns the running server, or nil if none is up. Recovered
// from original_source's shared_ptr<VineyardServer> self-reference,
// replaced here with a package-level weak handle per the redesign
// note: no reference counting, no extended lifetime.
func Current() *Server { return current.Load() }

func setCurrent(srv *Server) { current.Store(srv) }

func clearCurrent(srv *Server) { current.CompareAndSwap(srv, nil) }
