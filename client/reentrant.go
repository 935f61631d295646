package client

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// reentrantMutex lets the same goroutine Lock more than once without
// deadlocking. Go has no native recursive mutex; this is the
// conventional goroutine-id-based workaround, used here because
// Disconnect must be safe to call from within a callback that is
// itself invoked while a request/reply call on the same session is
// in flight (see SPEC_FULL.md, SUPPLEMENTED FEATURES #4, grounded on
// the recursive_mutex guarding ClientBase::Disconnect in
// original_source/src/client/client_base.cc).
type reentrantMutex struct {
	mu    sync.Mutex // the real lock
	meta  sync.Mutex // guards owner/depth below
	owner int64
	depth int
}

func (m *reentrantMutex) Lock() {
	id := goroutineID()

	m.meta.Lock()
	if m.depth > 0 && m.owner == id {
		m.depth++
		m.meta.Unlock()
		return
	}
	m.meta.Unlock()

	m.mu.Lock()
	m.meta.Lock()
	m.owner = id
	m.depth = 1
	m.meta.Unlock()
}

func (m *reentrantMutex) Unlock() {
	m.meta.Lock()
	m.depth--
	release := m.depth == 0
	if release {
		m.owner = 0
	}
	m.meta.Unlock()
	if release {
		m.mu.Unlock()
	}
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return -1
	}
	id, _ := strconv.ParseInt(fields[0], 10, 64)
	return id
}
