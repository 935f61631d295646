package cmn

import (
	"sync/atomic"
	"time"
)

// readMostly is an atomically readable snapshot of config-derived
// values, adapted from the teacher's cmn.Rom / readMostly. It holds
// one value, the control-plane operation timeout, which defaults to
// one second and is replaced by Set. No other package in this module
// calls Set or CplaneOperation.
type readMostly struct {
	cplaneTimeout atomic.Int64 // time.Duration, nanoseconds
}

var Rom readMostly

func init() {
	Rom.cplaneTimeout.Store(int64(time.Second))
}

func (r *readMostly) Set(cplaneTimeout time.Duration) {
	r.cplaneTimeout.Store(int64(cplaneTimeout))
}

func (r *readMostly) CplaneOperation() time.Duration {
	return time.Duration(r.cplaneTimeout.Load())
}
