// Package cos provides the error taxonomy and small low-level helpers
// shared by client, wire and server packages.
/*
 * Adapted from the aistore cos package (ErrNotFound, Errs).
 */
package cos

import (
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// Error kinds, per spec §7. Each is a distinct sentinel so callers can
// `errors.Is` against it even after `github.com/pkg/errors` wrapping.
var (
	ErrNotConnected       = errors.New("not_connected")
	ErrIOError            = errors.New("io_error")
	ErrMalformed          = errors.New("malformed")
	ErrBadPayload         = errors.New("bad_payload")
	ErrNotFound           = errors.New("not_found")
	ErrAlreadyExists      = errors.New("already_exists")
	ErrNotReady           = errors.New("not_ready")
	ErrCancelled          = errors.New("cancelled")
	ErrRemoteFailure      = errors.New("remote_failure")
	ErrInvariantViolation = errors.New("invariant_violation")
)

// Wrap attaches context to one of the sentinels above while preserving
// errors.Is/As against it.
func Wrap(sentinel error, format string, args ...any) error {
	return pkgerrors.Wrapf(sentinel, format, args...)
}

// kinds lists every sentinel in the fixed order callers should test
// them against an arbitrary error (spec §7): the first matching
// sentinel, via errors.Is, names the wire "kind".
var kinds = []struct {
	sentinel error
	kind     string
}{
	{ErrNotConnected, "not_connected"},
	{ErrIOError, "io_error"},
	{ErrMalformed, "malformed"},
	{ErrBadPayload, "bad_payload"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotReady, "not_ready"},
	{ErrCancelled, "cancelled"},
	{ErrRemoteFailure, "remote_failure"},
	{ErrInvariantViolation, "invariant_violation"},
}

// KindOf maps an error to its wire-level kind string (spec §7),
// falling back to "remote_failure" for anything not wrapping one of
// the sentinels above.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return "remote_failure"
}

// Errs aggregates multiple errors encountered during a best-effort
// operation (e.g. draining subsystems on Stop), deduping and capping
// like the teacher's cos.Errs.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

// JoinErr returns the joined error, or nil if nothing was added.
func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return pkgerrors.Wrap(errors.Join(e.errs...), fmt.Sprintf("%d error(s) during shutdown", len(e.errs)))
}
