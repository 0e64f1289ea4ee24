package proc

import (
	"errors"
	"fmt"
)

// ResourceError reports exhaustion of a bounded kernel resource: a full
// process table, a failed kernel-stack or page allocation, or a failed
// address-space copy. Callers surface it as -1/failure after releasing any
// partially acquired resources; it is always recoverable.
type ResourceError struct {
	Op    string
	Cause error
}

func (e *ResourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("proc: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("proc: %s: resource exhausted", e.Op)
}

func (e *ResourceError) Unwrap() error { return e.Cause }

// NotFoundError reports a lookup that found nothing, such as kill or signal
// against an unknown pid. Wait with no children returns [ErrNoChildren]
// instead.
type NotFoundError struct {
	Op  string
	Key any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proc: %s: %v not found", e.Op, e.Key)
}

// ErrNoChildren is returned by Wait when the calling process has no
// children to reap.
var ErrNoChildren = errors.New("proc: wait: no children")

// ErrKilledWhileWaiting is returned by Wait when the caller was killed
// before any child exited.
var ErrKilledWhileWaiting = errors.New("proc: wait: killed while waiting")

// Invariant reports a programming-contract violation: a breach of one of
// the invariants in spec section 3/5 (e.g. "sched running", "sched locks",
// "freeproc not zombie", "sleep without lk", "init exiting", an unknown APIC
// id). These are bug-detectors, not recoverable conditions -- constructing
// one and calling Panic aborts the process, mirroring xv6's panic().
type Invariant struct {
	Msg string
}

func (e *Invariant) Error() string { return "proc: invariant violated: " + e.Msg }

// Panic aborts the current goroutine the way xv6's panic() halts the
// kernel. It exists as a named call site (rather than a bare panic(e)) so
// invariant breaches are grep-able and distinguishable in stack traces from
// ordinary Go panics.
func (e *Invariant) Panic() {
	panic(e)
}

// panicInvariant is a convenience constructor+panic used at the call sites
// named in spec section 7.
func panicInvariant(msg string) {
	(&Invariant{Msg: msg}).Panic()
}
