package proc

import "sync/atomic"

// State is the discriminated process-state enum from the data model. It is
// the synchronization substrate for the whole package: every transition
// between states is a single compare-and-swap on an [AtomicState] word,
// which is the linearization point for that transition (see package docs).
//
// State Machine:
//
//	UNUSED   --(allocproc CAS)-->   EMBRYO
//	EMBRYO   --(fork/userinit CAS)--> RUNNABLE
//	RUNNABLE --(scheduler CAS)-->   RUNNING
//	RUNNING  --(yield)-->           NEG_RUNNABLE  --(scheduler reconcile)--> RUNNABLE
//	RUNNING  --(sleep)-->           NEG_SLEEPING  --(scheduler reconcile)--> SLEEPING
//	SLEEPING --(wakeup)-->          NEG_RUNNABLE  --(wakeup finalize)-->     RUNNABLE
//	RUNNING  --(exit)-->            NEG_ZOMBIE    --(scheduler reconcile)--> ZOMBIE
//	ZOMBIE   --(wait CAS)-->        UNUSED
//
// Every stable state except EMBRYO, RUNNING, and UNUSED has a transient
// "negative twin" that marks an in-flight transition only the owning CPU's
// scheduler may finalize (see [State.Twin]).
type State int32

const (
	// StateUnused marks a free process-table slot.
	StateUnused State = iota
	// StateNegUnused is reserved: a slot being torn down. It is never
	// produced by this package but is part of the discriminant for
	// completeness with the data model in spec section 3.
	StateNegUnused
	// StateEmbryo marks a slot claimed by allocproc but not yet runnable.
	StateEmbryo
	// StateRunnable marks a process eligible to be scheduled.
	StateRunnable
	// StateNegRunnable means "wants to be RUNNABLE but is currently
	// running on a CPU", or "was just released from SLEEPING/exit-parking
	// and awaits scheduler finalization to RUNNABLE".
	StateNegRunnable
	// StateRunning marks the process currently executing on a CPU.
	StateRunning
	// StateSleeping marks a process parked on a wait channel.
	StateSleeping
	// StateNegSleeping means "about to sleep; the owning scheduler has not
	// yet observed and finalized it".
	StateNegSleeping
	// StateZombie marks an exited process awaiting reaping by its parent.
	StateZombie
	// StateNegZombie means "about to become ZOMBIE; the owning scheduler
	// has not yet observed and finalized it".
	StateNegZombie
)

// String renders the state using its stable name (twins render with a
// "neg-" prefix), useful for logging and procdump.
func (s State) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateNegUnused:
		return "neg-UNUSED"
	case StateEmbryo:
		return "EMBRYO"
	case StateRunnable:
		return "RUNNABLE"
	case StateNegRunnable:
		return "neg-RUNNABLE"
	case StateRunning:
		return "RUNNING"
	case StateSleeping:
		return "SLEEPING"
	case StateNegSleeping:
		return "neg-SLEEPING"
	case StateZombie:
		return "ZOMBIE"
	case StateNegZombie:
		return "neg-ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// Twin returns the transient negative-twin state a process CASes into when
// it declares intent to leave RUNNING, and the stable state the twin
// reverses to when finalized. ok is false for states with no twin (EMBRYO,
// UNUSED, RUNNING itself has the twins below it, not of it).
func (s State) Twin() (twin State, ok bool) {
	switch s {
	case StateRunnable:
		return StateNegRunnable, true
	case StateSleeping:
		return StateNegSleeping, true
	case StateZombie:
		return StateNegZombie, true
	default:
		return StateUnused, false
	}
}

// Stable returns the stable state a negative twin finalizes to. ok is false
// if s is not a twin state.
func (s State) Stable() (stable State, ok bool) {
	switch s {
	case StateNegRunnable:
		return StateRunnable, true
	case StateNegSleeping:
		return StateSleeping, true
	case StateNegZombie:
		return StateZombie, true
	default:
		return StateUnused, false
	}
}

// AtomicState is a single-word atomic compare-and-swap over [State]. It is
// the only synchronization primitive the core uses to mediate access to a
// PCB's lifecycle; no table-wide lock is taken for state transitions.
type AtomicState struct {
	v atomic.Int32
}

// NewAtomicState returns an AtomicState initialized to StateUnused.
func NewAtomicState() *AtomicState {
	a := &AtomicState{}
	a.v.Store(int32(StateUnused))
	return a
}

// Load atomically reads the current state.
func (a *AtomicState) Load() State {
	return State(a.v.Load())
}

// Store unconditionally sets the state. It is used only for the few writes
// that are not checked transitions: reverting a just-claimed EMBRYO slot to
// StateUnused when Userinit or Fork fails to allocate, and the scheduler's
// forced RUNNABLE for a process killed while about to sleep. Reaping uses
// CAS (ZOMBIE -> UNUSED), not Store.
func (a *AtomicState) Store(s State) {
	a.v.Store(int32(s))
}

// CAS attempts the single-word compare-and-swap `cas(&p.state, expected,
// desired)` described throughout spec section 4. It is the linearization
// point for every state transition in the package.
func (a *AtomicState) CAS(expected, desired State) bool {
	return a.v.CompareAndSwap(int32(expected), int32(desired))
}
