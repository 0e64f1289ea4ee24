package proc

import (
	"sync/atomic"

	"github.com/kernelcore/prockernel/proc/collab"
)

// Chan is the opaque rendezvous key sleep/wakeup compare by identity (spec
// glossary: "Channel"). Callers should always pass a pointer-typed value
// (e.g. &someStruct{}) so equality is address identity, never structural
// equality of unrelated zero values.
type Chan = any

// HandlerAddr is an opaque "user-space function address", the disposition
// value stored per signal in signalHandlers. The two distinguished values
// below match SIG_DFL/SIG_IGN from spec section 4.6; any other value is a
// real installed handler address.
type HandlerAddr uint64

const (
	// SigDfl requests the kernel-default action for a signal.
	SigDfl HandlerAddr = 0
	// SigIgn discards the signal with no further action.
	SigIgn HandlerAddr = 1
)

// PCB is one process-table slot. Per spec section 5, every field other
// than State, PendingSignals, Killed, WaitChan, and Preempt (set by Tick)
// is touched only by the CPU
// currently running (or about to run) this process -- callers outside the
// owning goroutine must not read or write them directly except through the
// package's documented entry points.
type PCB struct { //nolint:govet
	idx int
	gen atomic.Uint64

	Pid   atomic.Int32
	State *AtomicState
	// Killed requests the process die at its next user-mode return.
	Killed atomic.Bool
	// Preempt is set by Tick when the simulated timer interrupt fires while
	// this PCB is the one RUNNING on its CPU (spec section 4.3's "timer
	// interrupt trap-return path"). Process code polls and clears it via
	// [Kernel.CheckPreempt], the cooperative-model analogue of the trap
	// handler invoking yield() on the way back to user mode.
	Preempt atomic.Bool

	// parentIdx/parentGen resolve the weak parent reference described in
	// spec section 9 ("Weak parent pointer"): a (slot index, generation)
	// pair rather than a strong pointer, so a reaped parent slot being
	// reused for an unrelated process is detectable instead of silently
	// followed.
	parentIdx  atomic.Int32
	parentGen  atomic.Uint64
	hasParent  atomic.Bool

	Kstack    []byte
	Context   *collab.Context
	Thread    *collab.KernelThread
	Tf        *collab.TrapFrame
	AddrSpace collab.AddressSpace
	Sz        uint64

	// WaitChan is nonzero (non-nil) iff State is SLEEPING or NEG_SLEEPING.
	WaitChan Chan

	Cwd   collab.Inode
	OFile [NOFILE]collab.File
	Name  string

	PendingSignals atomic.Uint32
	SignalMask     atomic.Uint32
	signalHandlers [SigNum]HandlerAddr

	// UserTFBackup snapshots the trap frame interrupted by a signal
	// delivery, restored by sigret.
	UserTFBackup *collab.TrapFrame
	// SMBackup snapshots the signal mask while delivering, restored by
	// sigret.
	SMBackup uint32

	// UserMem is a small simulated user-stack arena used only so the
	// trampoline's esp/eip bookkeeping (spec section 4.7) has real bytes
	// to write, matching the byte-for-byte contract described there.
	UserMem []byte

	// runningOn is set by the scheduler immediately before switching into
	// this process and read back by CPUFromContext; see cpu.go.
	runningOn atomic.Pointer[CPU]
}

// Index returns the PCB's fixed slot index in the table.
func (p *PCB) Index() int { return p.idx }

// Generation returns the slot's current generation counter, bumped every
// time the slot is (re)claimed by allocproc.
func (p *PCB) Generation() uint64 { return p.gen.Load() }

// ParentRef resolves the weak parent pointer. ok is false if there is no
// parent (init, or the field was never set).
func (p *PCB) ParentRef() (idx int, gen uint64, ok bool) {
	if !p.hasParent.Load() {
		return 0, 0, false
	}
	return int(p.parentIdx.Load()), p.parentGen.Load(), true
}

func (p *PCB) setParent(idx int, gen uint64) {
	p.parentIdx.Store(int32(idx))
	p.parentGen.Store(gen)
	p.hasParent.Store(true)
}

func (p *PCB) clearParent() {
	p.hasParent.Store(false)
}

// Handler returns the disposition installed for signum.
func (p *PCB) Handler(signum int) HandlerAddr {
	return p.signalHandlers[signum]
}

// setHandler installs addr for signum and returns the previous value.
func (p *PCB) setHandler(signum int, addr HandlerAddr) HandlerAddr {
	prev := p.signalHandlers[signum]
	p.signalHandlers[signum] = addr
	return prev
}
