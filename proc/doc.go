// Package proc implements the process lifecycle, scheduling, and
// signal-delivery core of a small multiprocessor teaching kernel.
//
// # Architecture
//
// The core is built around a [Kernel], which owns a fixed-capacity process
// [Table] and one [CPU] per simulated processor. Each [PCB] carries a single
// atomic [State] word; all transitions between states are expressed as a
// single compare-and-swap on that word (see [AtomicState.CAS]), which is the
// linearization point for the whole design. A process that wants to leave
// RUNNING first CASes to the matching NEG_* twin state, then calls
// Kernel.sched to hand control back to its CPU's scheduler loop; the
// scheduler alone finalizes the twin back to its stable form once it has
// observed the process leave. This replaces a global table lock with
// per-slot atomic handoff.
//
// Sleep and wakeup rendezvous on an opaque [Chan] value; fork, exit, and
// wait coordinate parent/child lifecycle over the same state word; and the
// signal subsystem dispatches a per-process pending-signal bitset at the
// boundary of returning to simulated user mode, optionally rewriting the
// trap frame to trampoline through an installed handler.
//
// # Collaborators
//
// Address-space management, physical page allocation, the file/inode layer,
// and the raw context switch are all out of scope for this package; they
// are consumed only through the interfaces in
// [github.com/kernelcore/prockernel/proc/collab]. Interrupt-disable
// bookkeeping is modeled directly by [CPU]. Default in-memory
// implementations are provided so the core can run end to end in tests and
// in cmd/kernelsim, but production embedders are expected to supply their
// own.
package proc
