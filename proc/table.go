package proc

import (
	"sync/atomic"

	"github.com/kernelcore/prockernel/proc/collab"
)

// Table is the fixed-capacity process table (ptable.proc). Its lifetime
// equals the Kernel's: slots are allocated once at construction and only
// ever reused, never grown or freed.
type Table struct {
	slots   []*PCB
	nextpid atomic.Int64
}

// NewTable preallocates n empty (StateUnused) slots.
func NewTable(n int) *Table {
	t := &Table{slots: make([]*PCB, n)}
	for i := range t.slots {
		p := &PCB{idx: i, State: NewAtomicState()}
		p.Thread = collab.NewKernelThread()
		t.slots[i] = p
	}
	t.nextpid.Store(1)
	return t
}

// Len returns the table's fixed capacity.
func (t *Table) Len() int { return len(t.slots) }

// Slot returns the PCB at index i.
func (t *Table) Slot(i int) *PCB { return t.slots[i] }

// AllocPID returns a fresh, monotonically increasing pid via CAS-retry
// (spec section 4.2). PIDs are never reused during the kernel's lifetime.
func (t *Table) AllocPID() int32 {
	for {
		cur := t.nextpid.Load()
		if t.nextpid.CompareAndSwap(cur, cur+1) {
			return int32(cur)
		}
	}
}

// AllocProc scans the table left-to-right for the first StateUnused slot
// and CASes it to StateEmbryo, retrying the scan on CAS failure (another
// CPU may have raced it to the same slot). Returns nil if no free slot was
// found, matching allocproc's "none" result on table exhaustion.
//
// AllocProc does not enter a CPU's logical interrupts-disabled section
// (CPU.PushCli/PopCli), and neither do its callers (Userinit, Fork); the
// per-slot CAS alone decides which caller claims a slot.
func (t *Table) AllocProc() *PCB {
	for {
		found := false
		for _, p := range t.slots {
			if p.State.Load() != StateUnused {
				continue
			}
			if p.State.CAS(StateUnused, StateEmbryo) {
				p.gen.Add(1)
				p.Pid.Store(t.AllocPID())
				p.Killed.Store(false)
				p.PendingSignals.Store(0)
				p.SignalMask.Store(0)
				for i := range p.signalHandlers {
					p.signalHandlers[i] = SigDfl
				}
				p.WaitChan = nil
				p.clearParent()
				return p
			}
			found = true
		}
		if !found {
			return nil
		}
	}
}

// ForEach calls fn for every slot in index order. fn must not block on
// another slot's owning CPU.
func (t *Table) ForEach(fn func(*PCB)) {
	for _, p := range t.slots {
		fn(p)
	}
}

// Lookup returns the PCB currently holding pid, or nil. A pid is only ever
// held by a non-UNUSED slot (spec section 3 invariant: pid > 0 iff state !=
// UNUSED), so a slot reused for a different pid after a reap is never
// mistaken for the one being searched for.
func (t *Table) Lookup(pid int32) *PCB {
	for _, p := range t.slots {
		if p.State.Load() == StateUnused {
			continue
		}
		if p.Pid.Load() == pid {
			return p
		}
	}
	return nil
}
