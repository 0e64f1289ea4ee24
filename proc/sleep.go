package proc

import "context"

// Sleep implements the channel rendezvous from spec section 4.5:
//
//  1. Disable interrupts.
//  2. Record chan in the PCB.
//  3. CAS RUNNING -> NEG_SLEEPING.
//  4. Call sched().
//  5. On wake, re-enable interrupts.
//
// (Step 4 of the spec's enumeration -- releasing a caller-supplied lock --
// has no analogue here: this package has no legacy ptable lock, and callers
// needing mutual exclusion around a condition use their own lock and must
// release it themselves before calling Sleep, the way a caller of
// sync.Cond.Wait does.)
func (k *Kernel) Sleep(ctx context.Context, ch Chan) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("sleep: no current process")
	}
	cpu := CPUFromContext(ctx)
	cpu.PushCli()
	p.WaitChan = ch
	if !p.State.CAS(StateRunning, StateNegSleeping) {
		panicInvariant("sleep: process not running")
	}
	k.sched(ctx, p)
	cpu.PopCli()
}

// Wakeup wakes every process sleeping on ch, bracketing wakeup1 with the
// (logical) interrupt disable/enable pair described in spec section 4.5.
func (k *Kernel) Wakeup(ctx context.Context, ch Chan) {
	cpu := CPUFromContext(ctx)
	if cpu != nil {
		cpu.PushCli()
		defer cpu.PopCli()
	}
	k.wakeup1(ch)
}

// wakeup1 is the no-lost-wakeup core of the rendezvous, per spec section
// 4.5 and the law in spec section 8: for every PCB whose chan matches and
// whose state is SLEEPING or NEG_SLEEPING, spin while it is NEG_SLEEPING
// (bounded, because the owning CPU's scheduler is actively finalizing it),
// then CAS SLEEPING -> NEG_RUNNABLE, clear chan, and CAS NEG_RUNNABLE ->
// RUNNABLE.
func (k *Kernel) wakeup1(ch Chan) {
	if ch == nil {
		return
	}
	k.Table.ForEach(func(p *PCB) {
		if p.WaitChan != ch {
			return
		}
		for {
			st := p.State.Load()
			if st == StateNegSleeping {
				continue // bounded spin: the owner CPU is finalizing this twin
			}
			if st != StateSleeping {
				return // already woken by a racing Wakeup, or no longer sleeping
			}
			if p.State.CAS(StateSleeping, StateNegRunnable) {
				p.WaitChan = nil
				if !p.State.CAS(StateNegRunnable, StateRunnable) {
					panicInvariant("wakeup1: neg-runnable finalize race")
				}
				return
			}
		}
	})
}
