package proc

import (
	"context"
	"runtime"
	"time"
)

// scheduler is the endless per-CPU loop described in spec section 4.3: scan
// the table, atomically claim a RUNNABLE slot, context-switch into it, and
// on return reconcile the slot's transient state. It runs until ctx is
// canceled (Kernel.Shutdown).
func (k *Kernel) scheduler(ctx context.Context, cpu *CPU) {
	ctx = withCPU(ctx, cpu)
	for {
		if ctx.Err() != nil {
			return
		}

		cpu.PushCli()
		ranAny := false
		for i := 0; i < k.Table.Len(); i++ {
			p := k.Table.Slot(i)
			if !p.State.CAS(StateRunnable, StateRunning) {
				continue
			}
			ranAny = true

			cpu.setProc(p)
			p.runningOn.Store(cpu)
			if p.AddrSpace != nil {
				p.AddrSpace.Switch()
			}

			k.log(LevelDebug, "scheduler: switching in", map[string]any{
				"cpu": cpu.ID, "pid": p.Pid.Load(),
			})
			k.switcher.Switch(ctx, cpu.Thread, p.Thread)
			if ctx.Err() != nil {
				// Shutdown: p may still be RUNNING here and will never
				// switch back, so there is nothing to reconcile.
				return
			}

			cpu.setProc(nil)
			p.runningOn.Store(nil)
			k.reconcile(cpu, p)
		}
		cpu.PopCli()

		if ctx.Err() != nil {
			return
		}
		if !ranAny {
			// Nothing runnable this pass. Briefly yield the host goroutine
			// scheduler and allow the tick driver's timer interrupt
			// simulation a chance to run, per spec section 4.3's "a CPU may
			// loop with interrupts enabled momentarily between scans".
			runtime.Gosched()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// reconcile finalizes the transient twin state left behind when swtch
// returns control to the scheduler, per spec section 4.1.
func (k *Kernel) reconcile(cpu *CPU, p *PCB) {
	switch p.State.Load() {
	case StateNegRunnable:
		if !p.State.CAS(StateNegRunnable, StateRunnable) {
			panicInvariant("reconcile: neg-runnable finalize race")
		}
	case StateNegSleeping:
		if p.Killed.Load() {
			// Killed while about to sleep: skip SLEEPING entirely and
			// force the process straight back to RUNNABLE so it re-enters
			// the kernel and observes Killed at its next user-mode
			// return, per spec section 4.1. Killed itself is NOT cleared
			// here -- it still needs to be observed later -- only the
			// sleep is preempted.
			p.WaitChan = nil
			p.State.Store(StateRunnable)
			k.log(LevelDebug, "reconcile: killed before sleep finalized, forcing runnable", map[string]any{
				"pid": p.Pid.Load(),
			})
			return
		}
		if !p.State.CAS(StateNegSleeping, StateSleeping) {
			panicInvariant("reconcile: neg-sleeping finalize race")
		}
	case StateNegZombie:
		if p.State.CAS(StateNegZombie, StateZombie) {
			k.wakeZombieParent(p)
		} else {
			panicInvariant("reconcile: neg-zombie finalize race")
		}
	case StateRunning:
		panicInvariant("reconcile: process still running after swtch returned")
	default:
		// RUNNABLE (process re-queued itself with no twin, shouldn't
		// happen) or UNUSED/EMBRYO/ZOMBIE are not reachable here.
	}
}

// sched is the reverse direction from a process's kernel thread back to its
// CPU's scheduler, per spec section 4.3. Preconditions: interrupts
// disabled with nesting depth exactly 1, and state != RUNNING -- both
// checked here as invariant violations, matching "sched running"/"sched
// locks" in spec section 7.
func (k *Kernel) sched(ctx context.Context, p *PCB) {
	cpu := CPUFromContext(ctx)
	if cpu == nil {
		panicInvariant("sched: no current cpu")
	}
	if cpu.NCli() != 1 {
		panicInvariant("sched locks")
	}
	if p.State.Load() == StateRunning {
		panicInvariant("sched running")
	}
	intena := cpu.intena
	k.switcher.Switch(ctx, p.Thread, cpu.Thread)
	if ctx.Err() != nil {
		// Canceled while switched out: nothing will ever switch back into
		// p, so unwind its kernel thread instead of resuming it.
		runtime.Goexit()
	}
	cpu.intena = intena
}

// Yield voluntarily gives up the CPU: CAS RUNNING -> NEG_RUNNABLE, then
// sched(). It is the operation the timer-interrupt trap-return path invokes
// for preemption (spec section 4.3).
func (k *Kernel) Yield(ctx context.Context) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("yield: no current process")
	}
	cpu := CPUFromContext(ctx)
	cpu.PushCli()
	if !p.State.CAS(StateRunning, StateNegRunnable) {
		panicInvariant("yield: process not running")
	}
	k.sched(ctx, p)
	cpu.PopCli()
}

// Tick simulates one timer interrupt: every PCB currently RUNNING on any CPU
// has its Preempt flag set, the way a real timer interrupt marks the
// interrupted process for preemption on its way back through the trap
// handler. This package has no trap handler of its own to force that
// return, so process code is expected to poll the flag via
// [Kernel.CheckPreempt] at its own convenient points (cmd/kernelsim's
// sleepTicks does this after every simulated tick); see spec section 4.3.
func (k *Kernel) Tick(ctx context.Context) {
	for _, cpu := range k.CPUs {
		if p := cpu.Proc(); p != nil {
			p.Preempt.Store(true)
		}
	}
}

// CheckPreempt consults and clears the calling process's Preempt flag and,
// if it was set, calls Yield -- the cooperative-model stand-in for the
// timer-interrupt trap-return path invoking yield() (spec section 4.3). A
// no-op if no preemption was requested since the last check.
func (k *Kernel) CheckPreempt(ctx context.Context) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("checkpreempt: no current process")
	}
	if p.Preempt.CompareAndSwap(true, false) {
		k.Yield(ctx)
	}
}

// tickDriver paces simulated timer interrupts at the configured interval
// until ctx is canceled. It exists purely as a clock source; it does not by
// itself force any process to yield; see Tick's doc comment. The actual
// pacing is delegated to [sleepInterval] (proc/timer.go), which is built on
// golang.org/x/sys/unix.Nanosleep the way the teacher's own poller files
// reach for golang.org/x/sys/unix for platform timing primitives rather
// than the stdlib's higher-level time.Ticker.
func (k *Kernel) tickDriver(ctx context.Context) {
	for {
		if !sleepInterval(ctx, k.tickInterval) {
			return
		}
		k.Tick(ctx)
	}
}
