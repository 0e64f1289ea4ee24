package proc

import (
	"context"
	"fmt"
)

// Kill implements spec section 4.6: set pending bit signum on pid's PCB
// (found by table scan, never by trusting a caller-held pointer), force the
// process back to RUNNABLE if it is currently SLEEPING so it observes the
// signal at its next opportunity, and -- for any signal whose installed
// disposition is SIG_DFL and whose kernel-default action terminates the
// process (every signal except SIGSTOP/SIGCONT in this kernel) -- mark
// Killed so Wait and the scheduler's reconcile path treat it as doomed.
func (k *Kernel) Kill(pid int32, signum int) error {
	if signum < 0 || signum >= SigNum {
		return fmt.Errorf("proc: kill: signum %d out of range", signum)
	}
	p := k.Table.Lookup(pid)
	if p == nil {
		return &NotFoundError{Op: "kill", Key: pid}
	}

	bit := uint32(1) << uint(signum)
	for {
		old := p.PendingSignals.Load()
		if p.PendingSignals.CompareAndSwap(old, old|bit) {
			break
		}
	}

	if p.Handler(signum) == SigDfl && isLethalDefault(signum) {
		p.Killed.Store(true)
	}
	k.forceWake(p)

	k.log(LevelInfo, "kill", map[string]any{"pid": pid, "signum": signum})
	return nil
}

func isLethalDefault(signum int) bool {
	switch signum {
	case SIGSTOP, SIGCONT:
		return false
	default:
		return true
	}
}

// forceWake moves p straight from SLEEPING to RUNNABLE regardless of its
// wait channel, the way a fatal signal interrupts a blocked process in a
// real kernel. It shares wakeup1's bounded spin on the NEG_SLEEPING twin.
func (k *Kernel) forceWake(p *PCB) {
	for {
		st := p.State.Load()
		if st == StateNegSleeping {
			continue
		}
		if st != StateSleeping {
			return
		}
		if p.State.CAS(StateSleeping, StateNegRunnable) {
			p.WaitChan = nil
			if !p.State.CAS(StateNegRunnable, StateRunnable) {
				panicInvariant("forcewake: neg-runnable finalize race")
			}
			return
		}
	}
}

// Signal installs newHandler (SigDfl, SigIgn, or a real handler address) as
// pid's disposition for signum and returns the previous one, per spec
// section 4.6's sigaction-style API.
func (k *Kernel) Signal(pid int32, signum int, newHandler HandlerAddr) (HandlerAddr, error) {
	if signum < 0 || signum >= SigNum {
		return 0, fmt.Errorf("proc: signal: signum %d out of range", signum)
	}
	p := k.Table.Lookup(pid)
	if p == nil {
		return 0, &NotFoundError{Op: "signal", Key: pid}
	}
	return p.setHandler(signum, newHandler), nil
}

// Sigprocmask sets the calling process's signal mask to mask and returns the
// previous one.
func (k *Kernel) Sigprocmask(ctx context.Context, mask uint32) uint32 {
	p := Current(ctx)
	if p == nil {
		panicInvariant("sigprocmask: no current process")
	}
	return p.SignalMask.Swap(mask)
}

// HandleSig is the signal delivery pass described in spec section 4.6,
// invoked at the simulated trap-return boundary (cmd/kernelsim drives it
// explicitly between scheduling steps, the way xv6's trap() calls it on the
// way back to user mode). It only acts when the current trap frame came
// from user mode; delivering into kernel-mode context would corrupt kernel
// execution. Each set-and-unmasked bit, low to high, is consumed exactly
// once and dispatched to its disposition.
func (k *Kernel) HandleSig(ctx context.Context) {
	p := Current(ctx)
	if p == nil || p.Tf == nil || !p.Tf.FromUserMode {
		return
	}
	deliverable := p.PendingSignals.Load() &^ p.SignalMask.Load()
	if deliverable == 0 {
		return
	}
	for signum := 0; signum < SigNum; signum++ {
		bit := uint32(1) << uint(signum)
		if deliverable&bit == 0 {
			continue
		}
		for {
			old := p.PendingSignals.Load()
			if old&bit == 0 {
				break
			}
			if p.PendingSignals.CompareAndSwap(old, old&^bit) {
				break
			}
		}
		k.dispatchSignal(ctx, p, signum)
	}
}

func (k *Kernel) dispatchSignal(ctx context.Context, p *PCB, signum int) {
	switch p.Handler(signum) {
	case SigIgn:
	case SigDfl:
		k.defaultSignalAction(ctx, p, signum)
	default:
		k.deliverToHandler(p, signum)
	}
}

// defaultSignalAction runs the kernel-default disposition for signum.
// SIGSTOP's default suspends the calling process in a busy-yield loop
// until SIGCONT's bit appears pending; per spec section 9's open question
// about which layer clears which bit, this loop only *peeks* at SIGCONT's
// bit rather than consuming it -- the bit is left for a later HandleSig
// pass to dispatch under whatever disposition is installed for it at that
// time (default resume, or a real handler, per spec section 8's scenario
// where an inherited custom SIGCONT handler must still run). SIGCONT's own
// default has nothing to do by itself -- resuming is entirely the
// suspended sibling's responsibility.
func (k *Kernel) defaultSignalAction(ctx context.Context, p *PCB, signum int) {
	switch signum {
	case SIGSTOP:
		k.suspendUntilSigcont(ctx, p)
	case SIGCONT:
	default:
		p.Killed.Store(true)
		k.forceWake(p)
	}
}

// suspendUntilSigcont busy-yields the calling process until SIGCONT is
// observed pending (left uncleared for the next dispatch pass) or the
// process is killed.
func (k *Kernel) suspendUntilSigcont(ctx context.Context, p *PCB) {
	contBit := uint32(1) << uint(SIGCONT)
	for {
		if p.PendingSignals.Load()&contBit != 0 {
			return
		}
		if p.Killed.Load() {
			return
		}
		k.Yield(ctx)
	}
}
