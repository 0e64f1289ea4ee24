package proc

import (
	"context"
	"sync/atomic"

	"github.com/kernelcore/prockernel/proc/collab"
)

// CPU models one simulated processor: its own scheduler kernel thread, the
// PCB it is currently running (if any), and the nestable interrupt-disable
// bookkeeping (pushcli/popcli) described in spec section 5. Fields here are
// touched only by the logical owner of this CPU at any instant -- the
// scheduler loop, or whichever process is currently RUNNING on it -- which
// the Switcher handoff protocol enforces are never concurrent.
type CPU struct {
	ID     int
	Thread *collab.KernelThread

	cur atomic.Pointer[PCB]

	ncli   int
	intena bool
}

// NewCPU allocates CPU id with its own scheduler kernel thread.
func NewCPU(id int) *CPU {
	return &CPU{ID: id, Thread: collab.NewKernelThread(), intena: true}
}

// Proc returns the PCB this CPU is currently running, or nil.
func (c *CPU) Proc() *PCB { return c.cur.Load() }

func (c *CPU) setProc(p *PCB) { c.cur.Store(p) }

// PushCli disables (logically) interrupts on this CPU, remembering the
// prior interrupt-enable state on the first push of a nested sequence.
func (c *CPU) PushCli() {
	if c.ncli == 0 {
		c.intena = true // simulated: this kernel never models a disabled entry state
	}
	c.ncli++
}

// PopCli reverses one PushCli by decrementing the nesting depth; no
// interrupt-enable flag is changed when nesting returns to zero. Calling
// PopCli more times than PushCli is a programming-contract violation.
func (c *CPU) PopCli() {
	if c.ncli == 0 {
		panicInvariant("popcli: ncli underflow")
	}
	c.ncli--
}

// NCli reports the current interrupt-disable nesting depth, used by sched's
// precondition check (ncli == 1).
func (c *CPU) NCli() int { return c.ncli }

type ctxKey int

const (
	ctxKeyCPU ctxKey = iota
	ctxKeyPCB
)

// withCPU returns a context carrying cpu as the active simulated CPU.
func withCPU(ctx context.Context, cpu *CPU) context.Context {
	return context.WithValue(ctx, ctxKeyCPU, cpu)
}

// withProc returns a context carrying p as the currently running process.
func withProc(ctx context.Context, p *PCB) context.Context {
	return context.WithValue(ctx, ctxKeyPCB, p)
}

// CPUFromContext returns the simulated CPU the calling kernel thread is
// running on, or nil if that cannot be determined. A scheduler loop's own
// context carries its CPU directly; a process's kernel-thread context
// carries no fixed CPU (a process may be rescheduled onto a different CPU
// between quanta), so it is resolved dynamically off the PCB, mirroring
// xv6's cpuid()/lapicid() being re-read at every call site rather than
// cached.
func CPUFromContext(ctx context.Context) *CPU {
	if c, ok := ctx.Value(ctxKeyCPU).(*CPU); ok {
		return c
	}
	if p := Current(ctx); p != nil {
		return p.runningOn.Load()
	}
	return nil
}

// Current returns the PCB of the process the calling kernel thread belongs
// to, or nil outside of any process's kernel thread (myproc()).
func Current(ctx context.Context) *PCB {
	p, _ := ctx.Value(ctxKeyPCB).(*PCB)
	return p
}

// CPUID returns the ID of the simulated CPU the calling kernel thread is
// running on, or -1 if none (cpuid()).
func CPUID(ctx context.Context) int {
	if c := CPUFromContext(ctx); c != nil {
		return c.ID
	}
	return -1
}
