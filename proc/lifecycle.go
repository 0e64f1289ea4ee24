package proc

import (
	"context"

	"github.com/kernelcore/prockernel/proc/collab"
)

// EntryFunc is the body of a process's kernel thread: the code that runs
// once the process is first scheduled. It stands in for forkret() falling
// through into user mode -- everything the simulated process "does" for
// its whole life runs inside this function, which blocks (inside Yield,
// Sleep, or Wait) whenever the process gives up its CPU. If it returns
// without calling Exit while ctx is still live, Exit is called on its
// behalf; if it returns because ctx was canceled (kernel shutdown), the
// kernel thread simply ends.
type EntryFunc func(ctx context.Context)

// spawnThread starts the goroutine backing a newly allocated PCB's kernel
// thread. It waits to be scheduled for the first time (the analogue of
// forkret's first entry), runs the one-time late-initialization hook
// exactly once kernel-wide, then runs entry.
func (k *Kernel) spawnThread(parentCtx context.Context, p *PCB, entry EntryFunc) {
	go func() {
		if !p.Thread.Await(parentCtx) {
			return
		}
		k.forkretOnce.Do(func() {
			k.log(LevelInfo, "forkret: one-time late initialization", nil)
		})
		pctx := withProc(parentCtx, p)
		entry(pctx)
		if pctx.Err() == nil && p.State.Load() == StateRunning {
			k.Exit(pctx)
		}
	}()
}

// Userinit bootstraps the very first process (init). It is the only way a
// PCB reaches RUNNABLE without going through Fork, and the resulting
// process is recorded as Kernel.Initproc -- it must never exit (spec
// section 3 invariant).
func (k *Kernel) Userinit(ctx context.Context, addrSpace collab.AddressSpace, entry EntryFunc) (*PCB, error) {
	p := k.Table.AllocProc()
	if p == nil {
		return nil, &ResourceError{Op: "userinit", Cause: errNoFreeSlot}
	}
	kstack, err := k.pages.Alloc()
	if err != nil {
		p.State.Store(StateUnused)
		return nil, &ResourceError{Op: "userinit", Cause: err}
	}
	p.Kstack = kstack
	p.AddrSpace = addrSpace
	p.Name = "init"
	p.Tf = &collab.TrapFrame{FromUserMode: true}
	p.UserMem = make([]byte, defaultUserMemSize)

	k.spawnThread(ctx, p, entry)

	if !p.State.CAS(StateEmbryo, StateRunnable) {
		panicInvariant("userinit: embryo->runnable race")
	}
	k.initproc.Store(p)
	return p, nil
}

const defaultUserMemSize = 4096

var errNoFreeSlot = &NotFoundError{Op: "allocproc", Key: "free slot"}

// Fork duplicates the caller's address space and file table into a new
// PCB, per spec section 4.4. Returns the child's pid to the parent; the
// value "0 to the child" is expressed via the cloned trap frame's return
// register (Tf.Regs[0]), since the child has no Fork call of its own to
// observe a return value from in this simulation. On any failure, all
// partially acquired resources are released and (-1, err) is returned.
func (k *Kernel) Fork(ctx context.Context, entry EntryFunc) (int32, error) {
	parent := Current(ctx)
	if parent == nil {
		panicInvariant("fork: no current process")
	}

	child := k.Table.AllocProc()
	if child == nil {
		return -1, &ResourceError{Op: "fork", Cause: errNoFreeSlot}
	}

	kstack, err := k.pages.Alloc()
	if err != nil {
		child.State.Store(StateUnused)
		return -1, &ResourceError{Op: "fork", Cause: err}
	}
	child.Kstack = kstack

	addrSpace, err := parent.AddrSpace.Copy()
	if err != nil {
		k.pages.Free(child.Kstack)
		child.Kstack = nil
		child.State.Store(StateUnused)
		return -1, &ResourceError{Op: "fork", Cause: err}
	}
	child.AddrSpace = addrSpace
	child.Sz = parent.Sz

	child.SignalMask.Store(parent.SignalMask.Load())
	for i := range child.signalHandlers {
		child.signalHandlers[i] = parent.signalHandlers[i]
	}

	child.Tf = parent.Tf.Clone()
	if child.Tf != nil {
		child.Tf.Regs[0] = 0
	}

	for i, f := range parent.OFile {
		if f != nil {
			child.OFile[i] = f.Dup()
		}
	}
	if parent.Cwd != nil {
		child.Cwd = parent.Cwd.Dup()
	}
	child.Name = parent.Name

	child.setParent(parent.idx, parent.gen.Load())

	child.UserMem = make([]byte, len(parent.UserMem))
	copy(child.UserMem, parent.UserMem)

	k.spawnThread(ctx, child, entry)

	if !child.State.CAS(StateEmbryo, StateRunnable) {
		panicInvariant("fork: embryo->runnable race")
	}

	k.log(LevelInfo, "fork", map[string]any{
		"parent": parent.Pid.Load(), "child": child.Pid.Load(),
	})
	return child.Pid.Load(), nil
}

// Exit implements spec section 4.4: close every open file, release cwd,
// CAS RUNNING -> NEG_ZOMBIE with interrupts disabled, reassign every child
// to init (waking init once if any reassigned child is already a zombie),
// then sched() -- it never returns. The scheduler performs the final
// NEG_ZOMBIE -> ZOMBIE transition and wakes the parent, so no wakeup can be
// missed (spec section 4.1).
func (k *Kernel) Exit(ctx context.Context) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("exit: no current process")
	}
	if p == k.initproc.Load() {
		panicInvariant("init exiting")
	}
	cpu := CPUFromContext(ctx)

	for i, f := range p.OFile {
		if f != nil {
			f.Close()
			p.OFile[i] = nil
		}
	}
	if p.Cwd != nil {
		p.Cwd.Put()
		p.Cwd = nil
	}

	cpu.PushCli()
	if !p.State.CAS(StateRunning, StateNegZombie) {
		panicInvariant("exit: process not running")
	}

	init := k.initproc.Load()
	myIdx, myGen := p.idx, p.gen.Load()
	wakeInit := false
	k.Table.ForEach(func(c *PCB) {
		idx, gen, ok := c.ParentRef()
		if !ok || idx != myIdx || gen != myGen {
			return
		}
		if init != nil {
			c.setParent(init.idx, init.gen.Load())
			if c.State.Load() == StateZombie {
				wakeInit = true
			}
		}
	})
	if wakeInit {
		k.wakeup1(init)
	}

	k.log(LevelInfo, "exit", map[string]any{"pid": p.Pid.Load()})
	k.sched(ctx, p)
	panicInvariant("exit: sched returned")
}

// Wait implements spec section 4.4: declare intent to sleep (CAS RUNNING ->
// NEG_SLEEPING, chan = self) before scanning for a zombie child, so a
// concurrently exiting child either observes the parent already sleeping
// or is observed by the parent's own scan -- never both missed. Returns
// the reaped child's pid, or -1 with ErrNoChildren/ErrKilledWhileWaiting.
func (k *Kernel) Wait(ctx context.Context) (int32, error) {
	p := Current(ctx)
	if p == nil {
		panicInvariant("wait: no current process")
	}
	cpu := CPUFromContext(ctx)

	for {
		cpu.PushCli()
		p.WaitChan = p
		if !p.State.CAS(StateRunning, StateNegSleeping) {
			panicInvariant("wait: process not running")
		}

		haveChildren := false
		var reaped int32 = -1
		myIdx, myGen := p.idx, p.gen.Load()
		k.Table.ForEach(func(c *PCB) {
			if reaped != -1 {
				return
			}
			idx, gen, ok := c.ParentRef()
			if !ok || idx != myIdx || gen != myGen {
				return
			}
			haveChildren = true
			if c.State.CAS(StateZombie, StateUnused) {
				reaped = c.Pid.Load()
				k.freeChild(c)
			}
		})

		if reaped != -1 {
			p.WaitChan = nil
			if !p.State.CAS(StateNegSleeping, StateRunning) {
				panicInvariant("wait: restore-running race")
			}
			cpu.PopCli()
			return reaped, nil
		}

		if !haveChildren {
			p.WaitChan = nil
			if !p.State.CAS(StateNegSleeping, StateRunning) {
				panicInvariant("wait: restore-running race")
			}
			cpu.PopCli()
			return -1, ErrNoChildren
		}
		if p.Killed.Load() {
			p.WaitChan = nil
			if !p.State.CAS(StateNegSleeping, StateRunning) {
				panicInvariant("wait: restore-running race")
			}
			cpu.PopCli()
			return -1, ErrKilledWhileWaiting
		}

		k.sched(ctx, p)
		cpu.PopCli()
	}
}

// wakeZombieParent wakes child's parent (if resolvable) on the parent's own
// wait channel, which spec section 4.4's Wait sets to itself. Used by the
// scheduler's NEG_ZOMBIE -> ZOMBIE finalization; Exit's already-zombie-child
// reparenting case wakes init directly.
func (k *Kernel) wakeZombieParent(child *PCB) {
	idx, gen, ok := child.ParentRef()
	if !ok {
		return
	}
	parent := k.Table.Slot(idx)
	if parent.gen.Load() != gen {
		return
	}
	k.wakeup1(parent)
}

// freeChild releases a reaped zombie's resources and clears its identity,
// restoring the slot-UNUSED invariant from spec section 3
// (pid == 0, kstack == nil, pgdir == nil).
func (k *Kernel) freeChild(c *PCB) {
	if c.Kstack != nil {
		k.pages.Free(c.Kstack)
		c.Kstack = nil
	}
	if c.AddrSpace != nil {
		c.AddrSpace.Free()
		c.AddrSpace = nil
	}
	c.Pid.Store(0)
	c.Name = ""
	c.Context = nil
	c.Tf = nil
	c.UserTFBackup = nil
	c.UserMem = nil
	c.clearParent()
	c.WaitChan = nil
	c.Killed.Store(false)
}
