// Package collab declares the interfaces the proc core consumes but never
// implements: the collaborator surface named in spec section 6
// (setupkvm/inituvm/copyuvm/..., kalloc/kfree, the file/inode layer, and the
// raw swtch stack-switch primitive). Interrupt control (pushcli/popcli) is
// not part of this surface; package proc models it itself. Minimal in-memory
// default implementations are provided so the core is exercisable end to
// end in tests and cmd/kernelsim; real embedders are expected to supply
// their own.
package collab

import (
	"context"
	"errors"
)

// ErrAllocFailed is returned by AddressSpace/PageAllocator operations that
// fail due to resource exhaustion, matching spec section 7's "resource
// exhaustion" error kind.
var ErrAllocFailed = errors.New("collab: allocation failed")

// AddressSpace stands in for the page-table builder named in spec section 6
// (setupkvm, inituvm, copyuvm, allocuvm, deallocuvm, freevm, switchuvm,
// switchkvm). Exactly one AddressSpace is owned by each non-UNUSED PCB.
type AddressSpace interface {
	// Copy produces a fresh, independent copy of the address space (used by
	// fork, which then owns the returned space). It returns ErrAllocFailed
	// on failure, in which case the caller owns no new resource.
	Copy() (AddressSpace, error)
	// Grow changes the address space size by delta bytes (may be negative
	// to shrink, per growproc). It returns the new size.
	Grow(delta int64) (newSize uint64, err error)
	// Switch installs this address space as the active one on the calling
	// CPU (switchuvm). There is no counterpart for switching back to the
	// kernel's own space (switchkvm); the scheduler does not model one.
	Switch()
	// Free releases all resources owned by the address space (freevm).
	Free()
}

// PageAllocator stands in for kalloc/kfree: allocation of physical pages,
// used here for kernel stacks.
type PageAllocator interface {
	// Alloc returns one page-sized buffer, or ErrAllocFailed.
	Alloc() ([]byte, error)
	// Free returns a page obtained from Alloc.
	Free([]byte)
}

// Inode stands in for idup/iput/namei: a reference-counted handle to a
// directory or file's on-disk identity, used here only for PCB.Cwd.
type Inode interface {
	// Dup returns a new reference to the same inode (idup).
	Dup() Inode
	// Put releases this reference (iput).
	Put()
	// Path returns a debug-only path string.
	Path() string
}

// File stands in for filedup/fileclose: a reference-counted open-file
// handle, used here for PCB.OFile.
type File interface {
	Dup() File
	Close()
}

// TrapFrame is the saved user-mode register state at kernel entry. Esp/Eip
// are architecture-neutral stand-ins for the real trap frame's stack
// pointer and instruction pointer; FromUserMode reports whether the trap
// that produced this frame came from user mode (CS privilege bits == user),
// used by the signal delivery boundary check in spec section 4.6.
type TrapFrame struct {
	Eip          uint64
	Esp          uint64
	Regs         [8]uint64 // general-purpose registers, opaque to the core
	FromUserMode bool
}

// Clone returns a deep copy of the trap frame (userTFbackup/sigret round
// trip requires an independent snapshot).
func (t *TrapFrame) Clone() *TrapFrame {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Context holds the saved callee-save registers and resume instruction
// pointer of a kernel thread; it is the input/output of Switcher.Switch and
// is otherwise opaque to the core.
type Context struct {
	// EntryPoint is consulted only on the very first switch into a newly
	// allocated process; it is the kernel-thread analogue of xv6's
	// layout that points a fresh context's resumption IP at forkret.
	EntryPoint func(ctx context.Context)
}

// Switcher stands in for the external swtch(old, new) primitive: save
// callee-save registers and the return address into *old, load them from
// *new, resume. It does not touch process state words -- that discipline is
// entirely the caller's (Kernel.sched / the scheduler loop).
//
// This package's default implementation below models the handoff with a
// pair of unbuffered rendezvous channels per kernel thread, since Go has no
// user-level stack-switch primitive to bind to; it preserves the contract
// (old's caller blocks until new resumes and eventually switches back) without
// pretending to manipulate real stacks.
type Switcher interface {
	// Switch transfers control from the calling kernel thread to target,
	// blocking the caller until target switches back to it (or the
	// context is canceled).
	Switch(ctx context.Context, from, to *KernelThread)
}

// KernelThread is the minimal goroutine-based stand-in for a kernel stack:
// a rendezvous point a Switcher can block on and resume.
type KernelThread struct {
	resume chan struct{}
}

// NewKernelThread allocates a fresh, non-started rendezvous point.
func NewKernelThread() *KernelThread {
	return &KernelThread{resume: make(chan struct{}, 1)}
}

// wake records a single pending Switch into this thread; the next Await
// consumes it, whether that Await is already blocked or starts later.
// Safe to call at most meaningfully once per Switch call; extra wakes
// beyond the one held are dropped.
func (k *KernelThread) wake() {
	select {
	case k.resume <- struct{}{}:
	default:
	}
}

// Await blocks the calling goroutine until another kernel thread switches
// into this one (via a Switcher), or ctx is done. It returns false only in
// the ctx-done case, which callers should treat as an instruction to
// unwind and stop running.
func (k *KernelThread) Await(ctx context.Context) bool {
	select {
	case <-k.resume:
		return true
	case <-ctx.Done():
		return false
	}
}

// chanSwitcher is the default Switcher: a direct channel handoff.
type chanSwitcher struct{}

// NewChannelSwitcher returns the default Switcher used when none is
// supplied, implementing the contract described on [Switcher] with Go
// channels standing in for a real stack switch.
func NewChannelSwitcher() Switcher { return chanSwitcher{} }

func (chanSwitcher) Switch(ctx context.Context, from, to *KernelThread) {
	to.wake()
	from.Await(ctx)
}
