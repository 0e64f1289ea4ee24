package proc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kernelcore/prockernel/proc/collab"
	"golang.org/x/sync/errgroup"
)

// Kernel owns the process table and the per-CPU schedulers, and exposes the
// syscall-level operations named in spec section 6 (fork/exit/wait/kill/
// signal/sigprocmask/sigret/yield/sleep). One Kernel is the whole of "ptable,
// nextpid, initproc, cpus[]" from spec section 9: process-wide state,
// initialized once at boot and never destroyed.
type Kernel struct {
	Table    *Table
	CPUs     []*CPU
	switcher collab.Switcher
	pages    collab.PageAllocator
	logger   Logger

	initproc atomic.Pointer[PCB]

	tickInterval time.Duration

	group  *errgroup.Group
	cancel context.CancelFunc

	forkretOnce sync.Once
}

// New constructs a Kernel with the given options but does not start any
// scheduler goroutines; call Boot to do that.
func New(opts ...Option) *Kernel {
	c := resolveOptions(opts)
	k := &Kernel{
		Table:        NewTable(c.nproc),
		switcher:     c.switcher,
		pages:        c.pages,
		logger:       c.logger,
		tickInterval: c.tickInterval,
	}
	k.CPUs = make([]*CPU, c.ncpu)
	for i := range k.CPUs {
		k.CPUs[i] = NewCPU(i)
	}
	return k
}

func (k *Kernel) log(level LogLevel, msg string, fields map[string]any) {
	k.logger.Log(level, msg, fields)
}

// Initproc returns the kernel's init process, or nil before Userinit has
// been called.
func (k *Kernel) Initproc() *PCB { return k.initproc.Load() }

// Boot starts one scheduler goroutine per simulated CPU (spec section 4.3)
// and, if a nonzero tick interval was configured, a goroutine pacing the
// simulated timer interrupt that drives yield() (spec section 4.3's "timer
// interrupt trap-return path"). It returns immediately; call Shutdown (or
// cancel ctx) to stop every started goroutine and wait for them to return.
func (k *Kernel) Boot(ctx context.Context) {
	gctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(gctx)
	k.cancel = cancel
	k.group = g

	for _, cpu := range k.CPUs {
		cpu := cpu
		g.Go(func() error {
			k.scheduler(gctx, cpu)
			return nil
		})
	}
	if k.tickInterval > 0 {
		g.Go(func() error {
			k.tickDriver(gctx)
			return nil
		})
	}
}

// Shutdown cancels every goroutine started by Boot and waits for them to
// return.
func (k *Kernel) Shutdown() {
	if k.cancel != nil {
		k.cancel()
	}
	if k.group != nil {
		_ = k.group.Wait()
	}
}
