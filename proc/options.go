package proc

import (
	"time"

	"github.com/kernelcore/prockernel/proc/collab"
)

// config holds the resolved construction options for a Kernel, following
// the teacher's functional-options shape (eventloop's LoopOption).
type config struct {
	nproc        int
	ncpu         int
	logger       Logger
	switcher     collab.Switcher
	pages        collab.PageAllocator
	tickInterval time.Duration
}

// Option configures a Kernel at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithNProc sets the process-table capacity.
func WithNProc(n int) Option {
	return optionFunc(func(c *config) { c.nproc = n })
}

// WithNCPU sets the number of simulated CPUs.
func WithNCPU(n int) Option {
	return optionFunc(func(c *config) { c.ncpu = n })
}

// WithLogger overrides the kernel's structured logger; by default a Kernel
// uses the package-wide logger installed via SetStructuredLogger.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithSwitcher overrides the swtch collaborator; by default a Kernel uses
// collab.NewChannelSwitcher().
func WithSwitcher(s collab.Switcher) Option {
	return optionFunc(func(c *config) { c.switcher = s })
}

// WithPageAllocator overrides the kalloc/kfree collaborator used for kernel
// stacks; by default a Kernel uses collab.NewHeapAllocator(nil).
func WithPageAllocator(a collab.PageAllocator) Option {
	return optionFunc(func(c *config) { c.pages = a })
}

// WithTickInterval sets the pace of the simulated timer interrupt that
// drives preemptive yield() calls. The zero value disables the tick
// driver; callers must invoke Kernel.Tick manually in that case.
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(c *config) { c.tickInterval = d })
}

func resolveOptions(opts []Option) *config {
	c := &config{
		nproc:        DefaultNProc,
		ncpu:         DefaultNCPU,
		tickInterval: 10 * time.Millisecond,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(c)
	}
	if c.logger == nil {
		c.logger = getGlobalLogger()
	}
	if c.switcher == nil {
		c.switcher = collab.NewChannelSwitcher()
	}
	if c.pages == nil {
		c.pages = collab.NewHeapAllocator(nil)
	}
	return c
}
