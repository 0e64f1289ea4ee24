package proc

import (
	"context"
	"testing"
	"time"

	"github.com/kernelcore/prockernel/proc/collab"
	"github.com/stretchr/testify/require"
)

// newTestKernel boots a small Kernel for integration tests and registers
// its shutdown, following the teacher's Run-in-a-goroutine-then-Shutdown
// pattern (eventloop's loop lifecycle tests).
func newTestKernel(t *testing.T, opts ...Option) (*Kernel, context.Context) {
	t.Helper()
	base := []Option{WithNCPU(2), WithNProc(32), WithTickInterval(0), WithLogger(NewNoOpLogger())}
	k := New(append(base, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	k.Boot(ctx)
	t.Cleanup(func() {
		cancel()
		k.Shutdown()
	})
	return k, ctx
}

// mustUserinit boots the kernel's init process and fails the test on error.
func mustUserinit(t *testing.T, k *Kernel, ctx context.Context, entry EntryFunc) *PCB {
	t.Helper()
	p, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), entry)
	require.NoError(t, err)
	return p
}

// eventually is a short-fuse require.Eventually, tuned for this package's
// goroutine-handoff latencies (millisecond-scale, never disk- or
// network-bound).
func eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msgAndArgs...)
}
