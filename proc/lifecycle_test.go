package proc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkExitWait_ReturnsChildPid(t *testing.T) {
	k, ctx := newTestKernel(t)

	childExited := make(chan struct{})
	waitResult := make(chan int32, 1)
	waitErr := make(chan error, 1)

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		childPid, err := k.Fork(pctx, func(cctx context.Context) {
			close(childExited)
		})
		require.NoError(t, err)
		require.Greater(t, childPid, int32(0))

		pid, werr := k.Wait(pctx)
		waitResult <- pid
		waitErr <- werr
		require.Equal(t, childPid, pid)

		_, werr2 := k.Wait(pctx)
		assert.ErrorIs(t, werr2, ErrNoChildren)

		<-pctx.Done()
	})

	<-childExited
	pid := <-waitResult
	require.NoError(t, <-waitErr)
	assert.Greater(t, pid, int32(0))
}

func TestExit_ReparentsZombieChildrenToInit(t *testing.T) {
	// Three CPUs: init and the child each hold one while blocked on a Go
	// channel, so the grandchild needs a third to run at all.
	k, ctx := newTestKernel(t, WithNCPU(3))

	grandchildExited := make(chan struct{})
	childDone := make(chan struct{})
	var grandchildPid int32

	init := mustUserinit(t, k, ctx, func(pctx context.Context) {
		_, err := k.Fork(pctx, func(cctx context.Context) {
			gcPid, gerr := k.Fork(cctx, func(ggctx context.Context) {
				close(grandchildExited)
			})
			require.NoError(t, gerr)
			grandchildPid = gcPid

			// Give the grandchild a chance to run to completion (ZOMBIE)
			// before this process exits, so Exit's reparent path observes
			// it already zombie and must wake init.
			<-grandchildExited
			eventually(t, func() bool {
				return k.Table.Lookup(gcPid).State.Load() == StateZombie
			}, "grandchild never reached ZOMBIE before its parent exited")
			close(childDone)
		})
		require.NoError(t, err)

		<-childDone
		// Reap both the direct child and (once reparented) the grandchild.
		first, err1 := k.Wait(pctx)
		require.NoError(t, err1)
		second, err2 := k.Wait(pctx)
		require.NoError(t, err2)
		assert.NotEqual(t, first, second)
		assert.Contains(t, []int32{first, second}, grandchildPid)

		<-pctx.Done()
	})

	eventually(t, func() bool { return init.State.Load() != StateUnused }, "init never started")
}

func TestWait_NoChildrenReturnsImmediately(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan error, 1)

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		_, err := k.Wait(pctx)
		done <- err
		<-pctx.Done()
	})

	err := <-done
	assert.ErrorIs(t, err, ErrNoChildren)
}

func TestFreeChild_RestoresUnusedInvariant(t *testing.T) {
	k, ctx := newTestKernel(t)
	reaped := make(chan int32, 1)

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		childPid, err := k.Fork(pctx, func(cctx context.Context) {})
		require.NoError(t, err)
		pid, werr := k.Wait(pctx)
		require.NoError(t, werr)
		require.Equal(t, childPid, pid)
		reaped <- pid
		<-pctx.Done()
	})

	pid := <-reaped
	eventually(t, func() bool { return k.Table.Lookup(pid) == nil }, "reaped pid must no longer be found by lookup")
}
