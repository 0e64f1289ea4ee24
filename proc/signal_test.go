package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKill_WakesASleepingProcess(t *testing.T) {
	k, ctx := newTestKernel(t)
	type key struct{}
	ch := &key{}

	started := make(chan struct{})
	woke := make(chan struct{})
	var childPid int32

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		pid, err := k.Fork(pctx, func(cctx context.Context) {
			close(started)
			k.Sleep(cctx, ch)
			close(woke)
		})
		require.NoError(t, err)
		childPid = pid
		_, _ = k.Wait(pctx)
		<-pctx.Done()
	})

	<-started
	eventually(t, func() bool { return k.Table.Lookup(childPid) != nil && k.Table.Lookup(childPid).State.Load() == StateSleeping })

	require.NoError(t, k.Kill(childPid, SIGKILL))

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("killed sleeper was never woken")
	}
	eventually(t, func() bool {
		p := k.Table.Lookup(childPid)
		return p == nil // reaped by init's Wait once it exits
	}, "killed child was never reaped")
}

func TestKill_UnknownPidReturnsNotFound(t *testing.T) {
	k, _ := newTestKernel(t)
	err := k.Kill(99999, SIGKILL)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSignal_InstallsHandlerAndReturnsPrevious(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan struct{})
	var pid int32

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		pid = Current(pctx).Pid.Load()
		prev, err := k.Signal(pid, SIGCONT, HandlerAddr(0x1000))
		require.NoError(t, err)
		assert.Equal(t, SigDfl, prev)

		prev2, err2 := k.Signal(pid, SIGCONT, SigIgn)
		require.NoError(t, err2)
		assert.Equal(t, HandlerAddr(0x1000), prev2)

		close(done)
		<-pctx.Done()
	})

	<-done
}

func TestSigprocmask_ReturnsPreviousMask(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan struct{})

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		prev := k.Sigprocmask(pctx, 0b101)
		assert.Equal(t, uint32(0), prev)
		prev2 := k.Sigprocmask(pctx, 0b010)
		assert.Equal(t, uint32(0b101), prev2)
		close(done)
		<-pctx.Done()
	})

	<-done
}

func TestHandleSig_DeliversToInstalledHandlerAndSigretRestores(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan struct{})
	var sawSignum uint64
	var restoredEip uint64
	const originalEip = 0xdead0000

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		p := Current(pctx)
		p.Tf.FromUserMode = true
		p.Tf.Eip = originalEip
		p.Tf.Esp = uint64(len(p.UserMem))

		const handlerAddr HandlerAddr = 0x2000
		_, err := k.Signal(p.Pid.Load(), SIGCONT, handlerAddr)
		require.NoError(t, err)

		require.NoError(t, k.Kill(p.Pid.Load(), SIGCONT))

		k.HandleSig(pctx)
		assert.Equal(t, uint64(handlerAddr), p.Tf.Eip, "trap frame must resume at the installed handler")
		sawSignum = p.Tf.Regs[0]

		k.Sigret(pctx)
		restoredEip = p.Tf.Eip

		close(done)
		<-pctx.Done()
	})

	<-done
	assert.Equal(t, uint64(SIGCONT), sawSignum)
	assert.Equal(t, uint64(originalEip), restoredEip)
}
