package proc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSleepWakeup_Basic(t *testing.T) {
	k, ctx := newTestKernel(t)

	type key struct{}
	waitChan := &key{}
	started := make(chan struct{})
	woke := make(chan struct{})

	init := mustUserinit(t, k, ctx, func(pctx context.Context) {
		close(started)
		k.Sleep(pctx, waitChan)
		close(woke)
		<-pctx.Done()
	})

	<-started
	eventually(t, func() bool { return init.State.Load() == StateSleeping }, "init never reached SLEEPING")

	k.Wakeup(ctx, waitChan)

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper was never woken")
	}
}

func TestWakeup_IsANoOpWithNoSleepers(t *testing.T) {
	k, ctx := newTestKernel(t)
	type key struct{}
	// No process is sleeping on this channel at all; Wakeup must simply
	// find nothing to do, not panic or block.
	k.Wakeup(ctx, &key{})
}

func TestWakeup_WakesEveryProcessOnTheSameChan(t *testing.T) {
	k, ctx := newTestKernel(t)

	type key struct{}
	ch := &key{}
	const n = 4

	var startedWG sync.WaitGroup
	startedWG.Add(n)
	var woke atomic.Int32

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		for i := 0; i < n; i++ {
			_, err := k.Fork(pctx, func(cctx context.Context) {
				startedWG.Done()
				k.Sleep(cctx, ch)
				woke.Add(1)
			})
			if err != nil {
				t.Errorf("fork %d: %v", i, err)
				return
			}
		}
		<-pctx.Done()
	})

	startedWG.Wait()
	eventually(t, func() bool {
		count := 0
		k.Table.ForEach(func(p *PCB) {
			if p.State.Load() == StateSleeping && p.WaitChan == ch {
				count++
			}
		})
		return count == n
	}, "not every forked child reached SLEEPING on the shared channel")

	k.Wakeup(ctx, ch)

	eventually(t, func() bool { return woke.Load() == n }, "not every sleeper was woken")
}
