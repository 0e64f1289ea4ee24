package proc

import (
	"context"
	"testing"

	"github.com/kernelcore/prockernel/proc/collab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrowProc_GrowsAndShrinksSz(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan struct{})

	mustUserinit(t, k, ctx, func(pctx context.Context) {
		p := Current(pctx)
		require.NoError(t, k.GrowProc(pctx, 4096))
		assert.Equal(t, uint64(4096+4096), p.Sz, "initial address space plus growth")

		require.NoError(t, k.GrowProc(pctx, -4096))
		assert.Equal(t, uint64(4096), p.Sz)

		close(done)
		<-pctx.Done()
	})

	<-done
}

func TestGrowProc_AllocFailureReturnsResourceError(t *testing.T) {
	k, ctx := newTestKernel(t)
	done := make(chan error, 1)

	alwaysFail := func() bool { return true }
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, alwaysFail), func(pctx context.Context) {
		done <- k.GrowProc(pctx, 4096)
		<-pctx.Done()
	})
	require.NoError(t, err)

	err = <-done
	var re *ResourceError
	assert.ErrorAs(t, err, &re)
}
