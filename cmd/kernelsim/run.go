package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kernelcore/prockernel/proc"
	"github.com/kernelcore/prockernel/proc/collab"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var nchildren int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot a kernel, fork a handful of children, wait for them, and print the process table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), nchildren)
		},
	}
	cmd.Flags().IntVar(&nchildren, "children", 3, "number of children to fork")
	return cmd
}

func runDemo(out io.Writer, n int) error {
	k := proc.New(proc.WithNCPU(2), proc.WithNProc(16), proc.WithTickInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.Boot(ctx)
	defer k.Shutdown()

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		var pids []int32
		for i := 0; i < n; i++ {
			i := i
			pid, ferr := k.Fork(pctx, func(cctx context.Context) {
				fmt.Fprintf(out, "child %d (pid %d) running\n", i, proc.Current(cctx).Pid.Load())
			})
			if ferr != nil {
				fmt.Fprintf(out, "fork failed: %v\n", ferr)
				return
			}
			pids = append(pids, pid)
		}
		for range pids {
			if _, werr := k.Wait(pctx); werr != nil {
				fmt.Fprintf(out, "wait failed: %v\n", werr)
				return
			}
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("kernelsim run: demo did not finish in time")
	}

	k.Procdump(out)
	return nil
}
