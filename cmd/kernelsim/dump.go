package main

import (
	"context"
	"time"

	"github.com/kernelcore/prockernel/proc"
	"github.com/kernelcore/prockernel/proc/collab"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Boot a kernel, fork one child, and print the process table mid-run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			k := proc.New(proc.WithNCPU(2), proc.WithNProc(8), proc.WithTickInterval(0))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			k.Boot(ctx)
			defer k.Shutdown()

			ready := make(chan struct{})
			_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
				_, _ = k.Fork(pctx, func(cctx context.Context) {
					<-cctx.Done()
				})
				close(ready)
				<-pctx.Done()
			})
			if err != nil {
				return err
			}

			select {
			case <-ready:
			case <-time.After(2 * time.Second):
			}
			time.Sleep(10 * time.Millisecond) // let the scheduler actually run the child once
			k.Procdump(out)
			return nil
		},
	}
}
