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

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "scenario {1|2|3|4|5|6}",
		Short:     "Run one of the six end-to-end signal-delivery scenarios and print its expected output.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"1", "2", "3", "4", "5", "6"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "1":
				return scenarioSigstopDefault(out)
			case "2":
				return scenarioSigstopSigcont(out)
			case "3":
				return scenarioSigkillDefault(out)
			case "4":
				return scenarioUserHandlerSelfStop(out)
			case "5":
				return scenarioCustomSigcontHandler(out)
			case "6":
				return scenarioFanOutMixedHandlers(out)
			default:
				return fmt.Errorf("unknown scenario %q, want 1-6", args[0])
			}
		},
	}
	return cmd
}

// handlerRegistry maps the opaque HandlerAddr values this demo installs to
// the Go closures standing in for compiled user-mode handler code -- the
// thing a real CPU would be executing at that address after the trampoline
// rewrote the trap frame's Eip.
type handlerRegistry map[proc.HandlerAddr]func(ctx context.Context)

// handleOnce performs one simulated trap-return signal check: ask the
// kernel to dispatch whatever is pending and deliverable, then, if that
// dispatch rewrote the trap frame for a real handler (UserTFBackup gets
// set only by that path), run the registered closure and sigret.
func handleOnce(ctx context.Context, k *proc.Kernel, reg handlerRegistry) {
	p := proc.Current(ctx)
	k.HandleSig(ctx)
	if p.UserTFBackup == nil {
		return
	}
	if fn, ok := reg[proc.HandlerAddr(p.Tf.Eip)]; ok {
		fn(ctx)
	}
	k.Sigret(ctx)
}

// raiseSelf posts signum to the calling process itself and immediately
// performs one handleOnce pass, the way a process invoking kill(getpid(),
// sig) then returning to user mode would observe its own signal.
func raiseSelf(ctx context.Context, k *proc.Kernel, reg handlerRegistry, signum int) {
	p := proc.Current(ctx)
	_ = k.Kill(p.Pid.Load(), signum)
	handleOnce(ctx, k, reg)
}

// sleepTicks blocks the calling process for n simulated timer ticks,
// performing a trap-return signal check after each one, and reports
// whether the process was killed partway through -- callers must stop
// what they are doing and return (letting the kernel-thread wrapper's
// implicit Exit run) rather than continue past a kill.
func sleepTicks(ctx context.Context, k *proc.Kernel, n int) (killed bool) {
	p := proc.Current(ctx)
	for i := 0; i < n; i++ {
		ch := new(int)
		fired := make(chan struct{})
		go func() {
			time.Sleep(2 * time.Millisecond)
			k.Wakeup(ctx, ch)
			close(fired)
		}()
		k.Sleep(ctx, ch)
		<-fired
		k.HandleSig(ctx)
		k.CheckPreempt(ctx)
		if p.Killed.Load() {
			return true
		}
	}
	return false
}

func bootScenarioKernel() (*proc.Kernel, context.Context, context.CancelFunc) {
	k := proc.New(proc.WithNCPU(2), proc.WithNProc(64), proc.WithTickInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	k.Boot(ctx)
	return k, ctx, cancel
}

// scenarioSigstopDefault is spec scenario 1: a child parked 10 ticks deep
// into a sleep is stopped by its parent's default SIGSTOP and must never
// reach its post-sleep print, because it is permanently suspended (no
// SIGCONT is ever posted in this scenario). The kernel is deliberately not
// shut down cleanly afterward: the child's busy-yield suspension is, by
// design, never going to end.
func scenarioSigstopDefault(out io.Writer) error {
	k, ctx, _ := bootScenarioKernel()

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		childPid, ferr := k.Fork(pctx, func(cctx context.Context) {
			if sleepTicks(cctx, k, 10) {
				return
			}
			fmt.Fprintln(out, "child resumed after sleep")
		})
		if ferr != nil {
			return
		}
		fmt.Fprintln(out, "sending stop signal")
		if kerr := k.Kill(childPid, proc.SIGSTOP); kerr != nil {
			return
		}
		fmt.Fprintln(out, "SIGSTOP ok")
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// scenarioSigstopSigcont is spec scenario 2: stop a sleeping child, then
// resume it with SIGCONT and wait for its natural exit.
func scenarioSigstopSigcont(out io.Writer) error {
	k, ctx, cancel := bootScenarioKernel()
	defer cancel()
	defer k.Shutdown()

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		childPid, ferr := k.Fork(pctx, func(cctx context.Context) {
			sleepTicks(cctx, k, 30)
		})
		if ferr != nil {
			return
		}

		fmt.Fprintln(out, "sending stop signal")
		if kerr := k.Kill(childPid, proc.SIGSTOP); kerr != nil {
			return
		}
		sleepTicks(pctx, k, 3)

		fmt.Fprintln(out, "sending cont signal")
		if kerr := k.Kill(childPid, proc.SIGCONT); kerr != nil {
			return
		}
		fmt.Fprintln(out, "SIGCONT ok")

		pid, werr := k.Wait(pctx)
		if werr == nil && pid == childPid {
			fmt.Fprintln(out, "wait returned child pid")
		}
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("kernelsim scenario 2: timed out")
	}
	return nil
}

// scenarioSigkillDefault is spec scenario 3: a child sleeping 50 ticks is
// killed partway through and must never reach its post-sleep print; the
// parent's wait still returns the child's pid (a killed process is reaped
// the same way a naturally exited one is).
func scenarioSigkillDefault(out io.Writer) error {
	k, ctx, cancel := bootScenarioKernel()
	defer cancel()
	defer k.Shutdown()

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		childPid, ferr := k.Fork(pctx, func(cctx context.Context) {
			if sleepTicks(cctx, k, 50) {
				return
			}
			fmt.Fprintln(out, "SIGKILL failed")
		})
		if ferr != nil {
			return
		}

		sleepTicks(pctx, k, 3)
		if kerr := k.Kill(childPid, proc.SIGKILL); kerr != nil {
			return
		}
		pid, werr := k.Wait(pctx)
		if werr == nil && pid == childPid {
			fmt.Fprintln(out, "SIGKILL ok")
		}
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("kernelsim scenario 3: timed out")
	}
	return nil
}

// scenarioUserHandlerSelfStop is spec scenario 4: a child installs its own
// SIGSTOP handler (which overrides the default suspend entirely), raises
// SIGSTOP on itself, observes the handler return immediately, then
// reverts to SIG_DFL before exiting.
func scenarioUserHandlerSelfStop(out io.Writer) error {
	k, ctx, cancel := bootScenarioKernel()
	defer cancel()
	defer k.Shutdown()

	const sonStopHandler proc.HandlerAddr = 0x1000

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		childPid, ferr := k.Fork(pctx, func(cctx context.Context) {
			p := proc.Current(cctx)
			if _, serr := k.Signal(p.Pid.Load(), proc.SIGSTOP, sonStopHandler); serr != nil {
				return
			}
			fmt.Fprintln(out, "Son is running")

			reg := handlerRegistry{sonStopHandler: func(context.Context) {}}
			raiseSelf(cctx, k, reg, proc.SIGSTOP)
			fmt.Fprintln(out, "Son handled signal")

			sleepTicks(cctx, k, 5)
			_, _ = k.Signal(p.Pid.Load(), proc.SIGSTOP, proc.SigDfl)
		})
		if ferr != nil {
			return
		}

		pid, werr := k.Wait(pctx)
		if werr == nil && pid == childPid {
			fmt.Fprintln(out, "exit after wating for child")
			fmt.Fprintln(out, "Test OK")
		}
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("kernelsim scenario 4: timed out")
	}
	return nil
}

// scenarioCustomSigcontHandler is spec scenario 5: the parent installs a
// SIGCONT handler before forking, so the child inherits it; the child
// self-stops (default disposition, since only SIGCONT got a custom
// handler), the parent posts SIGCONT, and the pending SIGCONT bit ends the
// stop; a separate pass then dispatches SIGCONT to the child's *inherited*
// handler -- not the default -- which prints the signal number.
func scenarioCustomSigcontHandler(out io.Writer) error {
	k, ctx, cancel := bootScenarioKernel()
	defer cancel()
	defer k.Shutdown()

	const contHandler proc.HandlerAddr = 0x2000
	reg := handlerRegistry{contHandler: func(context.Context) {
		fmt.Fprintf(out, "Received signal number: %d\n", proc.SIGCONT)
	}}

	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		self := proc.Current(pctx)
		if _, serr := k.Signal(self.Pid.Load(), proc.SIGCONT, contHandler); serr != nil {
			return
		}

		childPid, ferr := k.Fork(pctx, func(cctx context.Context) {
			raiseSelf(cctx, k, reg, proc.SIGSTOP) // default disposition: suspend until SIGCONT is pending
			handleOnce(cctx, k, reg)              // separate pass: dispatch the now-pending SIGCONT to the inherited handler
		})
		if ferr != nil {
			return
		}

		sleepTicks(pctx, k, 3)
		if kerr := k.Kill(childPid, proc.SIGCONT); kerr != nil {
			return
		}

		if _, werr := k.Wait(pctx); werr == nil {
			fmt.Fprintln(out, "wait returned")
		}
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("kernelsim scenario 5: timed out")
	}
	return nil
}

// scenarioFanOutMixedHandlers is spec scenario 6: 50 children, each
// installing (by inheritance) custom handlers for SIGCONT and SIGKILL,
// alternately self-stop or self-kill; the parent resumes the stopped half
// and waits for all 50, expecting no zombie left behind.
func scenarioFanOutMixedHandlers(out io.Writer) error {
	k, ctx, cancel := bootScenarioKernel()
	defer cancel()
	defer k.Shutdown()

	const contHandler proc.HandlerAddr = 0x3000
	const killHandler proc.HandlerAddr = 0x4000
	reg := handlerRegistry{
		contHandler: func(context.Context) {},
		killHandler: func(context.Context) {},
	}

	const n = 50
	done := make(chan struct{})
	_, err := k.Userinit(ctx, collab.NewAddressSpace(4096, nil), func(pctx context.Context) {
		defer func() { <-pctx.Done() }() // init never returns while the kernel runs
		defer close(done)
		self := proc.Current(pctx)
		if _, serr := k.Signal(self.Pid.Load(), proc.SIGCONT, contHandler); serr != nil {
			return
		}
		if _, serr := k.Signal(self.Pid.Load(), proc.SIGKILL, killHandler); serr != nil {
			return
		}

		pids := make([]int32, 0, n)
		for i := 0; i < n; i++ {
			stopsAndResumes := i%2 == 1
			pid, ferr := k.Fork(pctx, func(cctx context.Context) {
				if stopsAndResumes {
					raiseSelf(cctx, k, reg, proc.SIGSTOP)
					handleOnce(cctx, k, reg)
				} else {
					raiseSelf(cctx, k, reg, proc.SIGKILL)
				}
			})
			if ferr != nil {
				fmt.Fprintf(out, "fork %d failed: %v\n", i, ferr)
				return
			}
			pids = append(pids, pid)
		}

		for i, pid := range pids {
			if i%2 == 1 {
				_ = k.Kill(pid, proc.SIGCONT)
			}
		}

		reaped := 0
		for reaped < n {
			if _, werr := k.Wait(pctx); werr != nil {
				break
			}
			reaped++
		}
		fmt.Fprintf(out, "reaped %d/%d children, zombies remaining: %v\n", reaped, n, hasZombie(k))
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("kernelsim scenario 6: timed out")
	}
	return nil
}

func hasZombie(k *proc.Kernel) bool {
	found := false
	k.Table.ForEach(func(p *proc.PCB) {
		if p.State.Load() == proc.StateZombie {
			found = true
		}
	})
	return found
}
