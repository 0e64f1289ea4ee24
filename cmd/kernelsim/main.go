// Command kernelsim drives the proc package from the outside, the way a
// console driver drives a real kernel: boot a Kernel, fork processes,
// deliver signals, and print the process table. It exercises fork, wait,
// kill, signal delivery, and the process-table dump end to end without a
// test harness in the loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kernelsim",
		Short: "A small multiprocessor process-lifecycle kernel simulator.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newScenarioCmd())
	root.AddCommand(newDumpCmd())
	return root
}
