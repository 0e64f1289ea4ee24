package proc

import (
	"io"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
)

// Procdump renders a one-line-per-process table to w: pid, name, state, and
// parent pid, the analogue of xv6's procdump() (invoked from the console on
// Ctrl-P). Grounded on arctir-proctor's table rendering of fleet state,
// wired here against github.com/olekukonko/tablewriter instead of that
// package's hand-rolled column alignment.
func (k *Kernel) Procdump(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PID", "NAME", "STATE", "PARENT"})
	table.SetAutoFormatHeaders(false)

	k.Table.ForEach(func(p *PCB) {
		if p.State.Load() == StateUnused {
			return
		}
		parent := "-"
		if idx, gen, ok := p.ParentRef(); ok {
			if pp := k.Table.Slot(idx); pp.gen.Load() == gen {
				parent = strconv.Itoa(int(pp.Pid.Load()))
			}
		}
		table.Append([]string{
			strconv.Itoa(int(p.Pid.Load())),
			p.Name,
			p.State.Load().String(),
			parent,
		})
	})
	table.Render()
}

// DumpPCB writes a deep, field-by-field rendering of a single PCB to w,
// for interactive debugging only -- never parsed, unlike Procdump's table.
func DumpPCB(w io.Writer, p *PCB) {
	scs := spew.ConfigState{Indent: "  ", DisableMethods: true}
	scs.Fdump(w, p)
}
