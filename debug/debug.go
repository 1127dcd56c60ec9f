// Package debug renders APEX machine state as text, the Go equivalent of
// the reference implementation's print_reg_file/print_data_memory/
// print_flags/print_stage_content helpers.
package debug

import (
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/apexsim/machine"
	"github.com/sarchlab/apexsim/timing/pipeline"
)

// Printer writes formatted machine state to an io.Writer.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintRegisters writes the 16-entry register file.
func (p *Printer) PrintRegisters(regs [machine.RegFileSize]int32) {
	fmt.Fprintln(p.w, "--- registers ---")
	for i, v := range regs {
		fmt.Fprintf(p.w, "R%-2d | %-8d\n", i, v)
	}
}

// PrintFlags writes the condition flags.
func (p *Printer) PrintFlags(f machine.Flags) {
	fmt.Fprintf(p.w, "--- flags --- Z:%t N:%t P:%t\n", f.Z, f.N, f.P)
}

// PrintDataMemory writes the nonzero entries of data memory, sorted by
// address.
func (p *Printer) PrintDataMemory(mem *machine.DataMemory) {
	fmt.Fprintln(p.w, "--- data memory (nonzero) ---")
	entries := mem.NonZero()
	addrs := make([]int32, 0, len(entries))
	for a := range entries {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		fmt.Fprintf(p.w, "MEM[%d] | %-8d\n", a, entries[a])
	}
}

// PrintStages writes the occupancy and instruction of every stage latch.
func (p *Printer) PrintStages(m *pipeline.Machine) {
	fetch, decode, execute, memory, writeback := m.Latches()
	fmt.Fprintln(p.w, "--- stages ---")
	p.printLatch("Fetch", fetch)
	p.printLatch("Decode", decode)
	p.printLatch("Execute", execute)
	p.printLatch("Memory", memory)
	p.printLatch("Writeback", writeback)
}

func (p *Printer) printLatch(name string, lt pipeline.Latch) {
	if !lt.HasInsn {
		fmt.Fprintf(p.w, "%-10s: empty\n", name)
		return
	}
	fmt.Fprintf(p.w, "%-10s: %s\n", name, lt.Insn.String())
}

// PrintSummary writes the cycle count and retired-instruction count after
// a run.
func (p *Printer) PrintSummary(m *pipeline.Machine) {
	fmt.Fprintf(p.w, "cycles: %d, retired: %d\n", m.Cycle(), m.Retired())
	if err := m.Err(); err != nil {
		fmt.Fprintf(p.w, "fault: %v\n", err)
	}
}
