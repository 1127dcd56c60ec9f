// Package pipeline implements the APEX five-stage in-order pipeline: the
// stage latches, the fetch/decode/execute/memory/writeback units, the
// optional branch target buffer, and the cycle driver that ticks them in
// reverse pipeline order.
package pipeline

import (
	"github.com/sarchlab/apexsim/isa"
	"github.com/sarchlab/apexsim/machine"
)

// codeBaseAddress is the byte address of the first instruction.
const codeBaseAddress int32 = 4000

// defaultDataMemoryWords is the data memory size used when no explicit
// size is given via WithDataMemoryWords.
const defaultDataMemoryWords = 4096

// Machine is the whole simulated APEX CPU: architectural state, the five
// stage latches, the forwarding buffers, the reservation vector, and
// (optionally) a branch target buffer.
type Machine struct {
	fetch, decode, execute, memory, writeback Latch

	pc          int32
	regs        machine.RegisterFile
	mem         *machine.DataMemory
	flags       machine.Flags
	reservation machine.ReservationVector
	execFwd     machine.ForwardBuffer
	memFwd      machine.ForwardBuffer

	fetchFromNextCycle bool

	code []isa.Instruction

	btb *BranchTargetBuffer

	clock   uint64
	retired uint64
	halted  bool
	err     error

	fetchUnit     FetchUnit
	decodeUnit    DecodeUnit
	executeUnit   ExecuteUnit
	memoryUnit    MemoryUnit
	writebackUnit WritebackUnit
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithBranchPredictor enables the BTB + 2-bit saturating predictor
// (variant 2). Without it, every control-transfer instruction behaves as
// the degenerate "always predicted fall-through" case, which is exactly
// the baseline flush-and-refetch behaviour (variant 1).
func WithBranchPredictor() Option {
	return func(m *Machine) {
		m.btb = NewBranchTargetBuffer()
	}
}

// WithDataMemoryWords overrides the default data memory size.
func WithDataMemoryWords(words int) Option {
	return func(m *Machine) {
		m.mem = machine.NewDataMemory(words)
	}
}

// NewMachine creates a Machine over the given decoded program. The
// program counter starts at 4000 and fetch is active from cycle one.
func NewMachine(code []isa.Instruction, opts ...Option) *Machine {
	m := &Machine{
		code: code,
		pc:   codeBaseAddress,
	}
	m.fetch.HasInsn = true

	for _, opt := range opts {
		opt(m)
	}

	if m.mem == nil {
		m.mem = machine.NewDataMemory(defaultDataMemoryWords)
	}

	return m
}

// Tick advances the machine by one cycle, calling the five stages in
// reverse pipeline order so that a stage always reads the latch its
// successor wrote last cycle, never its own current-cycle overwrite. This
// is also what gives same-cycle register-file write-before-read
// forwarding: writeback runs before decode.
func (m *Machine) Tick() {
	if m.halted || m.err != nil {
		return
	}

	if m.writebackUnit.Commit(m) {
		m.halted = true
	}
	m.memoryUnit.Access(m)
	m.executeUnit.Execute(m)
	m.decodeUnit.Decode(m)
	m.fetchUnit.Fetch(m)

	m.clock++
}

// Run advances the machine until it halts or faults. If maxCycles is
// positive, it also stops once that many cycles have elapsed (the
// "simulate N" bounded mode); a non-positive maxCycles runs to HALT.
func (m *Machine) Run(maxCycles int) {
	for !m.halted && m.err == nil {
		if maxCycles > 0 && m.clock >= uint64(maxCycles) {
			return
		}
		m.Tick()
	}
}

// Step advances the machine by exactly one cycle, for single-step mode.
func (m *Machine) Step() {
	m.Tick()
}

// Halted reports whether the machine has retired HALT.
func (m *Machine) Halted() bool {
	return m.halted
}

// Err returns the runtime fault that stopped the machine, if any
// (division by zero, fetch past code memory).
func (m *Machine) Err() error {
	return m.err
}

// Cycle returns the number of cycles elapsed.
func (m *Machine) Cycle() uint64 {
	return m.clock
}

// Retired returns the number of instructions that have completed
// writeback.
func (m *Machine) Retired() uint64 {
	return m.retired
}

// PC returns the current program counter.
func (m *Machine) PC() int32 {
	return m.pc
}

// Registers returns a snapshot of the register file.
func (m *Machine) Registers() [machine.RegFileSize]int32 {
	return m.regs.Snapshot()
}

// Flags returns the current condition flags.
func (m *Machine) Flags() machine.Flags {
	return m.flags
}

// DataMemory exposes the data memory for observation.
func (m *Machine) DataMemory() *machine.DataMemory {
	return m.mem
}

// Latches returns the current content of every stage latch, in pipeline
// order, for observation/debug printing.
func (m *Machine) Latches() (fetch, decode, execute, memory, writeback Latch) {
	return m.fetch, m.decode, m.execute, m.memory, m.writeback
}
