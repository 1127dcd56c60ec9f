package pipeline

import (
	"fmt"

	"github.com/sarchlab/apexsim/isa"
)

// FetchUnit manages the program counter and hands instructions off to
// decode, including the BTB lookup (variant 2) and the one-shot
// skip-fetch behaviour used to realise flush-and-refetch.
type FetchUnit struct{}

// NewFetchUnit returns a fetch unit.
func NewFetchUnit() *FetchUnit {
	return &FetchUnit{}
}

// Fetch runs the fetch stage for one cycle.
func (u *FetchUnit) Fetch(m *Machine) {
	if !m.fetch.HasInsn {
		return
	}

	if m.fetchFromNextCycle {
		m.fetchFromNextCycle = false
		return
	}

	fetchPC := m.pc
	index := (fetchPC - codeBaseAddress) / 4
	if index < 0 || int(index) >= len(m.code) {
		m.err = fmt.Errorf("pipeline: fetch past code memory at pc %d", fetchPC)
		m.fetch.HasInsn = false
		return
	}

	in := m.code[index]
	m.fetch.PC = fetchPC
	m.fetch.Insn = in
	next := Latch{HasInsn: true, PC: fetchPC, Insn: in}

	m.pc = fetchPC + 4

	if m.btb != nil && in.Opcode.IsControlTransfer() {
		if target, predictedTaken := m.btb.Lookup(fetchPC); predictedTaken {
			next.PredictedTaken = true
			next.PredictedTarget = target
			m.pc = target
			m.fetchFromNextCycle = true
		}
	}

	m.decode = next

	if in.Opcode == isa.HALT {
		m.fetch.HasInsn = false
	}
}

// ExecuteUnit is purely combinational: ALU, address calculation, flag
// update, and control redirection for branches and jumps.
type ExecuteUnit struct{}

// NewExecuteUnit returns an execute unit.
func NewExecuteUnit() *ExecuteUnit {
	return &ExecuteUnit{}
}

// Execute runs the execute stage for one cycle.
func (u *ExecuteUnit) Execute(m *Machine) {
	m.execFwd.Reset()

	lt := m.execute
	if !lt.HasInsn {
		m.memory = Latch{}
		return
	}

	in := lt.Insn
	next := lt

	switch in.Opcode {
	case isa.ADD:
		next.ResultBuffer = lt.Rs1Value + lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.SUB:
		next.ResultBuffer = lt.Rs1Value - lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.MUL:
		next.ResultBuffer = lt.Rs1Value * lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.DIV:
		if lt.Rs2Value == 0 {
			m.err = fmt.Errorf("pipeline: division by zero at pc %d", lt.PC)
			return
		}
		next.ResultBuffer = lt.Rs1Value / lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.AND:
		// Compatibility quirk inherited from the original implementation:
		// AND uses logical-and, not bitwise-and.
		next.ResultBuffer = logicalAnd(lt.Rs1Value, lt.Rs2Value)
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.OR:
		next.ResultBuffer = lt.Rs1Value | lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.XOR:
		next.ResultBuffer = lt.Rs1Value ^ lt.Rs2Value
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.ADDL:
		next.ResultBuffer = lt.Rs1Value + int32(in.Imm)
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.SUBL:
		next.ResultBuffer = lt.Rs1Value - int32(in.Imm)
		m.flags.SetFromResult(next.ResultBuffer)
	case isa.MOVC:
		next.ResultBuffer = int32(in.Imm)

	case isa.LOAD:
		next.MemoryAddress = lt.Rs1Value + int32(in.Imm)
	case isa.LOADP:
		next.MemoryAddress = lt.Rs1Value + int32(in.Imm)
		next.AuxBuffer = lt.Rs1Value + 4
		m.execFwd.Publish(in.Rs1, next.AuxBuffer)
	case isa.STORE:
		next.MemoryAddress = lt.Rs2Value + int32(in.Imm)
	case isa.STOREP:
		next.MemoryAddress = lt.Rs2Value + int32(in.Imm)
		next.AuxBuffer = lt.Rs2Value + 4
		m.execFwd.Publish(in.Rs2, next.AuxBuffer)

	case isa.CMP:
		m.flags.SetFromResult(lt.Rs1Value - lt.Rs2Value)
	case isa.CML:
		m.flags.SetFromResult(lt.Rs1Value - int32(in.Imm))

	case isa.BZ:
		u.resolveBranch(m, lt, m.flags.Z)
	case isa.BNZ:
		u.resolveBranch(m, lt, !m.flags.Z)
	case isa.BP:
		u.resolveBranch(m, lt, m.flags.P)
	case isa.BNP:
		u.resolveBranch(m, lt, !m.flags.P)
	case isa.BN:
		u.resolveBranch(m, lt, m.flags.N)
	case isa.BNN:
		u.resolveBranch(m, lt, !m.flags.N)

	case isa.JUMP:
		u.redirect(m, lt, true, lt.Rs1Value+int32(in.Imm))

	case isa.JALR:
		next.JumpBuffer = lt.PC + 4
		m.execFwd.Publish(in.Rd, next.JumpBuffer)
		u.redirect(m, lt, true, lt.Rs1Value+int32(in.Imm))

	case isa.HALT, isa.NOP:
	}

	if in.Opcode.ProducesResultAtExecute() {
		m.execFwd.Publish(in.Rd, next.ResultBuffer)
	}

	m.memory = next
}

func (u *ExecuteUnit) resolveBranch(m *Machine, lt Latch, taken bool) {
	target := lt.PC + 4
	if taken {
		target = lt.PC + int32(lt.Insn.Imm)
	}
	u.redirect(m, lt, taken, target)
}

// redirect trains the BTB (if enabled) and flushes on misprediction. This
// is the general mechanism behind every control-transfer instruction;
// with no BTB configured, every instruction is "predicted" fall-through,
// so any taken branch or any jump (always "taken") flushes and refetches,
// which is exactly the variant-1 flush-and-refetch behaviour.
func (u *ExecuteUnit) redirect(m *Machine, lt Latch, taken bool, actualTarget int32) {
	if m.btb != nil {
		m.btb.Train(lt.PC, actualTarget, taken)
	}

	predictedTarget := lt.PC + 4
	if lt.PredictedTaken {
		predictedTarget = lt.PredictedTarget
	}

	if actualTarget != predictedTarget {
		m.pc = actualTarget
		m.fetchFromNextCycle = true
		m.decode = Latch{}
		m.fetch.HasInsn = true
	}
}

func logicalAnd(a, b int32) int32 {
	if a != 0 && b != 0 {
		return 1
	}
	return 0
}

// MemoryUnit performs loads and stores against data memory and updates
// the memory-stage forwarding buffer.
type MemoryUnit struct{}

// NewMemoryUnit returns a memory unit.
func NewMemoryUnit() *MemoryUnit {
	return &MemoryUnit{}
}

// Access runs the memory stage for one cycle.
func (u *MemoryUnit) Access(m *Machine) {
	m.memFwd.Reset()

	lt := m.memory
	if !lt.HasInsn {
		m.writeback = Latch{}
		return
	}

	in := lt.Insn
	next := lt

	switch in.Opcode {
	case isa.LOAD, isa.LOADP:
		next.ResultBuffer = m.mem.Read(lt.MemoryAddress)
	case isa.STORE, isa.STOREP:
		m.mem.Write(lt.MemoryAddress, lt.Rs1Value)
	}

	if in.Opcode.HasDestination() {
		value := next.ResultBuffer
		if in.Opcode == isa.JALR {
			value = next.JumpBuffer
		}
		m.memFwd.Publish(in.Rd, value)
	}

	m.writeback = next
}

// WritebackUnit commits the destination register(s) and clears
// reservation bits.
type WritebackUnit struct{}

// NewWritebackUnit returns a writeback unit.
func NewWritebackUnit() *WritebackUnit {
	return &WritebackUnit{}
}

// Commit runs the writeback stage for one cycle, retiring the instruction
// it holds. It reports whether the retired instruction was HALT.
func (u *WritebackUnit) Commit(m *Machine) bool {
	lt := m.writeback
	if !lt.HasInsn {
		return false
	}

	in := lt.Insn

	switch in.Opcode {
	case isa.ADD, isa.SUB, isa.MUL, isa.DIV, isa.AND, isa.OR, isa.XOR,
		isa.ADDL, isa.SUBL, isa.MOVC, isa.LOAD:
		m.regs.Write(in.Rd, lt.ResultBuffer)
		m.reservation.Release(in.Rd)
	case isa.LOADP:
		m.regs.Write(in.Rd, lt.ResultBuffer)
		m.regs.Write(in.Rs1, lt.AuxBuffer)
		m.reservation.Release(in.Rd)
		m.reservation.Release(in.Rs1)
	case isa.STOREP:
		m.regs.Write(in.Rs2, lt.AuxBuffer)
		m.reservation.Release(in.Rs2)
	case isa.JALR:
		m.regs.Write(in.Rd, lt.JumpBuffer)
		m.reservation.Release(in.Rd)
	case isa.STORE, isa.JUMP, isa.BZ, isa.BNZ, isa.BP, isa.BNP, isa.BN, isa.BNN,
		isa.HALT, isa.NOP:
		// Nothing to commit.
	}

	m.retired++
	m.writeback.HasInsn = false

	return in.Opcode == isa.HALT
}
