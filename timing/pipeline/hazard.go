package pipeline

import "github.com/sarchlab/apexsim/isa"

// DecodeUnit implements decode, register read, and the data-hazard
// resolver in one step, per opcode: it resolves source operands against
// the forwarding buffers and the reservation vector, decides whether the
// instruction can advance into execute, and reserves its destination
// register(s) on advance.
type DecodeUnit struct{}

// NewDecodeUnit returns a decode/hazard-resolution unit.
func NewDecodeUnit() *DecodeUnit {
	return &DecodeUnit{}
}

// read resolves one source register: exec_fwd, then mem_fwd, then a stall
// if the register is reserved by an older in-flight producer, else the
// register file.
func (d *DecodeUnit) read(m *Machine, r int) (value int32, stall bool) {
	if v, ok := m.execFwd.Lookup(r); ok {
		return v, false
	}
	if v, ok := m.memFwd.Lookup(r); ok {
		return v, false
	}
	if m.reservation.Busy(r) {
		return 0, true
	}
	return m.regs.Read(r), false
}

// Decode runs the decode stage for one cycle. It returns true if the
// instruction stalled (and was left in the decode latch for retry).
func (d *DecodeUnit) Decode(m *Machine) bool {
	lt := m.decode

	if !lt.HasInsn {
		m.execute = Latch{}
		return false
	}

	in := lt.Insn
	var rs1V, rs2V int32
	var stall bool
	var reserve []int

	switch in.Opcode {
	case isa.ADD, isa.SUB, isa.MUL, isa.DIV, isa.AND, isa.OR, isa.XOR:
		var s1, s2 bool
		rs1V, s1 = d.read(m, in.Rs1)
		rs2V, s2 = d.read(m, in.Rs2)
		dstBusy := m.reservation.Busy(in.Rd) && in.Rd != in.Rs1 && in.Rd != in.Rs2
		stall = s1 || s2 || dstBusy
		if !stall && in.Rd != in.Rs1 && in.Rd != in.Rs2 {
			reserve = append(reserve, in.Rd)
		}

	case isa.ADDL, isa.SUBL:
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		dstBusy := m.reservation.Busy(in.Rd) && in.Rd != in.Rs1
		stall = s1 || dstBusy
		if !stall && in.Rd != in.Rs1 {
			reserve = append(reserve, in.Rd)
		}

	case isa.MOVC:
		stall = m.reservation.Busy(in.Rd)
		if !stall {
			reserve = append(reserve, in.Rd)
		}

	case isa.LOAD:
		dstBusy := m.reservation.Busy(in.Rd) && in.Rd != in.Rs1
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		stall = dstBusy || s1
		if !stall && in.Rd != in.Rs1 {
			reserve = append(reserve, in.Rd)
		}

	case isa.LOADP:
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		dstBusy := m.reservation.Busy(in.Rd) && in.Rd != in.Rs1
		stall = s1 || dstBusy
		if !stall {
			reserve = append(reserve, in.Rs1)
			if in.Rd != in.Rs1 {
				reserve = append(reserve, in.Rd)
			}
		}

	case isa.STORE:
		var s1, s2 bool
		rs1V, s1 = d.read(m, in.Rs1)
		rs2V, s2 = d.read(m, in.Rs2)
		stall = s1 || s2

	case isa.STOREP:
		var s1, s2 bool
		rs1V, s1 = d.read(m, in.Rs1)
		rs2V, s2 = d.read(m, in.Rs2)
		stall = s1 || s2
		if !stall {
			reserve = append(reserve, in.Rs2)
		}

	case isa.CMP:
		var s1, s2 bool
		rs1V, s1 = d.read(m, in.Rs1)
		rs2V, s2 = d.read(m, in.Rs2)
		stall = s1 || s2

	case isa.CML:
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		stall = s1

	case isa.JALR:
		dstBusy := m.reservation.Busy(in.Rd) && in.Rd != in.Rs1
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		stall = dstBusy || s1
		if !stall && in.Rd != in.Rs1 {
			reserve = append(reserve, in.Rd)
		}

	case isa.JUMP:
		var s1 bool
		rs1V, s1 = d.read(m, in.Rs1)
		stall = s1

	case isa.BZ, isa.BNZ, isa.BP, isa.BNP, isa.BN, isa.BNN, isa.HALT, isa.NOP:
		// No operands, no reservations.
	}

	if stall {
		m.fetchFromNextCycle = true
		m.execute = Latch{}
		return true
	}

	for _, r := range reserve {
		m.reservation.Reserve(r)
	}

	next := lt
	next.Rs1Value = rs1V
	next.Rs2Value = rs2V
	m.execute = next
	m.decode.HasInsn = false

	return false
}
