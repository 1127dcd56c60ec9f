package pipeline

import "github.com/sarchlab/apexsim/isa"

// Latch is the mutable per-stage snapshot shared by all five pipeline
// stages: fetch, decode, execute, memory, writeback each hold one. Reusing
// a single type (rather than one struct per stage boundary) keeps the
// hand-off between stages a plain struct copy, mirroring the single
// CPU_Stage record the reference implementation threads through every
// stage function.
type Latch struct {
	HasInsn bool
	PC      int32
	Insn    isa.Instruction

	Rs1Value int32
	Rs2Value int32

	ResultBuffer  int32
	MemoryAddress int32
	AuxBuffer     int32
	JumpBuffer    int32

	// PredictedTaken/PredictedTarget record the speculative decision made
	// by the branch target buffer when this instruction was fetched (or
	// the default "not predicted" state when no BTB is configured).
	PredictedTaken  bool
	PredictedTarget int32
}
