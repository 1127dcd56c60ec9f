// Package asm parses APEX assembly text into a decoded instruction
// stream, the external collaborator that produces the []isa.Instruction
// slice the pipeline core consumes.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/apexsim/isa"
)

// operandShape describes how many registers and whether an immediate
// follows the mnemonic, and which role each register plays.
type operandShape struct {
	rd, rs1, rs2 bool
	imm          bool
}

var shapes = map[isa.Opcode]operandShape{
	isa.ADD: {rd: true, rs1: true, rs2: true},
	isa.SUB: {rd: true, rs1: true, rs2: true},
	isa.MUL: {rd: true, rs1: true, rs2: true},
	isa.DIV: {rd: true, rs1: true, rs2: true},
	isa.AND: {rd: true, rs1: true, rs2: true},
	isa.OR:  {rd: true, rs1: true, rs2: true},
	isa.XOR: {rd: true, rs1: true, rs2: true},

	isa.ADDL: {rd: true, rs1: true, imm: true},
	isa.SUBL: {rd: true, rs1: true, imm: true},
	isa.MOVC: {rd: true, imm: true},

	isa.LOAD:  {rd: true, rs1: true, imm: true},
	isa.LOADP: {rd: true, rs1: true, imm: true},
	isa.STORE: {rs1: true, rs2: true, imm: true},
	isa.STOREP: {rs1: true, rs2: true, imm: true},

	isa.CMP: {rs1: true, rs2: true},
	isa.CML: {rs1: true, imm: true},

	isa.BZ:  {imm: true},
	isa.BNZ: {imm: true},
	isa.BP:  {imm: true},
	isa.BNP: {imm: true},
	isa.BN:  {imm: true},
	isa.BNN: {imm: true},

	isa.JUMP: {rs1: true, imm: true},
	isa.JALR: {rd: true, rs1: true, imm: true},

	isa.HALT: {},
	isa.NOP:  {},
}

// ParseError reports a malformed assembly line, with its 1-based line
// number, for the command-line front end to report to the user.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Msg)
}

// Parse reads whitespace/comma-separated APEX assembly text, one
// instruction per line, ';'-led comments and blank lines ignored, and
// returns the decoded instruction stream.
func Parse(text string) ([]isa.Instruction, error) {
	var program []isa.Instruction

	for lineNo, raw := range strings.Split(text, "\n") {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		in, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo + 1, Msg: err.Error()}
		}
		program = append(program, in)
	}

	if len(program) == 0 {
		return nil, fmt.Errorf("asm: empty program")
	}

	return program, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

func parseLine(line string) (isa.Instruction, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return isa.Instruction{}, fmt.Errorf("empty instruction")
	}

	mnemonic := strings.ToUpper(fields[0])
	op, ok := isa.Lookup(mnemonic)
	if !ok {
		return isa.Instruction{}, fmt.Errorf("unknown mnemonic %q", fields[0])
	}

	shape, ok := shapes[op]
	if !ok {
		return isa.Instruction{}, fmt.Errorf("unhandled opcode %q", mnemonic)
	}

	operands := fields[1:]
	want := operandCount(shape)
	if len(operands) != want {
		return isa.Instruction{}, fmt.Errorf("%s expects %d operand(s), got %d", mnemonic, want, len(operands))
	}

	in := isa.Instruction{Opcode: op}
	idx := 0

	if shape.rd {
		r, err := parseRegister(operands[idx])
		if err != nil {
			return isa.Instruction{}, err
		}
		in.Rd = r
		idx++
	}
	if shape.rs1 {
		r, err := parseRegister(operands[idx])
		if err != nil {
			return isa.Instruction{}, err
		}
		in.Rs1 = r
		idx++
	}
	if shape.rs2 {
		r, err := parseRegister(operands[idx])
		if err != nil {
			return isa.Instruction{}, err
		}
		in.Rs2 = r
		idx++
	}
	if shape.imm {
		v, err := parseImmediate(operands[idx])
		if err != nil {
			return isa.Instruction{}, err
		}
		in.Imm = v
		idx++
	}

	return in, nil
}

func operandCount(s operandShape) int {
	n := 0
	if s.rd {
		n++
	}
	if s.rs1 {
		n++
	}
	if s.rs2 {
		n++
	}
	if s.imm {
		n++
	}
	return n
}

func parseRegister(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 || (tok[0] != 'R' && tok[0] != 'r') {
		return 0, fmt.Errorf("expected register operand, got %q", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid register %q", tok)
	}
	if n < 0 || n >= 16 {
		return 0, fmt.Errorf("register out of range %q", tok)
	}
	return n, nil
}

func parseImmediate(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimPrefix(tok, "#")
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q", tok)
	}
	return n, nil
}
