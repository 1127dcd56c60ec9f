// Command apexsim is the command-line front end for the APEX pipeline
// simulator: it reads an assembly file, builds a Machine, and drives it
// in one of three modes selected by its positional arguments.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sarchlab/apexsim/asm"
	"github.com/sarchlab/apexsim/debug"
	"github.com/sarchlab/apexsim/isa"
	"github.com/sarchlab/apexsim/timing/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	flags := flag.NewFlagSet("apexsim", flag.ContinueOnError)
	v := flags.Bool("v", false, "print decoded program and final state")
	predict := flags.Bool("predict", false, "enable the BTB + 2-bit saturating branch predictor (variant 2)")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	args = flags.Args()

	var opts []pipeline.Option
	if *predict {
		opts = append(opts, pipeline.WithBranchPredictor())
	}

	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: apexsim <input_file> [simulate <N> | single_step]")
		return 1
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "apexsim: %v\n", err)
		return 1
	}

	program, err := asm.Parse(string(data))
	if err != nil {
		fmt.Fprintf(stderr, "apexsim: %v\n", err)
		return 1
	}

	if *v {
		printProgram(stdout, program)
	}

	switch {
	case len(args) == 1:
		return runToHalt(program, stdout, *v, opts...)
	case len(args) == 3 && args[1] == "simulate":
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			fmt.Fprintln(stderr, "apexsim: simulate requires a positive cycle count")
			return 1
		}
		return runBounded(program, n, stdout, *v, opts...)
	case len(args) == 2 && args[1] == "single_step":
		return runSingleStep(program, opts...)
	default:
		fmt.Fprintln(stderr, "usage: apexsim <input_file> [simulate <N> | single_step]")
		return 1
	}
}

func printProgram(w *os.File, program []isa.Instruction) {
	fmt.Fprintln(w, "--- program ---")
	for i, in := range program {
		fmt.Fprintf(w, "%d: %s\n", 4000+4*i, in.String())
	}
}

func runToHalt(program []isa.Instruction, w *os.File, verbose bool, opts ...pipeline.Option) int {
	m := pipeline.NewMachine(program, opts...)
	m.Run(0)
	return report(m, w, verbose)
}

func runBounded(program []isa.Instruction, n int, w *os.File, verbose bool, opts ...pipeline.Option) int {
	m := pipeline.NewMachine(program, opts...)
	m.Run(n)
	return report(m, w, verbose)
}

func report(m *pipeline.Machine, w *os.File, verbose bool) int {
	p := debug.NewPrinter(w)
	p.PrintSummary(m)
	if verbose {
		p.PrintRegisters(m.Registers())
		p.PrintDataMemory(m.DataMemory())
		p.PrintFlags(m.Flags())
	}
	if m.Err() != nil {
		return 1
	}
	return 0
}

func runSingleStep(program []isa.Instruction, opts ...pipeline.Option) int {
	m := pipeline.NewMachine(program, opts...)
	if err := runDebugger(m); err != nil {
		fmt.Fprintf(os.Stderr, "apexsim: %v\n", err)
		return 1
	}
	return 0
}
