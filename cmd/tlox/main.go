// Command tlox is the interpreter's entry point: no arguments starts a
// REPL, one argument runs a source file, and anything else is a usage
// error. It follows the shape of the teacher's cmd/smog/main.go but
// drops the compile/disassemble subcommands and bytecode file format,
// which are explicitly out of scope here.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/kristofer/tlox/pkg/vm"
)

const usageStatus = 64
const ioErrorStatus = 74

func main() {
	switch len(os.Args) {
	case 1:
		runREPL()
	case 2:
		os.Exit(runFile(os.Args[1]))
	default:
		fmt.Fprintln(os.Stderr, "Usage: tlox [path]")
		os.Exit(usageStatus)
	}
}

// runFile reads, compiles, and executes the source file at path,
// returning the process exit status: 0 on success, 65 on a compile
// error, 70 on a runtime error, 74 if the file could not be read.
func runFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "I/O error: %v\n", err)
		return ioErrorStatus
	}

	machine := vm.New(os.Stdout, os.Stderr)
	if err := machine.Interpret(string(data)); err != nil {
		if err == vm.ErrCompile {
			return 65
		}
		fmt.Fprintln(os.Stderr, err)
		return 70
	}
	return 0
}

// runREPL reads one line at a time from standard input, compiling and
// executing each against a VM whose globals and interned strings persist
// across lines, until the input stream ends.
func runREPL() {
	machine := vm.New(os.Stdout, os.Stderr)
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if err := machine.Interpret(line); err != nil && err != vm.ErrCompile {
			fmt.Fprintln(os.Stderr, err)
		}
		fmt.Print("> ")
	}
	fmt.Println()

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "I/O error: %v\n", err)
		os.Exit(ioErrorStatus)
	}
}
