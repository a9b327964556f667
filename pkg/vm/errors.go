// Runtime error reporting: a message plus a per-frame stack trace,
// adapted from the teacher's RuntimeError/StackFrame split (see the
// original pkg/vm/errors.go) but trimmed to the fields the spec's
// traceback format actually needs — a source line and a function name
// per frame, innermost first.
package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCompile is returned by Interpret when compilation fails. Diagnostics
// have already been written to stderr by the compiler; this sentinel
// only carries the failure signal back to the caller.
var ErrCompile = errors.New("compile error")

// StackFrame is one call frame's contribution to a runtime traceback.
type StackFrame struct {
	Name string
	Line int
}

// RuntimeError is a language-level runtime failure: a message plus the
// call stack active when it fired, innermost frame first.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, frame := range e.StackTrace {
		fmt.Fprintf(&b, "\n[line %d] in %s", frame.Line, frame.Name)
	}
	return b.String()
}
