package chunk

import (
	"fmt"
	"strings"

	"github.com/kristofer/tlox/pkg/value"
)

// Disassemble renders a human-readable listing of fn's bytecode: one
// line per instruction, each tagged with its source line (or `|` when it
// shares the previous instruction's line), adapted from the operand
// printing in the teacher's cmd/smog disassembleFile. Bytecode
// serialization to disk is out of scope (spec non-goal); this exists
// purely as an in-process debugging aid, never wired to the CLI.
func Disassemble(fn *Function, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	for offset < len(fn.Chunk.Code) {
		offset = disassembleInstruction(&b, fn.Chunk, offset)
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, c *Chunk, offset int) int {
	fmt.Fprintf(b, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		fmt.Fprint(b, "   | ")
	} else {
		fmt.Fprintf(b, "%4d ", c.Lines[offset])
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
		OpGetProperty, OpSetProperty, OpGetSuper, OpClass, OpMethod:
		return constantInstruction(b, op, c, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(b, op, c, offset)
	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(b, op, c, offset)
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return jumpInstruction(b, op, c, offset, 1)
	case OpLoop:
		return jumpInstruction(b, op, c, offset, -1)
	case OpClosure:
		return closureInstruction(b, c, offset)
	default:
		fmt.Fprintf(b, "%s\n", op)
		return offset + 1
	}
}

func constantInstruction(b *strings.Builder, op OpCode, c *Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'\n", op, idx, formatConstant(c.Constants[idx]))
	return offset + 2
}

func byteInstruction(b *strings.Builder, op OpCode, c *Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op, slot)
	return offset + 2
}

func invokeInstruction(b *strings.Builder, op OpCode, c *Chunk, offset int) int {
	idx := c.Code[offset+1]
	argc := c.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'\n", op, argc, idx, formatConstant(c.Constants[idx]))
	return offset + 3
}

func jumpInstruction(b *strings.Builder, op OpCode, c *Chunk, offset int, sign int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(b *strings.Builder, c *Chunk, offset int) int {
	idx := c.Code[offset+1]
	offset += 2
	fmt.Fprintf(b, "%-16s %4d '%s'\n", OpClosure, idx, formatConstant(c.Constants[idx]))

	if fn, ok := c.Constants[idx].AsObj().(*Function); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[offset]
			index := c.Code[offset+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(b, "%04d      |                     %s %d\n", offset, kind, index)
			offset += 2
		}
	}
	return offset
}

func formatConstant(v value.Value) string {
	if s, ok := v.AsString(); ok {
		return s.Chars
	}
	if v.IsNumber() {
		return fmt.Sprintf("%g", v.AsNumber())
	}
	if fn, ok := v.AsObj().(*Function); ok {
		if fn.Name == nil {
			return "<script>"
		}
		return "<fn " + fn.Name.Chars + ">"
	}
	return "?"
}
