package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/tlox/pkg/value"
)

func TestDisassembleListsConstantsAndOpcodes(t *testing.T) {
	fn := NewFunction()
	idx := fn.Chunk.AddConstant(value.NumberValue(42))
	fn.Chunk.Write(byte(OpConstant), 1)
	fn.Chunk.Write(byte(idx), 1)
	fn.Chunk.Write(byte(OpReturn), 1)

	out := Disassemble(fn, "test")
	assert.Contains(t, out, "== test ==")
	assert.Contains(t, out, "OP_CONSTANT")
	assert.Contains(t, out, "OP_RETURN")
}
