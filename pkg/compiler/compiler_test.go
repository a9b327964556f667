package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tlox/pkg/chunk"
	"github.com/kristofer/tlox/pkg/value"
)

func compileSrc(t *testing.T, source string) (*chunk.Function, bool) {
	t.Helper()
	c := New(source, nil, func(s string) *value.ObjString { return value.NewObjString(s) })
	return c.Compile()
}

func TestCompileNumberLiteral(t *testing.T) {
	fn, ok := compileSrc(t, "1 + 2;")
	require.True(t, ok)
	require.NotNil(t, fn)
	assert.Contains(t, fn.Chunk.Code, byte(chunk.OpAdd))
	assert.Contains(t, fn.Chunk.Code, byte(chunk.OpReturn))
}

func TestCompileStringConstantsDeduplicate(t *testing.T) {
	fn, ok := compileSrc(t, `print "hi"; print "hi";`)
	require.True(t, ok)
	count := 0
	for _, v := range fn.Chunk.Constants {
		if s, isStr := v.AsString(); isStr && s.Chars == "hi" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical string literals should share one constant slot")
}

func TestCompileLocalsAndScopes(t *testing.T) {
	fn, ok := compileSrc(t, `{ var a = 1; var b = 2; print a + b; }`)
	require.True(t, ok)
	assert.Contains(t, fn.Chunk.Code, byte(chunk.OpGetLocal))
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn, ok := compileSrc(t, `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`)
	require.True(t, ok)
	assert.Contains(t, fn.Chunk.Code, byte(chunk.OpClosure))
}

func TestCompileClassWithSuperclassEmitsInherit(t *testing.T) {
	fn, ok := compileSrc(t, `
		class A {}
		class B < A {}
	`)
	require.True(t, ok)
	assert.Contains(t, fn.Chunk.Code, byte(chunk.OpInherit))
}

func TestCompileSelfInheritingClassIsError(t *testing.T) {
	_, ok := compileSrc(t, `class A < A {}`)
	assert.False(t, ok)
}

func TestCompileTopLevelReturnValueIsError(t *testing.T) {
	_, ok := compileSrc(t, `return 1;`)
	assert.False(t, ok)
}

func TestCompileInitReturnsValueIsError(t *testing.T) {
	_, ok := compileSrc(t, `
		class A {
			init() { return 1; }
		}
	`)
	assert.False(t, ok)
}

func TestCompileInitBareReturnIsAllowed(t *testing.T) {
	_, ok := compileSrc(t, `
		class A {
			init() { return; }
		}
	`)
	assert.True(t, ok)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, ok := compileSrc(t, `break;`)
	assert.False(t, ok)
}

func TestCompileContinueOutsideLoopIsError(t *testing.T) {
	_, ok := compileSrc(t, `continue;`)
	assert.False(t, ok)
}

func TestCompileUninitializedLocalReadIsError(t *testing.T) {
	_, ok := compileSrc(t, `{ var a = a; }`)
	assert.False(t, ok)
}

func TestCompileTooManyLocalsIsError(t *testing.T) {
	var b strings.Builder
	b.WriteString("{\n")
	for i := 0; i < maxLocals+1; i++ {
		b.WriteString("var v")
		b.WriteString(itoa(i))
		b.WriteString(" = 0;\n")
	}
	b.WriteString("}\n")
	_, ok := compileSrc(t, b.String())
	assert.False(t, ok)
}

func TestCompileSyntaxErrorRecoversAtStatementBoundary(t *testing.T) {
	// The first statement is broken; synchronize() should resume at the
	// second, which is valid, so the one error is reported without
	// cascading and compilation still fails as a whole.
	_, ok := compileSrc(t, `var = ; var ok = 1;`)
	assert.False(t, ok)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
