package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (stdout string, err error) {
	t.Helper()
	var out bytes.Buffer
	var errBuf bytes.Buffer
	machine := New(&out, &errBuf)
	err = machine.Interpret(source)
	return out.String(), err
}

func TestArithmetic(t *testing.T) {
	out, err := run(t, `print 3 + 4 * 2;`)
	require.NoError(t, err)
	assert.Equal(t, "11\n", out)
}

func TestModuloAndShifts(t *testing.T) {
	out, err := run(t, `print 7 % 3; print 1 << 4; print 256 >> 4;`)
	require.NoError(t, err)
	assert.Equal(t, "1\n16\n16\n", out)
}

func TestStringConcatenationInterns(t *testing.T) {
	out, err := run(t, `
		var a = "foo" + "bar";
		var b = "foobar";
		print a == b;
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestClosureCapturesByReference(t *testing.T) {
	out, err := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestUpvalueClosesOnScopeExit(t *testing.T) {
	out, err := run(t, `
		var globalOne;
		var globalTwo;
		fun main() {
			var a = "captured";
			fun one() { print a; }
			fun two() { print a; }
			globalOne = one;
			globalTwo = two;
		}
		main();
		globalOne();
		globalTwo();
	`)
	require.NoError(t, err)
	assert.Equal(t, "captured\ncaptured\n", out)
}

func TestClassesAndInheritanceWithInit(t *testing.T) {
	out, err := run(t, `
		class Animal {
			init(name) {
				this.name = name;
			}
			speak() {
				print this.name + " makes a sound";
			}
		}
		class Dog < Animal {
			speak() {
				super.speak();
				print this.name + " barks";
			}
		}
		var d = Dog("Rex");
		d.speak();
	`)
	require.NoError(t, err)
	assert.Equal(t, "Rex makes a sound\nRex barks\n", out)
}

func TestBreakAndContinue(t *testing.T) {
	out, err := run(t, `
		var i = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 3) continue;
			if (i == 6) break;
			print i;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n4\n5\n", out)
}

func TestRuntimeErrorTraceback(t *testing.T) {
	_, err := run(t, `
		fun inner() {
			return 1 + nil;
		}
		fun outer() {
			return inner();
		}
		outer();
	`)
	require.Error(t, err)
	re, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Contains(t, re.Error(), "Operands must be two numbers or two strings.")
	assert.Contains(t, re.Error(), "in inner")
	assert.Contains(t, re.Error(), "in outer")
	assert.Contains(t, re.Error(), "in script")
}

func TestUndefinedGlobalGet(t *testing.T) {
	_, err := run(t, `print missing;`)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Undefined variable 'missing'."))
}

func TestSetGlobalRollsBackOnMissing(t *testing.T) {
	var out, errBuf bytes.Buffer
	machine := New(&out, &errBuf)
	err := machine.Interpret(`missing = 1;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'missing'.")

	// The failed assignment must not have defined the global: a second
	// reference on the same VM still fails instead of returning 1.
	err2 := machine.Interpret(`print missing;`)
	require.Error(t, err2)
}

func TestTableGetSetAndNatives(t *testing.T) {
	out, err := run(t, `
		var t = table();
		t["x"] = 10;
		print t["x"];
		print t["missing"];
		print max(3, 7);
		print abs(-5);
	`)
	require.NoError(t, err)
	assert.Equal(t, "10\nnil\n7\n5\n", out)
}

func TestStackOverflowOnDeepRecursion(t *testing.T) {
	_, err := run(t, `
		fun recurse() {
			return recurse();
		}
		recurse();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stack overflow.")
}

func TestCompileErrorReturnsSentinel(t *testing.T) {
	_, err := run(t, `var = ;`)
	require.Error(t, err)
	assert.Equal(t, ErrCompile, err)
}
