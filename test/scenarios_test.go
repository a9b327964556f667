// Package test exercises the interpreter end to end, black-box, the way
// the teacher's top-level test package runs whole programs through a
// fresh VM rather than poking at compiler or VM internals directly.
package test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tlox/pkg/vm"
)

func runProgram(t *testing.T, source string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := vm.New(&out, &errOut)
	err := machine.Interpret(source)
	return out.String(), err
}

// Closures capture their surrounding locals by reference: two closures
// made from the same call share the same upvalue cell.
func TestClosuresCaptureByReference(t *testing.T) {
	out, err := runProgram(t, `
		fun makeAccount(balance) {
			fun deposit(amount) {
				balance = balance + amount;
				return balance;
			}
			fun withdraw(amount) {
				balance = balance - amount;
				return balance;
			}
			var account = table();
			account["deposit"] = deposit;
			account["withdraw"] = withdraw;
			return account;
		}
		var account = makeAccount(100);
		print account["deposit"](50);
		print account["withdraw"](30);
		print account["deposit"](10);
	`)
	require.NoError(t, err)
	assert.Equal(t, "150\n120\n130\n", out)
}

// Classes with a user-defined init, fields, and single inheritance: the
// subclass's init can call the superclass's via super, and both see the
// same instance through `this`.
func TestClassInitializerAndInheritance(t *testing.T) {
	out, err := runProgram(t, `
		class Shape {
			init(name) {
				this.name = name;
			}
			describe() {
				print this.name + " is a shape";
			}
		}
		class Circle < Shape {
			init(name, radius) {
				super.init(name);
				this.radius = radius;
			}
			describe() {
				super.describe();
				print "radius = " + radius_to_string(this.radius);
			}
		}
		fun radius_to_string(r) {
			if (r == 5) return "5";
			return "?";
		}
		var c = Circle("circle", 5);
		c.describe();
	`)
	require.NoError(t, err)
	assert.Equal(t, "circle is a shape\nradius = 5\n", out)
}

// Two string literals with identical content produce value-equal and
// (by the interning invariant) identical-identity strings, so `==`
// reports true even when one is built through concatenation.
func TestStringInterningAndEquality(t *testing.T) {
	out, err := runProgram(t, `
		var a = "hello" + " " + "world";
		var b = "hello world";
		print a == b;
		print a;
	`)
	require.NoError(t, err)
	assert.Equal(t, "true\nhello world\n", out)
}

// An upvalue captured by a closure outlives the scope it closed over:
// OP_CLOSE_UPVALUE must copy the value out before the frame's locals are
// discarded.
func TestUpvalueSurvivesScopeExit(t *testing.T) {
	out, err := runProgram(t, `
		fun make() {
			var captured;
			{
				var local = "inner";
				fun grab() { return local; }
				captured = grab;
			}
			return captured();
		}
		print make();
	`)
	require.NoError(t, err)
	assert.Equal(t, "inner\n", out)
}

// break exits the loop entirely; continue skips the rest of the body and
// goes on with the increment clause.
func TestBreakAndContinueInForLoop(t *testing.T) {
	out, err := runProgram(t, `
		for (var i = 0; i < 6; i = i + 1) {
			if (i == 2) continue;
			if (i == 5) break;
			print i;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n3\n4\n", out)
}

// A runtime type error during arithmetic produces a traceback listing
// every active frame, innermost first, ending at the script.
func TestRuntimeTypeErrorProducesTraceback(t *testing.T) {
	_, err := runProgram(t, `
		fun divide(a, b) {
			return a / b;
		}
		fun compute() {
			return divide(1, "two");
		}
		compute();
	`)
	require.Error(t, err)
	re, ok := err.(*vm.RuntimeError)
	require.True(t, ok)
	msg := re.Error()
	assert.Contains(t, msg, "Operands must be numbers.")
	assert.Contains(t, msg, "in divide")
	assert.Contains(t, msg, "in compute")
	assert.Contains(t, msg, "in script")
}

// A REPL-style sequence of independent Interpret calls against the same
// VM shares globals and the string-intern pool across calls.
func TestPersistentStateAcrossInterpretCalls(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := vm.New(&out, &errOut)

	require.NoError(t, machine.Interpret(`var counter = 0;`))
	require.NoError(t, machine.Interpret(`counter = counter + 1;`))
	require.NoError(t, machine.Interpret(`print counter;`))

	assert.Equal(t, "1\n", out.String())
}
