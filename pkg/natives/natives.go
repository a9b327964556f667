// Package natives implements the built-in functions the spec treats as
// external collaborators to the VM proper (§1): clock, abs, sqrt, max,
// min, round, sum, and table. Each is registered directly into the
// globals table at VM construction, the way the teacher's
// pkg/vm/primitives.go seeds its globals, but narrowed to the eight the
// spec names rather than the teacher's much broader numeric/string
// surface (see DESIGN.md).
//
// Natives must not reach back into VM internals (so this package cannot
// import pkg/vm): the VM hands over only what registration needs — the
// globals table, the collector, and an interning callback — and gets a
// populated table back.
package natives

import (
	"math"
	"time"

	"github.com/kristofer/tlox/pkg/gc"
	"github.com/kristofer/tlox/pkg/table"
	"github.com/kristofer/tlox/pkg/value"
)

const nativeAllocSize = 40

// Register installs every built-in under its advertised name into
// globals, charging each native function object against collector.
func Register(globals *table.Table, collector *gc.Collector, intern func(string) *value.ObjString) {
	def := func(name string, arity int, fn value.NativeFn) {
		native := &value.ObjNative{
			ObjHeader: value.ObjHeader{Kind: value.ObjNativeKind},
			Name:      name,
			Arity:     arity,
			Fn:        fn,
		}
		collector.Register(native, nativeAllocSize)
		globals.Set(value.ObjValue(intern(name)), value.ObjValue(native))
	}

	def("clock", 0, clockNative)
	def("abs", 1, absNative)
	def("sqrt", 1, sqrtNative)
	def("max", 2, maxNative)
	def("min", 2, minNative)
	def("round", 1, roundNative)
	def("sum", -1, sumNative)
	def("table", 0, tableNativeFn(collector))
}

func numberArg(args []value.Value, i int, who string) (float64, error) {
	if i >= len(args) || !args[i].IsNumber() {
		return 0, numErr(who)
	}
	return args[i].AsNumber(), nil
}

func numErr(who string) error {
	return &argError{msg: who + "() expects number arguments."}
}

type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func clockNative(args []value.Value) (value.Value, error) {
	return value.NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
}

func absNative(args []value.Value) (value.Value, error) {
	n, err := numberArg(args, 0, "abs")
	if err != nil {
		return value.NilValue(), err
	}
	return value.NumberValue(math.Abs(n)), nil
}

func sqrtNative(args []value.Value) (value.Value, error) {
	n, err := numberArg(args, 0, "sqrt")
	if err != nil {
		return value.NilValue(), err
	}
	return value.NumberValue(math.Sqrt(n)), nil
}

func maxNative(args []value.Value) (value.Value, error) {
	a, err := numberArg(args, 0, "max")
	if err != nil {
		return value.NilValue(), err
	}
	b, err := numberArg(args, 1, "max")
	if err != nil {
		return value.NilValue(), err
	}
	return value.NumberValue(math.Max(a, b)), nil
}

func minNative(args []value.Value) (value.Value, error) {
	a, err := numberArg(args, 0, "min")
	if err != nil {
		return value.NilValue(), err
	}
	b, err := numberArg(args, 1, "min")
	if err != nil {
		return value.NilValue(), err
	}
	return value.NumberValue(math.Min(a, b)), nil
}

func roundNative(args []value.Value) (value.Value, error) {
	n, err := numberArg(args, 0, "round")
	if err != nil {
		return value.NilValue(), err
	}
	return value.NumberValue(math.Round(n)), nil
}

func sumNative(args []value.Value) (value.Value, error) {
	total := 0.0
	for i := range args {
		n, err := numberArg(args, i, "sum")
		if err != nil {
			return value.NilValue(), err
		}
		total += n
	}
	return value.NumberValue(total), nil
}

// tableNativeFn closes over the collector so the `table()` constructor
// can charge its allocation the same way every other heap object does.
func tableNativeFn(collector *gc.Collector) value.NativeFn {
	return func(args []value.Value) (value.Value, error) {
		obj := table.NewObject()
		collector.Register(obj, nativeAllocSize)
		return value.ObjValue(obj), nil
	}
}
