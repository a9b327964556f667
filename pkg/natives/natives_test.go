package natives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tlox/pkg/gc"
	"github.com/kristofer/tlox/pkg/table"
	"github.com/kristofer/tlox/pkg/value"
)

func setup() *table.Table {
	globals := table.New()
	collector := gc.New()
	intern := func(s string) *value.ObjString { return value.NewObjString(s) }
	Register(globals, collector, intern)
	return globals
}

func getNative(t *testing.T, globals *table.Table, name string) *value.ObjNative {
	t.Helper()
	val, ok := globals.Get(value.ObjValue(value.NewObjString(name)))
	require.True(t, ok, "native %q not registered", name)
	native, ok := val.AsObj().(*value.ObjNative)
	require.True(t, ok)
	return native
}

func TestClockReturnsANumber(t *testing.T) {
	globals := setup()
	native := getNative(t, globals, "clock")
	result, err := native.Fn(nil)
	require.NoError(t, err)
	assert.True(t, result.IsNumber())
}

func TestAbsSqrtMaxMinRound(t *testing.T) {
	globals := setup()

	abs := getNative(t, globals, "abs")
	result, err := abs.Fn([]value.Value{value.NumberValue(-5)})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.AsNumber())

	sqrt := getNative(t, globals, "sqrt")
	result, err = sqrt.Fn([]value.Value{value.NumberValue(9)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.AsNumber())

	maxFn := getNative(t, globals, "max")
	result, err = maxFn.Fn([]value.Value{value.NumberValue(3), value.NumberValue(9)})
	require.NoError(t, err)
	assert.Equal(t, 9.0, result.AsNumber())

	minFn := getNative(t, globals, "min")
	result, err = minFn.Fn([]value.Value{value.NumberValue(3), value.NumberValue(9)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.AsNumber())

	round := getNative(t, globals, "round")
	result, err = round.Fn([]value.Value{value.NumberValue(2.6)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.AsNumber())
}

func TestSumAcceptsVariableArgs(t *testing.T) {
	globals := setup()
	sum := getNative(t, globals, "sum")

	result, err := sum.Fn([]value.Value{value.NumberValue(1), value.NumberValue(2), value.NumberValue(3)})
	require.NoError(t, err)
	assert.Equal(t, 6.0, result.AsNumber())

	result, err = sum.Fn(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.AsNumber())
}

func TestNonNumberArgumentIsError(t *testing.T) {
	globals := setup()
	abs := getNative(t, globals, "abs")
	_, err := abs.Fn([]value.Value{value.BoolValue(true)})
	assert.Error(t, err)
}

func TestTableConstructsAnEmptyTableObject(t *testing.T) {
	globals := setup()
	tableFn := getNative(t, globals, "table")
	result, err := tableFn.Fn(nil)
	require.NoError(t, err)
	obj, ok := result.AsObj().(*table.Object)
	require.True(t, ok)
	assert.Equal(t, 0, obj.T.Count())
}
