package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tlox/pkg/value"
)

func TestSetGetDelete(t *testing.T) {
	tab := New()
	key := value.ObjValue(value.NewObjString("name"))

	inserted := tab.Set(key, value.NumberValue(1))
	assert.True(t, inserted)

	val, ok := tab.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1.0, val.AsNumber())

	overwritten := tab.Set(key, value.NumberValue(2))
	assert.False(t, overwritten)

	assert.True(t, tab.Delete(key))
	_, ok = tab.Get(key)
	assert.False(t, ok)
}

func TestGrowsAndPreservesEntriesAcrossResize(t *testing.T) {
	tab := New()
	const n = 200
	for i := 0; i < n; i++ {
		key := value.ObjValue(value.NewObjString(string(rune('a' + i%26)) + itoa(i)))
		tab.Set(key, value.NumberValue(float64(i)))
	}
	assert.Equal(t, n, tab.Count())

	for i := 0; i < n; i++ {
		key := value.ObjValue(value.NewObjString(string(rune('a' + i%26)) + itoa(i)))
		val, ok := tab.Get(key)
		require.True(t, ok)
		assert.Equal(t, float64(i), val.AsNumber())
	}
}

func TestTombstoneSlotIsReusedWithoutDoubleCounting(t *testing.T) {
	tab := New()
	a := value.ObjValue(value.NewObjString("a"))

	tab.Set(a, value.NumberValue(1))
	tab.Delete(a)
	before := tab.Count()
	tab.Set(a, value.NumberValue(2))
	assert.Equal(t, before+1, tab.Count())
}

func TestFindStringMatchesByContentAndHash(t *testing.T) {
	tab := New()
	s := value.NewObjString("hello")
	tab.Set(value.ObjValue(s), value.NilValue())

	found := tab.FindString("hello", value.HashString("hello"))
	require.NotNil(t, found)
	assert.Same(t, s, found)

	assert.Nil(t, tab.FindString("nope", value.HashString("nope")))
}

func TestAddAllCopiesLiveBindings(t *testing.T) {
	src := New()
	dst := New()
	src.Set(value.ObjValue(value.NewObjString("x")), value.NumberValue(1))
	src.Set(value.ObjValue(value.NewObjString("y")), value.NumberValue(2))

	AddAll(src, dst)
	assert.Equal(t, 2, dst.Count())
}

func TestSweepUnmarkedRemovesDeadStringKeys(t *testing.T) {
	tab := New()
	live := value.NewObjString("live")
	dead := value.NewObjString("dead")
	tab.Set(value.ObjValue(live), value.NilValue())
	tab.Set(value.ObjValue(dead), value.NilValue())

	removed := tab.SweepUnmarked(func(o value.Obj) bool { return o == value.Obj(live) })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tab.Count())
}

func TestObjectWrapsAnIndependentTable(t *testing.T) {
	obj := NewObject()
	obj.T.Set(value.NumberValue(1), value.NumberValue(2))
	val, ok := obj.T.Get(value.NumberValue(1))
	require.True(t, ok)
	assert.Equal(t, 2.0, val.AsNumber())
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
