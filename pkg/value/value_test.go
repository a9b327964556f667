package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFalseyRule(t *testing.T) {
	assert.True(t, NilValue().Falsey())
	assert.True(t, BoolValue(false).Falsey())
	assert.False(t, BoolValue(true).Falsey())
	assert.False(t, NumberValue(0).Falsey())
	assert.False(t, ObjValue(NewObjString("")).Falsey())
}

func TestEqualComparesStringsByContent(t *testing.T) {
	a := NewObjString("hi")
	b := NewObjString("hi")
	assert.NotSame(t, a, b)
	assert.True(t, Equal(ObjValue(a), ObjValue(b)))
}

func TestEqualComparesOtherObjectsByIdentity(t *testing.T) {
	a := &ObjNative{ObjHeader: ObjHeader{Kind: ObjNativeKind}, Name: "x"}
	b := &ObjNative{ObjHeader: ObjHeader{Kind: ObjNativeKind}, Name: "x"}
	assert.False(t, Equal(ObjValue(a), ObjValue(b)))
	assert.True(t, Equal(ObjValue(a), ObjValue(a)))
}

func TestEqualNumberNaNIsNeverEqual(t *testing.T) {
	nan := NumberValue(math.NaN())
	assert.False(t, Equal(nan, nan))
}

func TestHashValueIsStableForEqualStrings(t *testing.T) {
	a := ObjValue(NewObjString("same"))
	b := ObjValue(NewObjString("same"))
	assert.Equal(t, HashValue(a), HashValue(b))
}

func TestHashStringMatchesKnownFNV1a(t *testing.T) {
	// FNV-1a of the empty string is the offset basis itself.
	assert.Equal(t, uint32(0x811c9dc5), HashString(""))
}
