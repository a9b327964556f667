// Package value defines the language's tagged Value union and the shared
// heap-object header every garbage-collected object carries.
//
// Concrete object kinds (strings here; functions, closures and upvalues in
// pkg/chunk; classes, instances and bound methods in pkg/vm; the
// user-facing table in pkg/table) each embed ObjHeader and implement Obj.
// Keeping the interface thin — Header plus Trace — lets every other package
// define its own object kinds without importing back into this one, and
// lets the collector in pkg/gc walk the heap without importing any of them.
package value

import (
	"math"
	"unsafe"
)

// Kind tags a Value's active variant.
type Kind int

const (
	Nil Kind = iota
	Bool
	Number
	ObjectVal
	// Empty is an internal sentinel used only as a hash-table slot marker.
	// It is never exposed to programs.
	Empty
)

// Value is a tagged union: nil, bool, number, object pointer, or the
// internal empty sentinel. It is deliberately small and copied by value,
// the way the original bytecode VM passes values around.
type Value struct {
	kind Kind
	b    bool
	n    float64
	obj  Obj
}

func NilValue() Value             { return Value{kind: Nil} }
func BoolValue(b bool) Value      { return Value{kind: Bool, b: b} }
func NumberValue(n float64) Value { return Value{kind: Number, n: n} }
func ObjValue(o Obj) Value        { return Value{kind: ObjectVal, obj: o} }
func EmptyValue() Value           { return Value{kind: Empty} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNil() bool    { return v.kind == Nil }
func (v Value) IsBool() bool   { return v.kind == Bool }
func (v Value) IsNumber() bool { return v.kind == Number }
func (v Value) IsObj() bool    { return v.kind == ObjectVal }
func (v Value) IsEmpty() bool  { return v.kind == Empty }

func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Obj        { return v.obj }

// Falsey implements the language's truthiness rule: only nil and false are
// falsey; everything else, including 0 and the empty string, is truthy.
func (v Value) Falsey() bool {
	return v.kind == Nil || (v.kind == Bool && !v.b)
}

// AsString returns the underlying *ObjString and whether v holds one.
func (v Value) AsString() (*ObjString, bool) {
	if v.kind != ObjectVal {
		return nil, false
	}
	s, ok := v.obj.(*ObjString)
	return s, ok
}

// Equal implements the language's == operator semantics: same-tag, then by
// payload; numbers compare as IEEE-754 doubles (so NaN != NaN); objects
// compare by identity except that strings compare by content. Because
// strings are always interned (see pkg/vm's intern step), identity and
// content equality coincide in practice, but comparing content directly
// keeps Equal correct even before a value has been through interning (e.g.
// while the compiler is deduplicating its constant pool).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Nil, Empty:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case ObjectVal:
		if as, ok := a.obj.(*ObjString); ok {
			if bs, ok := b.obj.(*ObjString); ok {
				return as.Chars == bs.Chars
			}
			return false
		}
		return a.obj == b.obj
	}
	return false
}

// HashValue implements the per-kind hash formulas spec'd for the table:
// fixed odd primes for booleans, a fixed constant for nil, FNV-1a for
// strings, a bit-pun of v+1.0 for numbers, and pointer identity for any
// other object.
func HashValue(v Value) uint32 {
	switch v.kind {
	case Bool:
		if v.b {
			return 3
		}
		return 5
	case Nil:
		return 7
	case Number:
		return hashDouble(v.n)
	case ObjectVal:
		if s, ok := v.obj.(*ObjString); ok {
			return s.Hash
		}
		return hashPointer(v.obj)
	case Empty:
		return 0
	}
	return 0
}

func hashDouble(d float64) uint32 {
	bits := math.Float64bits(d + 1.0)
	return uint32(bits) + uint32(bits>>32)
}

func hashPointer(o Obj) uint32 {
	return uint32(uintptr(unsafe.Pointer(o.Header())))
}

// HashString computes the FNV-1a hash used for every interned string.
func HashString(s string) uint32 {
	const offsetBasis = 0x811c9dc5
	const prime = 0x01000193
	h := uint32(offsetBasis)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// ObjKind tags a heap object's concrete type, independent of which package
// defines its struct.
type ObjKind int

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
	ObjNativeKind
	ObjTableKind
)

// ObjHeader is the fixed-size header every heap object embeds: a kind tag,
// the collector's mark bit, the intrusive link threading the global object
// list, and the byte size charged against the allocator's running total.
type ObjHeader struct {
	Kind     ObjKind
	Marked   bool
	ListNext Obj
	Size     uintptr
}

// Header lets Obj implementations satisfy the Obj interface in one line:
// `func (x *X) Header() *value.ObjHeader { return &x.ObjHeader }`.
func (h *ObjHeader) Header() *ObjHeader { return h }

// Obj is implemented by every heap-allocated object kind. Trace blackens
// the object: it calls mark on every Obj it directly references, letting
// the collector trace the heap without knowing any concrete object types.
type Obj interface {
	Header() *ObjHeader
	Trace(mark func(Obj))
}

// ObjString is an immutable, interned, length-prefixed UTF-8 string with a
// precomputed FNV-1a hash.
type ObjString struct {
	ObjHeader
	Chars string
	Hash  uint32
}

// NewObjString constructs a string object. Callers are responsible for
// routing it through the intern table (see pkg/vm) so that two strings
// with identical bytes share identity, per the interning invariant.
func NewObjString(s string) *ObjString {
	return &ObjString{ObjHeader: ObjHeader{Kind: ObjStringKind}, Chars: s, Hash: HashString(s)}
}

func (s *ObjString) Trace(func(Obj)) {}

// NativeFn is the calling convention for a built-in function: it receives
// its already-evaluated arguments and returns a value or an error that
// becomes a runtime error.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host-language function registered under Name. Arity
// is -1 for natives that accept a variable number of arguments.
type ObjNative struct {
	ObjHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) Trace(func(Obj)) {}
