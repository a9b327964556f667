// Package chunk defines the bytecode chunk format and the three heap
// object kinds built directly on top of it: functions, closures and
// upvalues. They live together because a function owns its chunk and a
// closure owns a function, and keeping them in one package (rather than
// threading a dependency on pkg/value's object model back out to pkg/vm)
// avoids an import cycle between the object model and the thing that
// describes a function's code.
//
// Unlike the teacher's Instruction-slice bytecode, a Chunk is a flat byte
// array with a parallel per-byte line table, because the spec's jump
// patching, 16-bit-offset invariant and disassembly all operate at the
// byte level.
package chunk

import "github.com/kristofer/tlox/pkg/value"

// OpCode is a single bytecode operation.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpMod
	OpShl
	OpShr
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpMethod
	OpInherit
	OpTableGet
	OpTableSet
)

var opNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpMod:          "OP_MOD",
	OpShl:          "OP_SHL",
	OpShr:          "OP_SHR",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpJumpIfTrue:   "OP_JUMP_IF_TRUE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpMethod:       "OP_METHOD",
	OpInherit:      "OP_INHERIT",
	OpTableGet:     "OP_TABLE_GET",
	OpTableSet:     "OP_TABLE_SET",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "OP_UNKNOWN"
}

// MaxConstants is the per-chunk constant pool cap: constants are addressed
// by a single byte operand.
const MaxConstants = 256

// MaxJump is the largest forward or backward distance a two-byte jump
// operand can encode.
const MaxJump = 0xFFFF

// Chunk is a bytecode sequence plus a parallel line table plus a
// deduplicated constant pool, owned by a Function.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

// Write appends one byte to the code stream, tagging it with the source
// line it came from.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// AddConstant adds v to the constant pool, deduplicating by value
// equality (which compares strings by content, so two separately compiled
// identical string literals share a slot). Returns -1 if the pool is full.
func (c *Chunk) AddConstant(v value.Value) int {
	for i, existing := range c.Constants {
		if value.Equal(existing, v) {
			return i
		}
	}
	if len(c.Constants) >= MaxConstants {
		return -1
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Function is the compiled form of a function or method: its name (none
// for the implicit top-level script), its parameter count, the number of
// upvalues its closures must capture, and its bytecode.
type Function struct {
	value.ObjHeader
	Name         *value.ObjString
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
}

// NewFunction allocates a function with a fresh, empty chunk.
func NewFunction() *Function {
	return &Function{ObjHeader: value.ObjHeader{Kind: value.ObjFunctionKind}, Chunk: &Chunk{}}
}

func (f *Function) Trace(mark func(value.Obj)) {
	if f.Name != nil {
		mark(f.Name)
	}
	for _, v := range f.Chunk.Constants {
		if v.IsObj() {
			mark(v.AsObj())
		}
	}
}

// Closure pairs a Function with the upvalues it captured at creation.
type Closure struct {
	value.ObjHeader
	Function *Function
	Upvalues []*Upvalue
}

// NewClosure allocates a closure over fn with fn.UpvalueCount empty
// upvalue slots, filled in by the VM's OP_CLOSURE handler.
func NewClosure(fn *Function) *Closure {
	return &Closure{
		ObjHeader: value.ObjHeader{Kind: value.ObjClosureKind},
		Function:  fn,
		Upvalues:  make([]*Upvalue, fn.UpvalueCount),
	}
}

func (c *Closure) Trace(mark func(value.Obj)) {
	mark(c.Function)
	for _, u := range c.Upvalues {
		if u != nil {
			mark(u)
		}
	}
}

// Upvalue is a first-class cell: open, it points at a live VM stack slot;
// closed, it owns its value directly. NextOpen threads the VM's
// open-upvalue list (sorted by slot address descending) and is distinct
// from the GC's own ListNext link.
type Upvalue struct {
	value.ObjHeader
	Location *value.Value
	Closed   value.Value
	NextOpen *Upvalue
}

// NewUpvalue allocates an open upvalue pointing at slot.
func NewUpvalue(slot *value.Value) *Upvalue {
	return &Upvalue{ObjHeader: value.ObjHeader{Kind: value.ObjUpvalueKind}, Location: slot, Closed: value.NilValue()}
}

// Close copies the current slot value into the upvalue's own storage and
// retargets Location at it, so it survives the owning frame's return.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

func (u *Upvalue) Trace(mark func(value.Obj)) {
	// An open upvalue's target is already rooted by the VM stack; only a
	// closed upvalue's owned value needs tracing here.
	if u.Location == &u.Closed && u.Closed.IsObj() {
		mark(u.Closed.AsObj())
	}
}
