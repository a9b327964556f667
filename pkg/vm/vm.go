// Package vm implements the stack-based bytecode interpreter: a value
// stack, a bounded call-frame stack, globals and string-intern tables, an
// open-upvalue list, and the opcode dispatch loop. Classes, instances and
// bound methods are defined alongside it in objects.go since only the VM
// constructs or inspects them.
//
// The central run loop follows the teacher's dispatch style (a Go switch
// over an opcode byte, not a computed-goto jump table — the teacher never
// used one either) but the opcode set and call protocol are the spec's,
// not the teacher's message-send VM.
package vm

import (
	"fmt"
	"io"
	"math"
	"unsafe"

	"github.com/kristofer/tlox/pkg/chunk"
	"github.com/kristofer/tlox/pkg/compiler"
	"github.com/kristofer/tlox/pkg/gc"
	"github.com/kristofer/tlox/pkg/natives"
	"github.com/kristofer/tlox/pkg/table"
	"github.com/kristofer/tlox/pkg/value"
)

const stackMax = 256
const framesMax = 64

const (
	sizeClosure     = 48
	sizeInstance    = 40
	sizeClass       = 40
	sizeBoundMethod = 32
	sizeUpvalue     = 32
	sizeStringBase  = 24
)

// CallFrame is one active call: the closure being executed, the byte
// offset of the next instruction, and the base index into the VM's value
// stack below which this call's locals and arguments do not reach.
type CallFrame struct {
	closure *chunk.Closure
	ip      int
	slots   int
}

// VM is a single interpreter context: one value stack, one set of
// globals, one intern pool, one object heap. REPL sessions reuse a VM
// across calls to Interpret so that globals and interned strings persist
// between lines; a runtime error resets only the stack and frames.
type VM struct {
	stack    [stackMax]value.Value
	stackTop int

	frames     [framesMax]CallFrame
	frameCount int

	globals      *table.Table
	strings      *table.Table
	openUpvalues *chunk.Upvalue
	initString   *value.ObjString

	collector *gc.Collector

	stdout io.Writer
	stderr io.Writer
}

// New constructs a VM with fresh globals, an empty intern pool, the
// pinned "init" string, and every built-in native registered.
func New(stdout, stderr io.Writer) *VM {
	vm := &VM{stdout: stdout, stderr: stderr}
	vm.collector = gc.New()
	vm.globals = table.New()
	vm.strings = table.New()
	vm.collector.SweepWeak = func(marked func(value.Obj) bool) {
		vm.strings.SweepUnmarked(marked)
	}
	vm.collector.AddRootSource(vm.markRoots)
	vm.initString = vm.intern("init")
	natives.Register(vm.globals, vm.collector, vm.intern)
	return vm
}

func (vm *VM) markRoots(mark func(value.Obj)) {
	for i := 0; i < vm.stackTop; i++ {
		if vm.stack[i].IsObj() {
			mark(vm.stack[i].AsObj())
		}
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.NextOpen {
		mark(up)
	}
	vm.globals.Each(func(k, v value.Value) {
		if k.IsObj() {
			mark(k.AsObj())
		}
		if v.IsObj() {
			mark(v.AsObj())
		}
	})
	// The intern pool is not a root: its entries are weak and are pruned by
	// the collector's SweepWeak hook after tracing.
	if vm.initString != nil {
		mark(vm.initString)
	}
}

// intern returns the canonical ObjString for s, creating and registering
// one if no interned string with identical bytes exists yet.
func (vm *VM) intern(s string) *value.ObjString {
	hash := value.HashString(s)
	if existing := vm.strings.FindString(s, hash); existing != nil {
		return existing
	}
	obj := value.NewObjString(s)
	vm.collector.Register(obj, sizeStringBase+uintptr(len(s)))
	vm.strings.Set(value.ObjValue(obj), value.NilValue())
	return obj
}

// Interpret compiles and runs source against this VM's existing globals
// and intern pool. A compile error returns ErrCompile (diagnostics
// already went to stderr); a runtime error returns a *RuntimeError whose
// Error() string is the full traceback.
func (vm *VM) Interpret(source string) error {
	comp := compiler.New(source, vm.collector, vm.intern)
	fn, ok := comp.Compile()
	if !ok {
		return ErrCompile
	}

	closure := chunk.NewClosure(fn)
	vm.collector.Register(closure, sizeClosure)
	if err := vm.push(value.ObjValue(closure)); err != nil {
		return err
	}
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) error {
	if vm.stackTop >= stackMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
	return nil
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	var trace []StackFrame
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := 0
		if f.ip-1 >= 0 && f.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[f.ip-1]
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		trace = append(trace, StackFrame{Name: name, Line: line})
	}
	vm.resetStack()
	return &RuntimeError{Message: msg, StackTrace: trace}
}

// --- call protocol ---

func (vm *VM) call(closure *chunk.Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if vm.frameCount >= framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = CallFrame{closure: closure, ip: 0, slots: vm.stackTop - argc - 1}
	vm.frameCount++
	return nil
}

func asInstance(v value.Value) (*Instance, bool) {
	if !v.IsObj() {
		return nil, false
	}
	inst, ok := v.AsObj().(*Instance)
	return inst, ok
}

func asClass(v value.Value) (*Class, bool) {
	if !v.IsObj() {
		return nil, false
	}
	c, ok := v.AsObj().(*Class)
	return c, ok
}

func (vm *VM) callValue(callee value.Value, argc int) error {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *BoundMethod:
			vm.stack[vm.stackTop-argc-1] = obj.Receiver
			return vm.call(obj.Method, argc)
		case *Class:
			instance := NewInstance(obj)
			vm.collector.Register(instance, sizeInstance)
			vm.stack[vm.stackTop-argc-1] = value.ObjValue(instance)
			if initializer, ok := obj.Methods.Get(value.ObjValue(vm.initString)); ok {
				return vm.call(initializer.AsObj().(*chunk.Closure), argc)
			} else if argc != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argc)
			}
			return nil
		case *chunk.Closure:
			return vm.call(obj, argc)
		case *value.ObjNative:
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			if obj.Arity >= 0 && argc != obj.Arity {
				return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argc)
			}
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argc + 1
			if err := vm.push(result); err != nil {
				return err
			}
			return nil
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) bindMethod(class *Class, name *value.ObjString) error {
	methodVal, ok := class.Methods.Get(value.ObjValue(name))
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := &BoundMethod{Receiver: vm.peek(0), Method: methodVal.AsObj().(*chunk.Closure)}
	vm.collector.Register(bound, sizeBoundMethod)
	vm.pop()
	return vm.push(value.ObjValue(bound))
}

func (vm *VM) invokeFromClass(class *Class, name *value.ObjString, argc int) error {
	methodVal, ok := class.Methods.Get(value.ObjValue(name))
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(methodVal.AsObj().(*chunk.Closure), argc)
}

func (vm *VM) invoke(name *value.ObjString, argc int) error {
	receiver := vm.peek(argc)
	inst, ok := asInstance(receiver)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if val, ok := inst.Fields.Get(value.ObjValue(name)); ok {
		vm.stack[vm.stackTop-argc-1] = val
		return vm.callValue(val, argc)
	}
	return vm.invokeFromClass(inst.Class, name, argc)
}

// --- upvalues ---

func (vm *VM) captureUpvalue(local *value.Value) *chunk.Upvalue {
	var prev *chunk.Upvalue
	up := vm.openUpvalues
	for up != nil && uintptr(unsafe.Pointer(up.Location)) > uintptr(unsafe.Pointer(local)) {
		prev = up
		up = up.NextOpen
	}
	if up != nil && up.Location == local {
		return up
	}

	created := chunk.NewUpvalue(local)
	vm.collector.Register(created, sizeUpvalue)
	created.NextOpen = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

func (vm *VM) closeUpvalues(last *value.Value) {
	for vm.openUpvalues != nil && uintptr(unsafe.Pointer(vm.openUpvalues.Location)) >= uintptr(unsafe.Pointer(last)) {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.NextOpen
	}
}

// --- bytecode fetch helpers ---

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readShort(frame *CallFrame) uint16 {
	hi := vm.readByte(frame)
	lo := vm.readByte(frame)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant(frame *CallFrame, idx byte) value.Value {
	return frame.closure.Function.Chunk.Constants[idx]
}

func (vm *VM) readString(frame *CallFrame, idx byte) *value.ObjString {
	s, _ := vm.readConstant(frame, idx).AsString()
	return s
}

func isString(v value.Value) bool {
	_, ok := v.AsString()
	return ok
}

func formatValue(v value.Value) string {
	switch v.Kind() {
	case value.Nil:
		return "nil"
	case value.Bool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case value.Number:
		return strconvFormatNumber(v.AsNumber())
	case value.ObjectVal:
		switch obj := v.AsObj().(type) {
		case *value.ObjString:
			return obj.Chars
		case *chunk.Function:
			if obj.Name == nil {
				return "<script>"
			}
			return "<fn " + obj.Name.Chars + ">"
		case *chunk.Closure:
			return formatValue(value.ObjValue(obj.Function))
		case *value.ObjNative:
			return "<native fn " + obj.Name + ">"
		case *Class:
			return obj.Name.Chars
		case *Instance:
			return obj.Class.Name.Chars + " instance"
		case *BoundMethod:
			return formatValue(value.ObjValue(obj.Method))
		case *table.Object:
			return "<table>"
		}
	}
	return "nil"
}

func strconvFormatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// --- the interpreter loop ---

func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]

	for {
		op := chunk.OpCode(vm.readByte(frame))

		switch op {
		case chunk.OpConstant:
			idx := vm.readByte(frame)
			if err := vm.push(vm.readConstant(frame, idx)); err != nil {
				return err
			}

		case chunk.OpNil:
			if err := vm.push(value.NilValue()); err != nil {
				return err
			}
		case chunk.OpTrue:
			if err := vm.push(value.BoolValue(true)); err != nil {
				return err
			}
		case chunk.OpFalse:
			if err := vm.push(value.BoolValue(false)); err != nil {
				return err
			}
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte(frame)
			if err := vm.push(vm.stack[frame.slots+int(slot)]); err != nil {
				return err
			}
		case chunk.OpSetLocal:
			slot := vm.readByte(frame)
			vm.stack[frame.slots+int(slot)] = vm.peek(0)

		case chunk.OpGetGlobal:
			idx := vm.readByte(frame)
			name := vm.readConstant(frame, idx)
			val, ok := vm.globals.Get(name)
			if !ok {
				ns, _ := name.AsString()
				return vm.runtimeError("Undefined variable '%s'.", ns.Chars)
			}
			if err := vm.push(val); err != nil {
				return err
			}
		case chunk.OpDefineGlobal:
			idx := vm.readByte(frame)
			name := vm.readConstant(frame, idx)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			idx := vm.readByte(frame)
			name := vm.readConstant(frame, idx)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				ns, _ := name.AsString()
				return vm.runtimeError("Undefined variable '%s'.", ns.Chars)
			}

		case chunk.OpGetUpvalue:
			idx := vm.readByte(frame)
			if err := vm.push(*frame.closure.Upvalues[idx].Location); err != nil {
				return err
			}
		case chunk.OpSetUpvalue:
			idx := vm.readByte(frame)
			*frame.closure.Upvalues[idx].Location = vm.peek(0)

		case chunk.OpGetProperty:
			idx := vm.readByte(frame)
			inst, ok := asInstance(vm.peek(0))
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := vm.readString(frame, idx)
			if val, ok := inst.Fields.Get(value.ObjValue(name)); ok {
				vm.pop()
				if err := vm.push(val); err != nil {
					return err
				}
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}

		case chunk.OpSetProperty:
			idx := vm.readByte(frame)
			inst, ok := asInstance(vm.peek(1))
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := vm.readString(frame, idx)
			inst.Fields.Set(value.ObjValue(name), vm.peek(0))
			val := vm.pop()
			vm.pop()
			if err := vm.push(val); err != nil {
				return err
			}

		case chunk.OpGetSuper:
			idx := vm.readByte(frame)
			name := vm.readString(frame, idx)
			superclass, _ := asClass(vm.pop())
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			if err := vm.push(value.BoolValue(value.Equal(a, b))); err != nil {
				return err
			}
		case chunk.OpGreater:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if err := vm.push(value.BoolValue(a > b)); err != nil {
				return err
			}
		case chunk.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if err := vm.push(value.BoolValue(a < b)); err != nil {
				return err
			}

		case chunk.OpAdd:
			if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				if err := vm.push(value.NumberValue(a + b)); err != nil {
					return err
				}
			} else if isString(vm.peek(0)) && isString(vm.peek(1)) {
				bs, _ := vm.peek(0).AsString()
				as, _ := vm.peek(1).AsString()
				result := vm.intern(as.Chars + bs.Chars)
				vm.pop()
				vm.pop()
				if err := vm.push(value.ObjValue(result)); err != nil {
					return err
				}
			} else {
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case chunk.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}
		case chunk.OpMod:
			if err := vm.numericBinary(math.Mod); err != nil {
				return err
			}
		case chunk.OpShl:
			if err := vm.integerBinary(func(a, b int64) int64 { return a << uint(b&63) }); err != nil {
				return err
			}
		case chunk.OpShr:
			if err := vm.integerBinary(func(a, b int64) int64 { return a >> uint(b&63) }); err != nil {
				return err
			}

		case chunk.OpNot:
			if err := vm.push(value.BoolValue(vm.pop().Falsey())); err != nil {
				return err
			}
		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			n := vm.pop().AsNumber()
			if err := vm.push(value.NumberValue(-n)); err != nil {
				return err
			}

		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout, formatValue(vm.pop()))

		case chunk.OpJump:
			offset := vm.readShort(frame)
			frame.ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek(0).Falsey() {
				frame.ip += int(offset)
			}
		case chunk.OpJumpIfTrue:
			offset := vm.readShort(frame)
			if !vm.peek(0).Falsey() {
				frame.ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readShort(frame)
			frame.ip -= int(offset)

		case chunk.OpCall:
			argc := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpInvoke:
			idx := vm.readByte(frame)
			argc := int(vm.readByte(frame))
			name := vm.readString(frame, idx)
			if err := vm.invoke(name, argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpSuperInvoke:
			idx := vm.readByte(frame)
			argc := int(vm.readByte(frame))
			name := vm.readString(frame, idx)
			superclass, _ := asClass(vm.pop())
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpClosure:
			idx := vm.readByte(frame)
			fn := vm.readConstant(frame, idx).AsObj().(*chunk.Function)
			closure := chunk.NewClosure(fn)
			vm.collector.Register(closure, sizeClosure)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.slots+int(index)])
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			if err := vm.push(value.ObjValue(closure)); err != nil {
				return err
			}

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[vm.stackTop-1])
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[frame.slots])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			if err := vm.push(result); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpClass:
			idx := vm.readByte(frame)
			name := vm.readString(frame, idx)
			class := NewClass(name)
			vm.collector.Register(class, sizeClass)
			if err := vm.push(value.ObjValue(class)); err != nil {
				return err
			}

		case chunk.OpMethod:
			idx := vm.readByte(frame)
			name := vm.readString(frame, idx)
			method := vm.pop()
			class, _ := asClass(vm.peek(0))
			class.Methods.Set(value.ObjValue(name), method)

		case chunk.OpInherit:
			superclass, ok := asClass(vm.peek(1))
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass, _ := asClass(vm.peek(0))
			table.AddAll(superclass.Methods, subclass.Methods)
			vm.pop()

		case chunk.OpTableGet:
			key := vm.pop()
			recv := vm.pop()
			obj, ok := tableOf(recv)
			if !ok {
				return vm.runtimeError("Only tables can be indexed.")
			}
			val, found := obj.T.Get(key)
			if !found {
				val = value.NilValue()
			}
			if err := vm.push(val); err != nil {
				return err
			}

		case chunk.OpTableSet:
			val := vm.pop()
			key := vm.pop()
			recv := vm.pop()
			obj, ok := tableOf(recv)
			if !ok {
				return vm.runtimeError("Only tables can be indexed.")
			}
			obj.T.Set(key, val)
			if err := vm.push(val); err != nil {
				return err
			}

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func tableOf(v value.Value) (*table.Object, bool) {
	if !v.IsObj() {
		return nil, false
	}
	obj, ok := v.AsObj().(*table.Object)
	return obj, ok
}

func (vm *VM) numericBinary(op func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	return vm.push(value.NumberValue(op(a, b)))
}

func (vm *VM) integerBinary(op func(a, b int64) int64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := int64(vm.pop().AsNumber())
	a := int64(vm.pop().AsNumber())
	return vm.push(value.NumberValue(float64(op(a, b))))
}
