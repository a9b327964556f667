// Heap object kinds that only the VM needs: classes, instances, and bound
// methods. The compiler never constructs or inspects these directly (it
// only emits the opcodes that manipulate them), which is why they live
// here rather than in pkg/value alongside strings.
package vm

import (
	"github.com/kristofer/tlox/pkg/chunk"
	"github.com/kristofer/tlox/pkg/table"
	"github.com/kristofer/tlox/pkg/value"
)

// Class is a named method table. Method values are always closures.
type Class struct {
	value.ObjHeader
	Name    *value.ObjString
	Methods *table.Table
}

// NewClass allocates a class with an empty method table.
func NewClass(name *value.ObjString) *Class {
	return &Class{ObjHeader: value.ObjHeader{Kind: value.ObjClassKind}, Name: name, Methods: table.New()}
}

func (c *Class) Trace(mark func(value.Obj)) {
	mark(c.Name)
	c.Methods.Each(func(k, v value.Value) {
		if k.IsObj() {
			mark(k.AsObj())
		}
		if v.IsObj() {
			mark(v.AsObj())
		}
	})
}

// Instance is a class reference plus a field table.
type Instance struct {
	value.ObjHeader
	Class  *Class
	Fields *table.Table
}

// NewInstance allocates an instance of class with an empty field table.
func NewInstance(class *Class) *Instance {
	return &Instance{ObjHeader: value.ObjHeader{Kind: value.ObjInstanceKind}, Class: class, Fields: table.New()}
}

func (i *Instance) Trace(mark func(value.Obj)) {
	mark(i.Class)
	i.Fields.Each(func(k, v value.Value) {
		if k.IsObj() {
			mark(k.AsObj())
		}
		if v.IsObj() {
			mark(v.AsObj())
		}
	})
}

// BoundMethod pairs a receiver value with the method closure property
// access resolved it to, so a later call supplies the receiver as the
// method's implicit first argument without re-resolving the lookup.
type BoundMethod struct {
	value.ObjHeader
	Receiver value.Value
	Method   *chunk.Closure
}

func (b *BoundMethod) Trace(mark func(value.Obj)) {
	if b.Receiver.IsObj() {
		mark(b.Receiver.AsObj())
	}
	mark(b.Method)
}
