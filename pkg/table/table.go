// Package table implements the open-addressed hash table that backs
// globals, class method tables, instance fields, the string-intern pool,
// and the language's user-facing table value.
//
// A single implementation serves both variants the spec describes: the
// string-keyed uses (method tables, fields, globals, the intern pool) key
// on a Value wrapping an *value.ObjString, while the user-facing table
// keys on arbitrary values. The variant only changes how a caller builds
// its keys; hashing and comparison are already generic over value.Value.
package table

import "github.com/kristofer/tlox/pkg/value"

const maxLoad = 0.75
const minCapacity = 8

type entry struct {
	key value.Value
	val value.Value
}

// Table is an open-addressed, linear-probing hash table with tombstones.
// Capacity is always a power of two.
type Table struct {
	count   int
	entries []entry
}

// New returns an empty table. Capacity is allocated lazily on first Set.
func New() *Table { return &Table{} }

// Count returns the number of live (non-tombstone) bindings.
func (t *Table) Count() int { return t.count }

// Capacity returns the current slot count (always a power of two, or 0).
func (t *Table) Capacity() int { return len(t.entries) }

func isEmptyKey(v value.Value) bool { return v.Kind() == value.Empty }

// findEntry implements the probe sequence: stop at a truly empty slot,
// skip tombstones while remembering the first one seen, stop early on a
// key match.
func findEntry(entries []entry, key value.Value) *entry {
	capacity := len(entries)
	index := int(value.HashValue(key)) & (capacity - 1)
	var tombstone *entry
	for {
		e := &entries[index]
		if isEmptyKey(e.key) {
			if e.val.IsNil() {
				// Truly empty.
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// Tombstone: remember it, keep probing.
			if tombstone == nil {
				tombstone = e
			}
		} else if value.Equal(key, e.key) {
			return e
		}
		index = (index + 1) & (capacity - 1)
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i].key = value.EmptyValue()
		entries[i].val = value.NilValue()
	}

	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if isEmptyKey(e.key) {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.val = e.val
		t.count++
	}

	t.entries = entries
}

// Set binds key to val, growing the table first if the load factor would
// exceed 0.75. It returns true iff key was newly inserted (including when
// the insert reused a tombstone slot).
func (t *Table) Set(key, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		capacity := minCapacity
		if len(t.entries) >= minCapacity {
			capacity = len(t.entries) * 2
		}
		t.adjustCapacity(capacity)
	}

	e := findEntry(t.entries, key)
	isNewKey := isEmptyKey(e.key)

	e.key = key
	e.val = val
	// count tracks live bindings only: Delete already took the deleted key
	// out of it, so a new key counts once whether it lands in a truly empty
	// slot or reuses a tombstone.
	if isNewKey {
		t.count++
	}
	return isNewKey
}

// Get returns the value bound to key, if any.
func (t *Table) Get(key value.Value) (value.Value, bool) {
	if t.count == 0 {
		return value.NilValue(), false
	}
	e := findEntry(t.entries, key)
	if isEmptyKey(e.key) {
		return value.NilValue(), false
	}
	return e.val, true
}

// Delete replaces key's slot with a tombstone. Lookups probe past
// tombstones; an insert reuses the first tombstone it passes, so later
// inserts may reuse the slot.
func (t *Table) Delete(key value.Value) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if isEmptyKey(e.key) {
		return false
	}
	e.key = value.EmptyValue()
	e.val = value.BoolValue(true)
	t.count--
	return true
}

// AddAll copies every live binding from src into dst. Used by class
// inheritance to seed a subclass's method table from its superclass.
func AddAll(src, dst *Table) {
	for i := range src.entries {
		e := &src.entries[i]
		if !isEmptyKey(e.key) {
			dst.Set(e.key, e.val)
		}
	}
}

// FindString scans for an interned string entry whose length and
// precomputed hash match and whose bytes compare equal. Used only during
// interning, so it is specified directly in terms of raw bytes rather than
// a Value, avoiding an allocation just to probe.
func (t *Table) FindString(chars string, hash uint32) *value.ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) & (capacity - 1)
	for {
		e := &t.entries[index]
		if isEmptyKey(e.key) {
			if e.val.IsNil() {
				return nil
			}
		} else if s, ok := e.key.AsString(); ok {
			if s.Hash == hash && s.Chars == chars {
				return s
			}
		}
		index = (index + 1) & (capacity - 1)
	}
}

// Each calls fn for every live binding. Used to mark a table's contents
// during garbage collection.
func (t *Table) Each(fn func(key, val value.Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if !isEmptyKey(e.key) {
			fn(e.key, e.val)
		}
	}
}

// SweepUnmarked deletes every entry whose key object is unmarked,
// reporting how many were removed. It implements the weak-reference
// behavior of the string-intern pool (spec §4.2 step 3): after a trace
// completes, any interned string no longer reachable from any root is
// dropped from the pool rather than kept alive by it.
func (t *Table) SweepUnmarked(marked func(value.Obj) bool) int {
	removed := 0
	for i := range t.entries {
		e := &t.entries[i]
		if isEmptyKey(e.key) {
			continue
		}
		if s, ok := e.key.AsString(); ok && !marked(s) {
			e.key = value.EmptyValue()
			e.val = value.BoolValue(true)
			t.count--
			removed++
		}
	}
	return removed
}

// Object is the heap object backing the language's user-facing table
// value (constructed by the `table()` native, indexed with `a[k]`).
type Object struct {
	value.ObjHeader
	T *Table
}

// NewObject allocates an empty user-facing table object.
func NewObject() *Object {
	return &Object{ObjHeader: value.ObjHeader{Kind: value.ObjTableKind}, T: New()}
}

func (o *Object) Trace(mark func(value.Obj)) {
	o.T.Each(func(k, v value.Value) {
		if k.IsObj() {
			mark(k.AsObj())
		}
		if v.IsObj() {
			mark(v.AsObj())
		}
	})
}
