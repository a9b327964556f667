// Package gc implements the tracing mark-and-sweep collector that reclaims
// unreachable heap objects. It is deliberately generic over what it
// collects: it knows nothing of strings, closures, classes or instances —
// only the value.Obj interface (a header plus a Trace method that
// blackens an object by marking what it points to). The VM and the
// compiler register themselves as root sources; everything else the
// collector discovers by tracing.
//
// This mirrors the original collector's allocator discipline (every heap
// object routes through one allocation function that can trigger a
// collection before the new object is exposed to the reachability graph)
// and its pacing (the next threshold is twice the live set after a sweep),
// but "freeing" an object here means only unlinking it from the tracked
// object list: the Go runtime's own collector reclaims the memory once
// nothing else references it. The bookkeeping — mark bits, the object
// list, the threshold — is what the spec's invariants are about, and is
// reproduced faithfully.
package gc

import "github.com/kristofer/tlox/pkg/value"

const initialThreshold = 1024

// MarkFunc marks a single object reachable, enqueuing it for tracing if it
// was not already marked.
type MarkFunc = func(value.Obj)

// RootsFunc is called with a MarkFunc during the mark phase; it should
// mark every object directly reachable from its source's roots.
type RootsFunc func(mark MarkFunc)

// Collector owns the global object list and drives mark/sweep cycles.
type Collector struct {
	head           value.Obj
	totalAllocated uint64
	nextGC         uint64

	gray []value.Obj

	rootSources []RootsFunc

	// SweepWeak is invoked after trace completes and before sweep, so a
	// weak table (the string-intern pool) can drop entries whose key
	// object did not survive tracing. Set by the VM at construction.
	SweepWeak func(marked func(value.Obj) bool)

	// StressGC forces a collection on every growing allocation, matching
	// the original's debug build flag.
	StressGC bool

	// Collections counts completed cycles, for tests and diagnostics.
	Collections int
}

// New returns a Collector with an empty object list and the spec's
// initial ~1KiB threshold.
func New() *Collector {
	return &Collector{nextGC: initialThreshold}
}

// AddRootSource registers fn as a root-marking source and returns a
// function that removes it again. The VM registers its own roots for the
// lifetime of the Collector; a Compiler registers its in-flight function
// stack only while compiling, since those functions are otherwise
// unreachable until the finished function is handed back to its caller.
func (c *Collector) AddRootSource(fn RootsFunc) (remove func()) {
	c.rootSources = append(c.rootSources, fn)
	idx := len(c.rootSources) - 1
	return func() {
		c.rootSources[idx] = nil
	}
}

// TotalAllocated returns the running byte count charged by Register calls
// still linked into the object list.
func (c *Collector) TotalAllocated() uint64 { return c.totalAllocated }

// NextThreshold returns the allocation total at which the next collection
// triggers.
func (c *Collector) NextThreshold() uint64 { return c.nextGC }

// Register charges size against the allocator's running total, collects
// first if that growth crosses the threshold (or StressGC is set), and
// only then links obj into the object list — deferred enrollment, so a
// collection triggered by this very allocation can never see or sweep the
// object being constructed.
func (c *Collector) Register(obj value.Obj, size uintptr) {
	grown := size > 0
	c.totalAllocated += uint64(size)

	if grown && (c.StressGC || c.totalAllocated > c.nextGC) {
		c.Collect()
	}

	h := obj.Header()
	h.Size = size
	h.ListNext = c.head
	c.head = obj
}

// Collect runs one full mark/sweep cycle.
func (c *Collector) Collect() {
	c.gray = c.gray[:0]

	for _, src := range c.rootSources {
		if src != nil {
			src(c.mark)
		}
	}

	for len(c.gray) > 0 {
		n := len(c.gray) - 1
		obj := c.gray[n]
		c.gray = c.gray[:n]
		obj.Trace(c.mark)
	}

	if c.SweepWeak != nil {
		c.SweepWeak(c.isMarked)
	}

	c.sweep()

	c.nextGC = 2 * c.totalAllocated
	c.Collections++
}

func (c *Collector) mark(obj value.Obj) {
	if obj == nil {
		return
	}
	h := obj.Header()
	if h.Marked {
		return
	}
	h.Marked = true
	// Growing the gray stack is plain slice growth, not a tracked
	// allocation — routing it through Register would make tracing
	// recursively trigger collection.
	c.gray = append(c.gray, obj)
}

func (c *Collector) isMarked(obj value.Obj) bool {
	if obj == nil {
		return true
	}
	return obj.Header().Marked
}

func (c *Collector) sweep() {
	var prev value.Obj
	obj := c.head
	for obj != nil {
		h := obj.Header()
		next := h.ListNext
		if h.Marked {
			h.Marked = false
			prev = obj
		} else {
			if prev == nil {
				c.head = next
			} else {
				prev.Header().ListNext = next
			}
			if c.totalAllocated >= uint64(h.Size) {
				c.totalAllocated -= uint64(h.Size)
			}
		}
		obj = next
	}
}

// Objects returns every object currently linked into the object list, in
// list order. It exists for tests that assert on reachability and is not
// used on the hot allocation path.
func (c *Collector) Objects() []value.Obj {
	var out []value.Obj
	for obj := c.head; obj != nil; obj = obj.Header().ListNext {
		out = append(out, obj)
	}
	return out
}
