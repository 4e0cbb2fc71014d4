package gc

import (
	"fmt"
	"iter"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chazu/heapcore/typeinfo"
)

// ---------------------------------------------------------------------------
// Heap: the heap table and allocator
// ---------------------------------------------------------------------------

// slot is one entry of the heap table slab. A slot with a nil obj is either
// free (its index is on the free list) or reserved by an in-progress
// migration.
type slot struct {
	gen uint32
	obj *object
}

// Heap owns every object of one runtime instance. The zero value is not
// usable; create heaps with New.
type Heap struct {
	id       uuid.UUID
	observer Observer

	mu    sync.RWMutex
	slots []slot
	free  []int

	allocated atomic.Uint64
	objects   atomic.Int64
}

// Option configures a Heap.
type Option func(*Heap)

// WithObserver installs the observer notified of heap events.
func WithObserver(o Observer) Option {
	return func(h *Heap) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithCapacity preallocates room for n objects in the heap table.
func WithCapacity(n int) Option {
	return func(h *Heap) {
		if n > 0 {
			h.slots = make([]slot, 0, n)
		}
	}
}

// WithID sets the heap's instance identifier instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(h *Heap) { h.id = id }
}

// New creates an empty heap.
func New(opts ...Option) *Heap {
	h := &Heap{
		id:       uuid.New(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the identifier of this heap instance.
func (h *Heap) ID() uuid.UUID { return h.id }

// Observer returns the installed observer.
func (h *Heap) Observer() Observer { return h.observer }

// Stats returns a snapshot of the heap accounting.
func (h *Heap) Stats() Stats {
	return Stats{
		AllocatedBytes: h.allocated.Load(),
		Objects:        int(h.objects.Load()),
	}
}

// Len returns the number of live objects.
func (h *Heap) Len() int { return int(h.objects.Load()) }

// ---------------------------------------------------------------------------
// Slab management (callers hold mu exclusively)
// ---------------------------------------------------------------------------

// reserve claims a slot for a new object without populating it.
func (h *Heap) reserve() (int, Handle) {
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		return idx, makeHandle(idx, h.slots[idx].gen)
	}
	h.slots = append(h.slots, slot{gen: 1})
	idx := len(h.slots) - 1
	return idx, makeHandle(idx, 1)
}

// fill populates a reserved slot and accounts for the object.
func (h *Heap) fill(idx int, obj *object) {
	h.slots[idx].obj = obj
	h.objects.Add(1)
	h.allocated.Add(uint64(obj.data.size()))
}

// release empties a slot, bumps its generation so outstanding handles go
// stale, and returns the index to the free list.
func (h *Heap) release(idx int) {
	s := &h.slots[idx]
	h.objects.Add(-1)
	h.subAllocated(s.obj.data.size())
	s.obj = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	h.free = append(h.free, idx)
}

// resolve returns the object behind handle. Callers hold mu.
func (h *Heap) resolve(handle Handle) *object {
	idx := handle.index()
	if idx < 0 || idx >= len(h.slots) {
		panic(fmt.Sprintf("gc: invalid handle %s", handle))
	}
	s := &h.slots[idx]
	if s.obj == nil || s.gen != handle.generation() {
		panic(fmt.Sprintf("gc: stale handle %s", handle))
	}
	return s.obj
}

// adjustAllocated applies a payload size change caused by migration.
func (h *Heap) adjustAllocated(before, after uintptr) {
	if after >= before {
		h.allocated.Add(uint64(after - before))
	} else {
		h.subAllocated(before - after)
	}
}

func (h *Heap) subAllocated(n uintptr) {
	if n > 0 {
		h.allocated.Add(^uint64(n - 1))
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Alloc allocates a zeroed object of type ty and returns its handle. Boxed
// fields of the new object hold Nil until written. Allocating an array type
// yields an empty array.
func (h *Heap) Alloc(ty *typeinfo.Type) (Handle, error) {
	obj, err := newObject(ty)
	if err != nil {
		return Nil, err
	}
	return h.insert(obj), nil
}

// AllocArray allocates an array of n zeroed elements. ty must be an array
// type. Length and capacity are both n. A size that overflows the address
// space is reported as typeinfo.ErrOutOfBounds.
func (h *Heap) AllocArray(ty *typeinfo.Type, n int) (Handle, error) {
	obj, err := newArrayObject(ty, n)
	if err != nil {
		return Nil, err
	}
	return h.insert(obj), nil
}

func (h *Heap) insert(obj *object) Handle {
	h.mu.Lock()
	idx, handle := h.reserve()
	h.fill(idx, obj)
	h.mu.Unlock()

	h.observer.Event(Event{Kind: EventAllocation, Handle: handle})
	return handle
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Contains reports whether handle refers to a live object.
func (h *Heap) Contains(handle Handle) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx := handle.index()
	if idx < 0 || idx >= len(h.slots) {
		return false
	}
	s := h.slots[idx]
	return s.obj != nil && s.gen == handle.generation()
}

// TypeOf returns the current type of the object.
func (h *Heap) TypeOf(handle Handle) *typeinfo.Type {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.resolve(handle).ty
}

// Data returns the value bytes of a non-array object, or nil for arrays. The
// slice aliases heap memory: it is invalidated when the object is reclaimed
// or migrated, and writes to it are not synchronized with other heap users.
func (h *Heap) Data(handle Handle) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.resolve(handle).data.(valueData)
	if !ok {
		return nil
	}
	return v
}

// AsArray returns a view of an array object, or false if the object is not
// an array.
func (h *Heap) AsArray(handle Handle) (*ArrayView, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	obj := h.resolve(handle)
	if !obj.ty.IsArray() {
		return nil, false
	}
	return &ArrayView{heap: h, obj: obj, handle: handle}, true
}

// Trace returns the handles directly referenced by the object. Each call
// traces afresh; the references are gathered under the read lock and yielded
// after it is released.
func (h *Heap) Trace(handle Handle) iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for _, ref := range h.references(handle) {
			if !yield(ref) {
				return
			}
		}
	}
}

func (h *Heap) references(handle Handle) []Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var refs []Handle
	tr := newTracer(h.resolve(handle))
	for ref, ok := tr.Next(); ok; ref, ok = tr.Next() {
		refs = append(refs, ref)
	}
	return refs
}

// ---------------------------------------------------------------------------
// Rooting
// ---------------------------------------------------------------------------

// Root increments the object's root count. Rooted objects and everything
// reachable from them survive collection.
func (h *Heap) Root(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj := h.resolve(handle)
	if obj.roots < math.MaxUint32 {
		obj.roots++
	}
}

// Unroot decrements the object's root count. Unrooting more often than
// rooting is a programming error and panics.
func (h *Heap) Unroot(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj := h.resolve(handle)
	if obj.roots == 0 {
		panic(fmt.Sprintf("gc: unroot of unrooted handle %s", handle))
	}
	obj.roots--
}

// RootCount returns the object's current root count.
func (h *Heap) RootCount(handle Handle) uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.resolve(handle).roots
}
