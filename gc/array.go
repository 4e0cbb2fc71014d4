package gc

import (
	"fmt"
	"iter"

	"github.com/chazu/heapcore/typeinfo"
)

// ArrayView gives access to the block of an array object.
//
// Element slices alias heap memory. They stay valid while the array is
// reachable and not migrated; writes through them are not synchronized.
type ArrayView struct {
	heap   *Heap
	obj    *object
	handle Handle
}

// Handle returns the array's handle.
func (a *ArrayView) Handle() Handle { return a.handle }

// ElementType returns the array's element type.
func (a *ArrayView) ElementType() *typeinfo.Type {
	a.heap.mu.RLock()
	defer a.heap.mu.RUnlock()
	return a.obj.ty.ElementType()
}

// Length returns the number of initialized elements.
func (a *ArrayView) Length() int {
	a.heap.mu.RLock()
	defer a.heap.mu.RUnlock()
	return a.obj.array().length()
}

// Capacity returns the number of element slots, fixed at allocation.
func (a *ArrayView) Capacity() int {
	a.heap.mu.RLock()
	defer a.heap.mu.RUnlock()
	return a.obj.array().capacity()
}

// ElementStride returns the distance in bytes between consecutive slots.
func (a *ArrayView) ElementStride() uintptr {
	a.heap.mu.RLock()
	defer a.heap.mu.RUnlock()
	return a.obj.array().stride
}

// Element returns the bytes of slot i, which must be below the capacity.
// Boxed element types occupy HandleSize bytes per slot.
func (a *ArrayView) Element(i int) []byte {
	a.heap.mu.RLock()
	defer a.heap.mu.RUnlock()
	arr := a.obj.array()
	if i < 0 || i >= arr.capacity() {
		panic(fmt.Sprintf("gc: array index %d out of range [0:%d]", i, arr.capacity()))
	}
	return arr.element(i)
}

// Elements yields the bytes of each of the first Length slots in order.
func (a *ArrayView) Elements() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		n := a.Length()
		for i := 0; i < n; i++ {
			if !yield(a.Element(i)) {
				return
			}
		}
	}
}

// SetLength restates the number of initialized elements. n must not exceed
// the capacity. Slots beyond the old length are neither zeroed nor
// validated; making them valid is the caller's responsibility.
func (a *ArrayView) SetLength(n int) {
	a.heap.mu.Lock()
	defer a.heap.mu.Unlock()
	arr := a.obj.array()
	if n < 0 || n > arr.capacity() {
		panic(fmt.Sprintf("gc: array length %d exceeds capacity %d", n, arr.capacity()))
	}
	arr.setLength(n)
}
