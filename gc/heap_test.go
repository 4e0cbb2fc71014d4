package gc

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/chazu/heapcore/mapping"
	"github.com/chazu/heapcore/typeinfo"
)

func TestAllocTypeOf(t *testing.T) {
	h, log := newTestHeap()

	types := []*typeinfo.Type{
		typeinfo.Of(typeinfo.I32),
		typeinfo.Of(typeinfo.F64),
		typeinfo.NewStruct("Foo").Add("a", typeinfo.Of(typeinfo.U8)).MustBuild(),
		typeinfo.NewStruct("Empty").MustBuild(),
	}
	for _, ty := range types {
		handle := mustAlloc(t, h, ty)
		if got := h.TypeOf(handle); got != ty {
			t.Errorf("TypeOf(Alloc(%s)) = %s", ty.Name(), got.Name())
		}
		if h.RootCount(handle) != 0 {
			t.Errorf("%s: new objects must start unrooted", ty.Name())
		}
		if got := len(h.Data(handle)); got != int(ty.Size()) {
			t.Errorf("%s: payload is %d bytes, want %d", ty.Name(), got, ty.Size())
		}
	}
	if got := log.count(EventAllocation); got != len(types) {
		t.Errorf("allocation events = %d, want %d", got, len(types))
	}
	if h.Len() != len(types) {
		t.Errorf("Len() = %d, want %d", h.Len(), len(types))
	}
}

func TestAllocatedBytes(t *testing.T) {
	h := New()
	foo := typeinfo.NewStruct("Foo").
		Add("a", typeinfo.Of(typeinfo.I64)).
		Add("b", typeinfo.Of(typeinfo.I32)).
		MustBuild()

	mustAlloc(t, h, foo)
	if got := h.Stats().AllocatedBytes; got != 16 {
		t.Fatalf("AllocatedBytes = %d, want 16", got)
	}

	// Three i32 elements; the block header is not counted.
	mustAllocArray(t, h, typeinfo.ArrayOf(typeinfo.Of(typeinfo.I32)), 3)
	if got := h.Stats().AllocatedBytes; got != 28 {
		t.Fatalf("AllocatedBytes = %d, want 28", got)
	}

	h.Collect()
	if got := h.Stats(); got.AllocatedBytes != 0 || got.Objects != 0 {
		t.Fatalf("after collect: %+v, want empty", got)
	}
}

func TestAllocArrayShape(t *testing.T) {
	h := New()
	point := typeinfo.NewStruct("Point").Value().
		Add("x", typeinfo.Of(typeinfo.F32)).
		Add("y", typeinfo.Of(typeinfo.F32)).
		Add("tag", typeinfo.Of(typeinfo.U8)).
		MustBuild()
	node := typeinfo.NewStruct("Node").Add("v", typeinfo.Of(typeinfo.I64)).MustBuild()

	tests := []struct {
		name   string
		elem   *typeinfo.Type
		n      int
		stride uintptr
	}{
		{"bytes", typeinfo.Of(typeinfo.U8), 7, 1},
		{"doubles", typeinfo.Of(typeinfo.F64), 4, 8},
		{"inline structs", point, 5, 12},
		{"boxed structs", node, 3, HandleSize},
		{"empty", typeinfo.Of(typeinfo.I32), 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := mustAllocArray(t, h, typeinfo.ArrayOf(tt.elem), tt.n)
			arr, ok := h.AsArray(handle)
			if !ok {
				t.Fatal("AsArray returned false for an array")
			}
			if arr.Length() != tt.n || arr.Capacity() != tt.n {
				t.Errorf("length/capacity = %d/%d, want %d/%d", arr.Length(), arr.Capacity(), tt.n, tt.n)
			}
			if arr.ElementStride() != tt.stride {
				t.Errorf("stride = %d, want %d", arr.ElementStride(), tt.stride)
			}
			if arr.ElementType() != tt.elem {
				t.Errorf("element type = %s, want %s", arr.ElementType().Name(), tt.elem.Name())
			}

			count := 0
			for e := range arr.Elements() {
				if uintptr(len(e)) != tt.elem.ReferenceLayout().Size {
					t.Errorf("element %d is %d bytes", count, len(e))
				}
				count++
			}
			if count != tt.n {
				t.Errorf("Elements yielded %d items, want %d", count, tt.n)
			}
		})
	}
}

func TestArrayElementsAreContiguous(t *testing.T) {
	h := New()
	handle := mustAllocArray(t, h, typeinfo.ArrayOf(typeinfo.Of(typeinfo.U16)), 4)
	arr, _ := h.AsArray(handle)

	for i := 0; i < 4; i++ {
		e := arr.Element(i)
		if cap(e) != 2 {
			t.Fatalf("element %d has capacity %d, want 2", i, cap(e))
		}
		e[0] = byte(i + 1)
	}
	var i int
	for e := range arr.Elements() {
		if e[0] != byte(i+1) {
			t.Errorf("element %d = %d, want %d", i, e[0], i+1)
		}
		i++
	}
}

func TestAsArrayOnStruct(t *testing.T) {
	h := New()
	handle := mustAlloc(t, h, typeinfo.NewStruct("S").MustBuild())
	if _, ok := h.AsArray(handle); ok {
		t.Fatal("AsArray must return false for a struct")
	}
}

func TestAllocArrayErrors(t *testing.T) {
	h := New()

	_, err := h.AllocArray(typeinfo.Of(typeinfo.I32), 3)
	if !errors.Is(err, ErrNotArray) {
		t.Errorf("non-array type: expected ErrNotArray, got %v", err)
	}

	_, err = h.AllocArray(typeinfo.ArrayOf(typeinfo.Of(typeinfo.I64)), math.MaxInt/8+1)
	if !errors.Is(err, typeinfo.ErrOutOfBounds) {
		t.Errorf("overflowing length: expected ErrOutOfBounds, got %v", err)
	}

	if h.Len() != 0 {
		t.Errorf("failed allocations must not enter the table, Len() = %d", h.Len())
	}
}

func TestAllocUndefinedStruct(t *testing.T) {
	h := New()
	_, err := h.Alloc(typeinfo.DeclareStruct("Later", typeinfo.MemoryGC))
	if !errors.Is(err, ErrUndefinedType) {
		t.Fatalf("expected ErrUndefinedType, got %v", err)
	}
}

func TestAllocArrayTypeViaAlloc(t *testing.T) {
	h := New()
	handle := mustAlloc(t, h, typeinfo.ArrayOf(typeinfo.Of(typeinfo.I32)))
	arr, ok := h.AsArray(handle)
	if !ok || arr.Length() != 0 || arr.Capacity() != 0 {
		t.Fatal("Alloc of an array type must yield an empty array")
	}
}

func TestSetLength(t *testing.T) {
	h := New()
	handle := mustAllocArray(t, h, typeinfo.ArrayOf(typeinfo.Of(typeinfo.I32)), 8)
	arr, _ := h.AsArray(handle)

	arr.Element(7)[0] = 42
	arr.SetLength(2)
	if arr.Length() != 2 || arr.Capacity() != 8 {
		t.Fatalf("length/capacity = %d/%d, want 2/8", arr.Length(), arr.Capacity())
	}
	arr.SetLength(8)
	if arr.Element(7)[0] != 42 {
		t.Error("shrinking must not clear trailing slots")
	}

	defer func() {
		if recover() == nil {
			t.Error("SetLength beyond capacity must panic")
		}
	}()
	arr.SetLength(9)
}

func TestRootCountsAreAdditive(t *testing.T) {
	h := New()
	ty := typeinfo.NewStruct("A").Add("x", typeinfo.Of(typeinfo.I32)).MustBuild()
	a := mustAlloc(t, h, ty)

	h.Root(a)
	h.Root(a)
	h.Unroot(a)
	if h.Collect() {
		t.Fatal("a once-rooted object must survive")
	}
	if !h.Contains(a) {
		t.Fatal("object reclaimed while rooted")
	}

	h.Unroot(a)
	if !h.Collect() {
		t.Fatal("collect should reclaim the unrooted object")
	}
	if h.Contains(a) {
		t.Fatal("object survived after its last root was released")
	}
}

func TestUnrootUnderflowPanics(t *testing.T) {
	h := New()
	a := mustAlloc(t, h, typeinfo.Of(typeinfo.I32))
	defer func() {
		if recover() == nil {
			t.Fatal("unroot of an unrooted object must panic")
		}
	}()
	h.Unroot(a)
}

func TestStaleHandleAfterReuse(t *testing.T) {
	h := New()
	ty := typeinfo.Of(typeinfo.I64)
	a := mustAlloc(t, h, ty)
	h.Collect()

	b := mustAlloc(t, h, ty)
	if a == b {
		t.Fatal("a reused slot must produce a distinct handle")
	}
	if a.index() != b.index() {
		t.Fatalf("expected slot reuse, got indices %d and %d", a.index(), b.index())
	}
	if h.Contains(a) {
		t.Error("stale handle reported as live")
	}

	defer func() {
		if recover() == nil {
			t.Error("resolving a stale handle must panic")
		}
	}()
	h.TypeOf(a)
}

func TestHeapsAreIndependent(t *testing.T) {
	h1, h2 := New(), New()
	if h1.ID() == h2.ID() {
		t.Fatal("heaps must have distinct IDs")
	}
	mustAlloc(t, h1, typeinfo.Of(typeinfo.I32))
	if h2.Len() != 0 {
		t.Fatal("allocation leaked into another heap")
	}
}

func TestConcurrentHeapOperations(t *testing.T) {
	const workers, iterations = 4, 300
	h := New()
	bar, foo := barFoo()
	nextBar := typeinfo.NewStruct("Bar").Add("x", typeinfo.Of(typeinfo.I32)).MustBuild()

	anchors := make([]Handle, workers)
	for i := range anchors {
		anchors[i] = mustAlloc(t, h, foo)
		h.Root(anchors[i])
	}

	var wg sync.WaitGroup
	for _, anchor := range anchors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				h.Root(anchor)
				b, err := h.Alloc(bar)
				if err != nil {
					t.Errorf("Alloc: %v", err)
					return
				}
				if h.TypeOf(anchor) != foo {
					t.Error("anchor changed type")
					return
				}
				h.Unroot(anchor)
				h.Contains(b)
				h.Stats()
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			h.Collect()
		}
	}()
	go func() {
		defer wg.Done()
		m := mapping.New(types(bar), types(nextBar))
		for range 20 {
			if deleted := h.Apply(m); len(deleted) != 0 {
				t.Errorf("Apply deleted %v", deleted)
				return
			}
		}
	}()
	wg.Wait()

	for _, anchor := range anchors {
		if n := h.RootCount(anchor); n != 1 {
			t.Errorf("anchor root count = %d, want 1", n)
		}
		h.Unroot(anchor)
	}
	h.Collect()
	if h.Len() != 0 {
		t.Errorf("Len() = %d after the final collection, want 0", h.Len())
	}
	if got := h.Stats().AllocatedBytes; got != 0 {
		t.Errorf("AllocatedBytes = %d after the final collection, want 0", got)
	}
}
