package gc

import (
	"slices"
	"testing"

	"github.com/chazu/heapcore/typeinfo"
)

func TestTracePrimitiveHasNoReferences(t *testing.T) {
	h := New()
	a := mustAlloc(t, h, typeinfo.Of(typeinfo.I64))
	if refs := collectRefs(h, a); len(refs) != 0 {
		t.Fatalf("primitive traced %v", refs)
	}
}

func TestTraceStructFieldsInOrder(t *testing.T) {
	h := New()
	leaf := typeinfo.NewStruct("Leaf").Add("v", typeinfo.Of(typeinfo.I32)).MustBuild()
	pair := typeinfo.NewStruct("Pair").Value().
		Add("left", leaf).
		Add("n", typeinfo.Of(typeinfo.U8)).
		Add("right", leaf).
		MustBuild()
	root := typeinfo.NewStruct("Root").
		Add("first", leaf).
		Add("count", typeinfo.Of(typeinfo.I64)).
		Add("pair", pair).
		Add("last", leaf).
		Add("unset", leaf).
		MustBuild()

	obj := mustAlloc(t, h, root)
	leaves := make([]Handle, 4)
	for i := range leaves {
		leaves[i] = mustAlloc(t, h, leaf)
	}
	setRef(t, h, obj, "first", leaves[0])
	setRef(t, h, obj, "last", leaves[3])

	pairField, _ := root.Field("pair")
	left, _ := pair.Field("left")
	right, _ := pair.Field("right")
	PutHandle(h.Data(obj)[pairField.Offset+left.Offset:], leaves[1])
	PutHandle(h.Data(obj)[pairField.Offset+right.Offset:], leaves[2])

	got := collectRefs(h, obj)
	if !slices.Equal(got, leaves) {
		t.Fatalf("Trace = %v, want %v", got, leaves)
	}

	// Sequences are restartable.
	if again := collectRefs(h, obj); !slices.Equal(again, got) {
		t.Fatalf("second Trace = %v, want %v", again, got)
	}

	// Tracing is not transitive.
	if refs := collectRefs(h, leaves[0]); len(refs) != 0 {
		t.Fatalf("leaf traced %v", refs)
	}
}

func TestTraceArrayOfBoxed(t *testing.T) {
	h := New()
	leaf := typeinfo.NewStruct("Leaf").Add("v", typeinfo.Of(typeinfo.I32)).MustBuild()
	arrHandle := mustAllocArray(t, h, typeinfo.ArrayOf(leaf), 3)
	arr, _ := h.AsArray(arrHandle)

	want := make([]Handle, 3)
	for i := range want {
		want[i] = mustAlloc(t, h, leaf)
		PutHandle(arr.Element(i), want[i])
	}
	if got := collectRefs(h, arrHandle); !slices.Equal(got, want) {
		t.Fatalf("Trace = %v, want %v", got, want)
	}

	// Only the first length slots are traced.
	arr.SetLength(1)
	if got := collectRefs(h, arrHandle); !slices.Equal(got, want[:1]) {
		t.Fatalf("Trace after SetLength(1) = %v, want %v", got, want[:1])
	}
}

func TestTraceArrayOfInlineStructs(t *testing.T) {
	h := New()
	leaf := typeinfo.NewStruct("Leaf").Add("v", typeinfo.Of(typeinfo.I32)).MustBuild()
	entry := typeinfo.NewStruct("Entry").Value().
		Add("key", typeinfo.Of(typeinfo.U32)).
		Add("value", leaf).
		MustBuild()
	arrHandle := mustAllocArray(t, h, typeinfo.ArrayOf(entry), 2)
	arr, _ := h.AsArray(arrHandle)

	valueField, _ := entry.Field("value")
	want := []Handle{mustAlloc(t, h, leaf), mustAlloc(t, h, leaf)}
	for i, ref := range want {
		PutHandle(arr.Element(i)[valueField.Offset:], ref)
	}
	if got := collectRefs(h, arrHandle); !slices.Equal(got, want) {
		t.Fatalf("Trace = %v, want %v", got, want)
	}
}

func TestTraceNestedArrays(t *testing.T) {
	h := New()
	inner := typeinfo.ArrayOf(typeinfo.Of(typeinfo.I32))
	outer := typeinfo.ArrayOf(inner)

	o := mustAllocArray(t, h, outer, 2)
	i0 := mustAllocArray(t, h, inner, 4)
	arr, _ := h.AsArray(o)
	PutHandle(arr.Element(0), i0)

	// The second slot is Nil and skipped.
	if got := collectRefs(h, o); !slices.Equal(got, []Handle{i0}) {
		t.Fatalf("Trace = %v, want [%v]", got, i0)
	}
	if got := collectRefs(h, i0); len(got) != 0 {
		t.Fatalf("primitive array traced %v", got)
	}
}

func TestHasReferences(t *testing.T) {
	leaf := typeinfo.NewStruct("Leaf").MustBuild()
	plain := typeinfo.NewStruct("Plain").Value().Add("x", typeinfo.Of(typeinfo.F64)).MustBuild()
	holder := typeinfo.NewStruct("Holder").Value().Add("p", plain).Add("l", leaf).MustBuild()

	tests := []struct {
		ty   *typeinfo.Type
		want bool
	}{
		{typeinfo.Of(typeinfo.I32), false},
		{typeinfo.PointerTo(leaf, false), false},
		{plain, false},
		{leaf, true},
		{holder, true},
		{typeinfo.ArrayOf(plain), true},
	}
	for _, tt := range tests {
		if got := hasReferences(tt.ty); got != tt.want {
			t.Errorf("hasReferences(%s) = %v, want %v", tt.ty.Name(), got, tt.want)
		}
	}
}
