package gc

import "github.com/chazu/heapcore/typeinfo"

// Tracer enumerates the handles stored directly in one object, descending
// through inline structs in place. It keeps an explicit stack of frames, one
// per struct or array being walked, and never follows a handle into another
// object.
type Tracer struct {
	stack []traceFrame
}

// traceFrame walks the slots of one struct value or array block.
type traceFrame struct {
	data   []byte
	ty     *typeinfo.Type // struct type, or element type when array is set
	array  bool
	stride uintptr
	next   int
	count  int
}

func newTracer(obj *object) *Tracer {
	t := &Tracer{}
	switch obj.ty.Kind() {
	case typeinfo.KindStruct:
		t.pushStruct(obj.value(), obj.ty)
	case typeinfo.KindArray:
		elem := obj.ty.ElementType()
		if !hasReferences(elem) {
			break
		}
		arr := obj.array()
		t.stack = append(t.stack, traceFrame{
			data:   arr.elements(),
			ty:     elem,
			array:  true,
			stride: arr.stride,
			count:  arr.length(),
		})
	}
	return t
}

func (t *Tracer) pushStruct(data []byte, ty *typeinfo.Type) {
	t.stack = append(t.stack, traceFrame{
		data:  data,
		ty:    ty,
		count: len(ty.Fields()),
	})
}

// Next returns the next referenced handle, or false when the object has no
// more references. Nil handles are skipped.
func (t *Tracer) Next() (Handle, bool) {
	for len(t.stack) > 0 {
		top := &t.stack[len(t.stack)-1]
		if top.next >= top.count {
			t.stack = t.stack[:len(t.stack)-1]
			continue
		}
		i := top.next
		top.next++

		var ty *typeinfo.Type
		var start uintptr
		if top.array {
			ty, start = top.ty, uintptr(i)*top.stride
		} else {
			f := top.ty.Fields()[i]
			ty, start = f.Type, f.Offset
		}
		slot := top.data[start : start+ty.ReferenceLayout().Size]

		switch {
		case ty.IsBoxed():
			if h := ReadHandle(slot); h != Nil {
				return h, true
			}
		case ty.IsStruct():
			t.pushStruct(slot, ty)
		}
	}
	return Nil, false
}

// hasReferences reports whether a value of ty stored inline can contain a
// handle. Arrays whose elements cannot are not walked.
func hasReferences(ty *typeinfo.Type) bool {
	if ty.IsBoxed() {
		return true
	}
	if !ty.IsStruct() {
		return false
	}
	for _, f := range ty.Fields() {
		if hasReferences(f.Type) {
			return true
		}
	}
	return false
}
