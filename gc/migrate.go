package gc

import (
	"fmt"

	"github.com/chazu/heapcore/mapping"
	"github.com/chazu/heapcore/typeinfo"
)

// Apply migrates every live object to the types of a new compilation and
// returns the handles of objects whose type was deleted.
//
// Objects of identical types are retyped in place. Objects of converted types
// get a fresh zeroed payload populated field by field and replace their old
// payload; their handles never change. Objects of deleted types are left
// untouched and stay rooted; they are reclaimed by a later Collect once
// released. Objects allocated as byproducts of conversion are added to the
// table after the pass.
func (h *Heap) Apply(m *mapping.Mapping) []Handle {
	h.mu.Lock()

	mg := &migrator{
		heap:      h,
		mapping:   m,
		identical: make(map[*typeinfo.Type]*typeinfo.Type, len(m.Identical)),
	}
	for _, p := range m.Identical {
		mg.identical[p.Old] = p.New
	}

	var deleted []Handle
	n := len(h.slots)
	for i := 0; i < n; i++ {
		obj := h.slots[i].obj
		if obj == nil {
			continue
		}
		if m.IsDeleted(obj.ty) {
			deleted = append(deleted, makeHandle(i, h.slots[i].gen))
			continue
		}
		if next, ok := mg.identical[obj.ty]; ok {
			obj.ty = next
			continue
		}
		if conv := m.Conversion(obj.ty); conv != nil {
			mg.convert(obj, conv)
		}
	}

	added := mg.commit()
	h.mu.Unlock()

	for _, handle := range added {
		h.observer.Event(Event{Kind: EventAllocation, Handle: handle})
	}
	return deleted
}

// pendingObject is an object allocated during migration whose slot is
// reserved but not yet filled.
type pendingObject struct {
	idx    int
	handle Handle
	obj    *object
}

type migrator struct {
	heap      *Heap
	mapping   *mapping.Mapping
	identical map[*typeinfo.Type]*typeinfo.Type
	pending   []pendingObject
}

// commit fills the reserved slots of every pending object.
func (mg *migrator) commit() []Handle {
	handles := make([]Handle, 0, len(mg.pending))
	for _, p := range mg.pending {
		mg.heap.fill(p.idx, p.obj)
		handles = append(handles, p.handle)
	}
	mg.pending = nil
	return handles
}

// alloc creates a zeroed object of ty whose handle is usable immediately.
// Array types yield an empty array.
func (mg *migrator) alloc(ty *typeinfo.Type) (Handle, *object) {
	obj, err := newObject(ty)
	if err != nil {
		panic(fmt.Sprintf("gc: migration cannot allocate %s: %v", ty.Name(), err))
	}
	idx, handle := mg.heap.reserve()
	mg.pending = append(mg.pending, pendingObject{idx: idx, handle: handle, obj: obj})
	return handle, obj
}

// convert replaces obj's payload with one laid out for conv.NewType.
func (mg *migrator) convert(obj *object, conv *mapping.Conversion) {
	before := obj.data.size()
	if obj.ty.IsArray() {
		obj.data = mg.convertArray(obj.ty.ElementType(), conv.NewType.ElementType(), obj.array())
	} else {
		dst := make([]byte, conv.NewType.Size())
		mg.mapFields(conv.FieldMapping, obj.value(), dst)
		obj.data = valueData(dst)
	}
	obj.ty = conv.NewType
	mg.heap.adjustAllocated(before, obj.data.size())
}

// convertArray builds a block of the same length and capacity whose elements
// are cast from the old element type.
func (mg *migrator) convertArray(oldElem, newElem *typeinfo.Type, old *arrayData) *arrayData {
	next, err := newArrayData(newElem, old.capacity())
	if err != nil {
		panic(fmt.Sprintf("gc: migration cannot allocate array of %s: %v", newElem.Name(), err))
	}
	n := old.length()
	next.setLength(n)
	for i := 0; i < n; i++ {
		mg.cast(oldElem, newElem, old.element(i), next.element(i))
	}
	return next
}

// mapFields populates dst from src according to fields.
func (mg *migrator) mapFields(fields []mapping.FieldMapping, src, dst []byte) {
	for _, fm := range fields {
		size := fm.NewType.ReferenceLayout().Size
		field := dst[fm.NewOffset : fm.NewOffset+size]

		switch a := fm.Action.(type) {
		case mapping.Copy:
			copy(field, src[a.OldOffset:a.OldOffset+size])
		case mapping.Cast:
			old := src[a.OldOffset : a.OldOffset+a.OldType.ReferenceLayout().Size]
			mg.cast(a.OldType, fm.NewType, old, field)
		case mapping.Insert:
			if fm.NewType.IsBoxed() {
				handle, _ := mg.alloc(fm.NewType)
				PutHandle(field, handle)
			}
		}
	}
}

// cast converts one field or element slot. Anything without a safe
// correspondence is left at its zero value, except that a boxed destination
// whose source could not be carried over receives a fresh zero object.
func (mg *migrator) cast(oldTy, newTy *typeinfo.Type, src, dst []byte) {
	same := oldTy.Kind() == newTy.Kind() && oldTy.Name() == newTy.Name()

	switch {
	case oldTy.IsPrimitive() && newTy.IsPrimitive():
		from, _ := oldTy.Primitive()
		to, _ := newTy.Primitive()
		tryCast(from, to, src, dst)

	case oldTy.IsPointer() && newTy.IsPointer():
		copy(dst, src)

	case oldTy.IsBoxed() && newTy.IsBoxed():
		// The referent keeps its own table entry and is migrated by the pass.
		// A nil reference stays nil.
		if same {
			copy(dst, src)
			return
		}

	case oldTy.IsStruct() && newTy.IsStruct():
		switch {
		case !oldTy.IsBoxed() && !newTy.IsBoxed():
			if same {
				mg.remap(oldTy, newTy, src, dst)
			}
		case !oldTy.IsBoxed():
			handle, obj := mg.alloc(newTy)
			if same {
				mg.remap(oldTy, newTy, src, obj.value())
			}
			PutHandle(dst, handle)
		default:
			if ref := ReadHandle(src); same && ref != Nil {
				mg.unbox(ref, newTy, dst)
			}
		}
	}

	if newTy.IsBoxed() && ReadHandle(dst) == Nil {
		handle, _ := mg.alloc(newTy)
		PutHandle(dst, handle)
	}
}

// remap converts the inline bytes of a struct of oldTy into newTy.
func (mg *migrator) remap(oldTy, newTy *typeinfo.Type, src, dst []byte) {
	if conv := mg.mapping.Conversion(oldTy); conv != nil && conv.NewType == newTy {
		mg.mapFields(conv.FieldMapping, src, dst)
		return
	}
	if oldTy == newTy || mg.identical[oldTy] == newTy {
		copy(dst, src)
	}
}

// unbox copies the boxed object ref into an inline destination of newTy. The
// referent may or may not have been migrated already in this pass.
func (mg *migrator) unbox(ref Handle, newTy *typeinfo.Type, dst []byte) {
	obj := mg.heap.resolve(ref)
	if obj.ty == newTy {
		copy(dst, obj.value())
		return
	}
	mg.remap(obj.ty, newTy, obj.value(), dst)
}
