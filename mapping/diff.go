package mapping

import "github.com/chazu/heapcore/typeinfo"

// New computes the Mapping from the types of a previous compilation to the
// types of the current one. Types are matched by name:
//   - an old type without a same-named, same-kind successor is deleted
//   - a successor that is structurally equivalent is identical
//   - otherwise a conversion is built; each new field is copied when the
//     same-named old field has an equivalent type, cast when its type
//     changed, and inserted when it has no predecessor.
//
// Primitive types are shared descriptors and never appear in the result.
func New(oldTypes, newTypes []*typeinfo.Type) *Mapping {
	m := Empty()

	byName := make(map[string]*typeinfo.Type, len(newTypes))
	for _, ty := range newTypes {
		byName[ty.Name()] = ty
	}

	eq := newEquivalence()
	for _, old := range oldTypes {
		if old.IsPrimitive() {
			continue
		}
		next, ok := byName[old.Name()]
		if !ok || next.Kind() != old.Kind() {
			m.Delete(old)
			continue
		}
		if next == old {
			continue
		}
		if eq.equivalent(old, next) {
			m.AddIdentical(old, next)
			continue
		}
		m.AddConversion(old, convert(old, next, eq))
	}
	return m
}

func convert(old, next *typeinfo.Type, eq *equivalence) *Conversion {
	conv := &Conversion{NewType: next}
	if !next.IsStruct() {
		return conv
	}
	for _, nf := range next.Fields() {
		fm := FieldMapping{NewType: nf.Type, NewOffset: nf.Offset}
		of, ok := old.Field(nf.Name)
		switch {
		case !ok:
			fm.Action = Insert{}
		case eq.equivalent(of.Type, nf.Type):
			fm.Action = Copy{OldOffset: of.Offset}
		default:
			fm.Action = Cast{OldOffset: of.Offset, OldType: of.Type}
		}
		conv.FieldMapping = append(conv.FieldMapping, fm)
	}
	return conv
}

// equivalence decides structural equality between types of two compilations.
// Pairs under comparison are assumed equal so recursive types terminate.
type equivalence struct {
	known map[[2]*typeinfo.Type]bool
}

func newEquivalence() *equivalence {
	return &equivalence{known: make(map[[2]*typeinfo.Type]bool)}
}

func (e *equivalence) equivalent(a, b *typeinfo.Type) bool {
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() || a.Name() != b.Name() {
		return false
	}
	key := [2]*typeinfo.Type{a, b}
	if v, ok := e.known[key]; ok {
		return v
	}
	// Cycles only close through boxed fields, so a provisional match can
	// never change the layout of the pair being compared.
	e.known[key] = true

	var same bool
	switch a.Kind() {
	case typeinfo.KindPrimitive:
		pa, _ := a.Primitive()
		pb, _ := b.Primitive()
		same = pa == pb
	case typeinfo.KindPointer:
		same = a.IsMutable() == b.IsMutable() && e.equivalent(a.Pointee(), b.Pointee())
	case typeinfo.KindArray:
		same = e.equivalent(a.ElementType(), b.ElementType())
	case typeinfo.KindStruct:
		same = e.sameStruct(a, b)
	}
	e.known[key] = same
	return same
}

func (e *equivalence) sameStruct(a, b *typeinfo.Type) bool {
	if a.MemoryKind() != b.MemoryKind() || a.ValueLayout() != b.ValueLayout() {
		return false
	}
	fa, fb := a.Fields(), b.Fields()
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i].Name != fb[i].Name || fa[i].Offset != fb[i].Offset {
			return false
		}
		if !e.equivalent(fa[i].Type, fb[i].Type) {
			return false
		}
	}
	return true
}
