// Package typeinfo describes the memory shape of values managed by the heap.
//
// A Type is produced by the compiler front end and consumed read-only by the
// allocator, collector and migrator. Types are immutable once defined and are
// shared by pointer; two Types are the same type iff they are the same
// pointer.
package typeinfo

import (
	"errors"
	"fmt"
	"strings"
)

// PointerSize is the size and alignment of a raw pointer or heap handle slot.
const PointerSize = 8

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind classifies a Type.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindPointer
	KindStruct
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindPointer:
		return "pointer"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MemoryKind selects how a struct is stored when it appears as a field or
// array element.
type MemoryKind uint8

const (
	// MemoryGC structs are boxed: fields hold a handle to a separately
	// allocated object.
	MemoryGC MemoryKind = iota

	// MemoryValue structs are inline: fields embed the struct bytes.
	MemoryValue
)

func (m MemoryKind) String() string {
	if m == MemoryValue {
		return "value"
	}
	return "gc"
}

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// Field is a named member of a struct type.
type Field struct {
	Name   string
	Type   *Type
	Offset uintptr
}

// Type describes the layout and shape of a value.
type Type struct {
	name      string
	kind      Kind
	layout    Layout
	primitive Primitive
	memory    MemoryKind
	fields    []Field
	elem      *Type
	mutable   bool
	defined   bool
}

// Name returns the type's name. Struct identity across recompilations is
// decided by name.
func (t *Type) Name() string { return t.name }

// Kind returns the type's kind.
func (t *Type) Kind() Kind { return t.kind }

func (t *Type) IsPrimitive() bool { return t.kind == KindPrimitive }
func (t *Type) IsPointer() bool   { return t.kind == KindPointer }
func (t *Type) IsStruct() bool    { return t.kind == KindStruct }
func (t *Type) IsArray() bool     { return t.kind == KindArray }

// ValueLayout returns the layout of the type's own value bytes. For arrays
// this is the layout of a handle, since array storage is always boxed.
func (t *Type) ValueLayout() Layout { return t.layout }

// Size is shorthand for ValueLayout().Size.
func (t *Type) Size() uintptr { return t.layout.Size }

// Align is shorthand for ValueLayout().Align.
func (t *Type) Align() uintptr { return t.layout.Align }

// IsBoxed reports whether a field or element of this type is stored as a
// handle to a separate heap object. GC structs and arrays are boxed.
func (t *Type) IsBoxed() bool {
	switch t.kind {
	case KindArray:
		return true
	case KindStruct:
		return t.memory == MemoryGC
	default:
		return false
	}
}

// IsValueType reports whether the type is stored inline.
func (t *Type) IsValueType() bool { return !t.IsBoxed() }

// ReferenceLayout returns the layout used when the type is stored in a field
// or array slot: a handle slot for boxed types, the value layout otherwise.
func (t *Type) ReferenceLayout() Layout {
	if t.IsBoxed() {
		return Layout{Size: PointerSize, Align: PointerSize}
	}
	return t.layout
}

// Primitive returns the primitive kind of a primitive type.
func (t *Type) Primitive() (Primitive, bool) {
	if t.kind != KindPrimitive {
		return 0, false
	}
	return t.primitive, true
}

// MemoryKind returns the storage kind of a struct type.
func (t *Type) MemoryKind() MemoryKind { return t.memory }

// Fields returns the struct's fields in declaration order. The returned slice
// must not be modified.
func (t *Type) Fields() []Field { return t.fields }

// Field looks up a struct field by name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ElementType returns the element type of an array, or nil.
func (t *Type) ElementType() *Type {
	if t.kind != KindArray {
		return nil
	}
	return t.elem
}

// Pointee returns the target type of a pointer, or nil.
func (t *Type) Pointee() *Type {
	if t.kind != KindPointer {
		return nil
	}
	return t.elem
}

// IsMutable reports whether a pointer type is mutable.
func (t *Type) IsMutable() bool { return t.mutable }

// IsDefined reports whether a declared struct has had its fields defined.
func (t *Type) IsDefined() bool { return t.defined }

func (t *Type) String() string {
	if t.kind != KindStruct {
		return t.name
	}
	var sb strings.Builder
	sb.WriteString("struct")
	if t.memory == MemoryValue {
		sb.WriteString("(value)")
	}
	sb.WriteByte(' ')
	sb.WriteString(t.name)
	sb.WriteString(" {")
	for i, f := range t.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, " %s: %s", f.Name, f.Type.Name())
	}
	sb.WriteString(" }")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

var (
	// ErrAlreadyDefined is returned when defining the fields of a struct twice.
	ErrAlreadyDefined = errors.New("struct already defined")

	// ErrUndefinedInline is returned when a struct embeds an inline struct
	// whose fields are not yet defined.
	ErrUndefinedInline = errors.New("inline field of undefined struct")
)

// ArrayOf returns a new array type with the given element type.
func ArrayOf(elem *Type) *Type {
	return &Type{
		name:    "[" + elem.Name() + "]",
		kind:    KindArray,
		layout:  Layout{Size: PointerSize, Align: PointerSize},
		elem:    elem,
		defined: true,
	}
}

// PointerTo returns a new raw pointer type. Raw pointers are never traced.
func PointerTo(target *Type, mutable bool) *Type {
	prefix := "*const "
	if mutable {
		prefix = "*mut "
	}
	return &Type{
		name:    prefix + target.Name(),
		kind:    KindPointer,
		layout:  Layout{Size: PointerSize, Align: PointerSize},
		elem:    target,
		mutable: mutable,
		defined: true,
	}
}

// DeclareStruct returns a struct type whose fields are defined later with
// Define. Declaring first allows self-referential and mutually recursive
// boxed fields.
func DeclareStruct(name string, memory MemoryKind) *Type {
	return &Type{
		name:   name,
		kind:   KindStruct,
		memory: memory,
		layout: Layout{Size: 0, Align: 1},
	}
}

// FieldSpec names a field and its type for Define.
type FieldSpec struct {
	Name string
	Type *Type
}

// Define lays out the fields of a declared struct with C-style ordering and
// padding. It may be called once.
func (t *Type) Define(fields ...FieldSpec) error {
	if t.kind != KindStruct {
		return fmt.Errorf("%s: cannot define fields of a %s type", t.name, t.kind)
	}
	if t.defined {
		return fmt.Errorf("%s: %w", t.name, ErrAlreadyDefined)
	}

	layout := Layout{Size: 0, Align: 1}
	out := make([]Field, 0, len(fields))
	for _, spec := range fields {
		if spec.Type == nil {
			return fmt.Errorf("%s.%s: missing field type", t.name, spec.Name)
		}
		if spec.Type.IsStruct() && !spec.Type.IsBoxed() && !spec.Type.defined {
			return fmt.Errorf("%s.%s: %w %s", t.name, spec.Name, ErrUndefinedInline, spec.Type.Name())
		}
		next, offset, err := layout.Extend(spec.Type.ReferenceLayout())
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.name, spec.Name, err)
		}
		layout = next
		out = append(out, Field{Name: spec.Name, Type: spec.Type, Offset: offset})
	}

	t.fields = out
	t.layout = layout.PadToAlign()
	t.defined = true
	return nil
}

// StructBuilder builds a struct type field by field.
type StructBuilder struct {
	name   string
	memory MemoryKind
	fields []FieldSpec
}

// NewStruct starts a boxed (GC) struct named name.
func NewStruct(name string) *StructBuilder {
	return &StructBuilder{name: name, memory: MemoryGC}
}

// Value makes the struct an inline value type.
func (b *StructBuilder) Value() *StructBuilder {
	b.memory = MemoryValue
	return b
}

// Add appends a field.
func (b *StructBuilder) Add(name string, ty *Type) *StructBuilder {
	b.fields = append(b.fields, FieldSpec{Name: name, Type: ty})
	return b
}

// Build lays out the struct.
func (b *StructBuilder) Build() (*Type, error) {
	t := DeclareStruct(b.name, b.memory)
	if err := t.Define(b.fields...); err != nil {
		return nil, err
	}
	return t, nil
}

// MustBuild is Build that panics on error, for statically known types.
func (b *StructBuilder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
