package typeinfo

import "fmt"

// Primitive enumerates the scalar types.
type Primitive uint8

const (
	Bool Primitive = iota + 1
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
)

var primitiveNames = map[Primitive]string{
	Bool: "bool",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	I64:  "i64",
	U8:   "u8",
	U16:  "u16",
	U32:  "u32",
	U64:  "u64",
	F32:  "f32",
	F64:  "f64",
}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Primitive(%d)", uint8(p))
}

// Size returns the primitive's size in bytes. Primitives are aligned to
// their size.
func (p Primitive) Size() uintptr {
	switch p {
	case Bool, I8, U8:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64:
		return 8
	default:
		return 0
	}
}

func (p Primitive) IsSigned() bool   { return p >= I8 && p <= I64 }
func (p Primitive) IsUnsigned() bool { return p >= U8 && p <= U64 }
func (p Primitive) IsInteger() bool  { return p.IsSigned() || p.IsUnsigned() }
func (p Primitive) IsFloat() bool    { return p == F32 || p == F64 }

// ParsePrimitive returns the primitive with the given name ("i32", "f64",
// ...).
func ParsePrimitive(name string) (Primitive, bool) {
	for p, n := range primitiveNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

var primitiveTypes = func() map[Primitive]*Type {
	m := make(map[Primitive]*Type, len(primitiveNames))
	for p, name := range primitiveNames {
		m[p] = &Type{
			name:      name,
			kind:      KindPrimitive,
			layout:    Layout{Size: p.Size(), Align: p.Size()},
			primitive: p,
			defined:   true,
		}
	}
	return m
}()

// Of returns the shared descriptor for a primitive type.
func Of(p Primitive) *Type {
	t, ok := primitiveTypes[p]
	if !ok {
		panic(fmt.Sprintf("typeinfo.Of: unknown primitive %d", uint8(p)))
	}
	return t
}
