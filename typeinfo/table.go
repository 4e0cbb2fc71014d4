package typeinfo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateType is returned when inserting a second type with a name
// already present in a Table.
var ErrDuplicateType = errors.New("duplicate type")

// Table is a name-indexed set of types produced by one compilation. Array
// types are memoized per element type so that lookups of "[T]" always yield
// the same descriptor. A Table is not safe for concurrent mutation.
type Table struct {
	byName map[string]*Type
	order  []*Type
	arrays map[*Type]*Type
}

// NewTable creates a table holding the given types.
func NewTable(types ...*Type) (*Table, error) {
	t := &Table{
		byName: make(map[string]*Type),
		arrays: make(map[*Type]*Type),
	}
	for _, ty := range types {
		if err := t.Insert(ty); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Insert adds a type to the table.
func (t *Table) Insert(ty *Type) error {
	if _, ok := t.byName[ty.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, ty.Name())
	}
	t.byName[ty.Name()] = ty
	t.order = append(t.order, ty)
	if ty.IsArray() {
		t.arrays[ty.ElementType()] = ty
	}
	return nil
}

// Types returns the inserted types in insertion order.
func (t *Table) Types() []*Type {
	out := make([]*Type, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of inserted types.
func (t *Table) Len() int { return len(t.order) }

// Array returns the table's array type for elem, creating and inserting it
// on first use.
func (t *Table) Array(elem *Type) *Type {
	if arr, ok := t.arrays[elem]; ok {
		return arr
	}
	arr := ArrayOf(elem)
	t.arrays[elem] = arr
	t.byName[arr.Name()] = arr
	t.order = append(t.order, arr)
	return arr
}

// Lookup resolves a type name. Primitive names resolve to the shared
// primitive descriptors and "[T]" resolves to the memoized array of T.
func (t *Table) Lookup(name string) (*Type, bool) {
	if ty, ok := t.byName[name]; ok {
		return ty, true
	}
	if p, ok := ParsePrimitive(name); ok {
		return Of(p), true
	}
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		elem, ok := t.Lookup(name[1 : len(name)-1])
		if !ok {
			return nil, false
		}
		return t.Array(elem), true
	}
	return nil, false
}
