// Package mapping describes how heap objects laid out under one set of types
// correspond to a new set of types after recompilation.
package mapping

import (
	"fmt"

	"github.com/chazu/heapcore/typeinfo"
)

// Mapping is the old→new type correspondence consumed by the heap migrator.
type Mapping struct {
	// Deletions are old types with no successor.
	Deletions map[*typeinfo.Type]struct{}

	// Identical pairs old types with new types of identical layout.
	Identical []Pair

	// Conversions maps an old type to the description of its new layout.
	Conversions map[*typeinfo.Type]*Conversion
}

// Pair is an (old, new) type pair.
type Pair struct {
	Old *typeinfo.Type
	New *typeinfo.Type
}

// Conversion describes how to build a value of NewType from an old value.
type Conversion struct {
	NewType      *typeinfo.Type
	FieldMapping []FieldMapping
}

// FieldMapping describes how one destination field is populated.
type FieldMapping struct {
	NewType   *typeinfo.Type
	NewOffset uintptr
	Action    Action
}

// Action is one of Cast, Copy or Insert.
type Action interface {
	isAction()
	String() string
}

// Cast converts the old field at OldOffset of type OldType into the new
// field's type.
type Cast struct {
	OldOffset uintptr
	OldType   *typeinfo.Type
}

// Copy copies the destination field's size in bytes from OldOffset.
type Copy struct {
	OldOffset uintptr
}

// Insert marks a field with no predecessor.
type Insert struct{}

func (Cast) isAction()   {}
func (Copy) isAction()   {}
func (Insert) isAction() {}

func (c Cast) String() string {
	return fmt.Sprintf("cast(%s @%d)", c.OldType.Name(), c.OldOffset)
}

func (c Copy) String() string { return fmt.Sprintf("copy(@%d)", c.OldOffset) }

func (Insert) String() string { return "insert" }

// Empty returns a Mapping with no entries.
func Empty() *Mapping {
	return &Mapping{
		Deletions:   make(map[*typeinfo.Type]struct{}),
		Conversions: make(map[*typeinfo.Type]*Conversion),
	}
}

// IsDeleted reports whether ty is in the deletion set.
func (m *Mapping) IsDeleted(ty *typeinfo.Type) bool {
	_, ok := m.Deletions[ty]
	return ok
}

// IdenticalTo returns the new type paired with old in the identical set.
func (m *Mapping) IdenticalTo(old *typeinfo.Type) (*typeinfo.Type, bool) {
	for _, p := range m.Identical {
		if p.Old == old {
			return p.New, true
		}
	}
	return nil, false
}

// Conversion returns the conversion registered for old, or nil.
func (m *Mapping) Conversion(old *typeinfo.Type) *Conversion {
	return m.Conversions[old]
}

// Delete adds ty to the deletion set.
func (m *Mapping) Delete(ty *typeinfo.Type) {
	m.Deletions[ty] = struct{}{}
}

// AddIdentical records that old is laid out identically to new.
func (m *Mapping) AddIdentical(old, new *typeinfo.Type) {
	m.Identical = append(m.Identical, Pair{Old: old, New: new})
}

// AddConversion registers a conversion for old.
func (m *Mapping) AddConversion(old *typeinfo.Type, c *Conversion) {
	m.Conversions[old] = c
}
