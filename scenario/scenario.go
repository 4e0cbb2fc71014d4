// Package scenario runs declarative heap scenarios written in TOML.
//
// A scenario declares an initial set of types and a list of steps. Steps
// allocate objects and give them names, write fields, root and unroot
// objects, run collections, reload a new set of types through a computed
// mapping, and check expectations along the way:
//
//	[[types]]
//	name = "Bar"
//	fields = [{ name = "x", type = "i32" }]
//
//	[[steps]]
//	op = "alloc"
//	type = "Bar"
//	as = "b"
//
//	[[steps]]
//	op = "collect"
//	expect = { reclaimed = 1 }
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/heapcore/typeinfo"
)

var (
	// ErrUnknownType indicates a reference to a type that is not declared.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownObject indicates a reference to an unnamed or reclaimed object.
	ErrUnknownObject = errors.New("unknown object")

	// ErrExpectation indicates a failed expectation.
	ErrExpectation = errors.New("expectation failed")
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name  string     `toml:"name"`
	Types []TypeSpec `toml:"types"`
	Steps []Step     `toml:"steps"`
}

// TypeSpec declares a struct type.
type TypeSpec struct {
	Name   string      `toml:"name"`
	Memory string      `toml:"memory"` // "gc" (default) or "value"
	Fields []FieldSpec `toml:"fields"`
}

// FieldSpec declares one struct field. Type is a primitive name, a struct
// name, "[T]" for an array of T, or "*const T" / "*mut T" for a raw pointer.
type FieldSpec struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// Step is one scenario operation.
type Step struct {
	Op     string `toml:"op"`
	Type   string `toml:"type"`
	As     string `toml:"as"`
	Object string `toml:"object"`
	Field  string `toml:"field"` // dotted path through inline structs
	Index  *int   `toml:"index"` // array element
	Length int    `toml:"length"`
	Ref    string `toml:"ref"`
	Value  any    `toml:"value"`

	// Types is the new compilation for a reload step.
	Types []TypeSpec `toml:"types"`

	Expect Expect `toml:"expect"`
}

// Expect lists the checks made after a step. Unset fields are not checked.
type Expect struct {
	Reclaimed *int     `toml:"reclaimed"`
	Live      *int     `toml:"live"`
	Bytes     *int64   `toml:"bytes"`
	Alive     []string `toml:"alive"`
	Freed     []string `toml:"freed"`
	Deleted   []string `toml:"deleted"`
	Type      string   `toml:"type"`
	Value     any      `toml:"value"`
	Ref       string   `toml:"ref"`
	NonNull   bool     `toml:"non-null"`
	Null      bool     `toml:"null"`
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return s, nil
}

// Parse parses scenario TOML.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i, st := range s.Steps {
		if _, ok := ops[st.Op]; !ok {
			return nil, fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
	}
	return &s, nil
}

// BuildTypes resolves a set of type declarations into a table. Struct types
// may refer to each other in any order; boxed fields may be recursive.
func BuildTypes(specs []TypeSpec) (*typeinfo.Table, error) {
	table, err := typeinfo.NewTable()
	if err != nil {
		return nil, err
	}

	declared := make(map[string]*typeinfo.Type, len(specs))
	bySpec := make(map[string]TypeSpec, len(specs))
	for _, spec := range specs {
		memory := typeinfo.MemoryGC
		switch spec.Memory {
		case "", "gc":
		case "value":
			memory = typeinfo.MemoryValue
		default:
			return nil, fmt.Errorf("%s: unknown memory kind %q", spec.Name, spec.Memory)
		}
		ty := typeinfo.DeclareStruct(spec.Name, memory)
		if err := table.Insert(ty); err != nil {
			return nil, err
		}
		declared[spec.Name] = ty
		bySpec[spec.Name] = spec
	}

	b := &typeBuilder{table: table, specs: bySpec, declared: declared, visiting: make(map[string]bool)}
	for _, spec := range specs {
		if err := b.define(declared[spec.Name]); err != nil {
			return nil, err
		}
	}
	return table, nil
}

type typeBuilder struct {
	table    *typeinfo.Table
	specs    map[string]TypeSpec
	declared map[string]*typeinfo.Type
	visiting map[string]bool
}

// define lays out ty, first defining any inline struct it embeds.
func (b *typeBuilder) define(ty *typeinfo.Type) error {
	if ty.IsDefined() {
		return nil
	}
	if b.visiting[ty.Name()] {
		return fmt.Errorf("%s: inline struct contains itself", ty.Name())
	}
	b.visiting[ty.Name()] = true
	defer delete(b.visiting, ty.Name())

	spec := b.specs[ty.Name()]
	fields := make([]typeinfo.FieldSpec, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		fty, err := b.resolve(f.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", ty.Name(), f.Name, err)
		}
		if fty.IsStruct() && !fty.IsBoxed() {
			if err := b.define(fty); err != nil {
				return err
			}
		}
		fields = append(fields, typeinfo.FieldSpec{Name: f.Name, Type: fty})
	}
	return ty.Define(fields...)
}

func (b *typeBuilder) resolve(name string) (*typeinfo.Type, error) {
	return resolveType(b.table, name)
}

// resolveType looks a type name up in table, constructing pointer types.
func resolveType(table *typeinfo.Table, name string) (*typeinfo.Type, error) {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"*const ", "*mut "} {
		if target, ok := strings.CutPrefix(name, prefix); ok {
			ty, err := resolveType(table, target)
			if err != nil {
				return nil, err
			}
			return typeinfo.PointerTo(ty, prefix == "*mut "), nil
		}
	}
	ty, ok := table.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, name)
	}
	return ty, nil
}
