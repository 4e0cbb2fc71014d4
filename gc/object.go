package gc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chazu/heapcore/typeinfo"
)

var (
	// ErrNotArray is returned by AllocArray for a non-array type.
	ErrNotArray = errors.New("not an array type")

	// ErrUndefinedType is returned when allocating a declared struct whose
	// fields were never defined.
	ErrUndefinedType = errors.New("undefined struct type")
)

// color is the tri-color mark tag.
type color uint8

const (
	white color = iota // unseen this cycle
	gray               // seen, not yet expanded
	black              // expanded
)

// object is the per-object header.
type object struct {
	ty    *typeinfo.Type
	roots uint32
	color color
	data  payload
}

// payload is exactly one of valueData or *arrayData, selected by the kind of
// the header's type.
type payload interface {
	// size is the number of payload bytes accounted in Stats.
	size() uintptr
}

// valueData holds the bytes of a primitive, pointer or struct value.
type valueData []byte

func (v valueData) size() uintptr { return uintptr(len(v)) }

// value returns the value bytes of a non-array object.
func (o *object) value() []byte {
	return o.data.(valueData)
}

// array returns the array block of an array object.
func (o *object) array() *arrayData {
	return o.data.(*arrayData)
}

// ---------------------------------------------------------------------------
// Array block
// ---------------------------------------------------------------------------

// arrayHeaderLayout is the layout of the {length, capacity} block header.
var arrayHeaderLayout = typeinfo.LayoutOf(16, 8)

// arrayData is an array block: a 16-byte header holding length and capacity,
// padding up to the element alignment, then capacity element slots.
type arrayData struct {
	block  []byte
	offset uintptr // start of the first slot
	stride uintptr // distance between slots
	slot   uintptr // bytes per slot
}

func (a *arrayData) size() uintptr { return a.stride * uintptr(a.capacity()) }

func (a *arrayData) length() int {
	return int(binary.LittleEndian.Uint64(a.block[0:8]))
}

func (a *arrayData) capacity() int {
	return int(binary.LittleEndian.Uint64(a.block[8:16]))
}

func (a *arrayData) setLength(n int) {
	binary.LittleEndian.PutUint64(a.block[0:8], uint64(n))
}

// element returns the bytes of slot i.
func (a *arrayData) element(i int) []byte {
	start := a.offset + uintptr(i)*a.stride
	return a.block[start : start+a.slot : start+a.slot]
}

// elements returns the bytes of the first length slots.
func (a *arrayData) elements() []byte {
	return a.block[a.offset : a.offset+uintptr(a.length())*a.stride]
}

// newArrayData lays out and allocates an array block for n elements of elem.
// Length and capacity are both n.
func newArrayData(elem *typeinfo.Type, n int) (*arrayData, error) {
	slot := elem.ReferenceLayout()
	elems, stride, err := slot.Repeat(n)
	if err != nil {
		return nil, fmt.Errorf("array of %d %s: %w", n, elem.Name(), err)
	}
	layout, offset, err := arrayHeaderLayout.Extend(elems)
	if err != nil {
		return nil, fmt.Errorf("array of %d %s: %w", n, elem.Name(), err)
	}

	a := &arrayData{
		block:  make([]byte, layout.Size),
		offset: offset,
		stride: stride,
		slot:   slot.Size,
	}
	binary.LittleEndian.PutUint64(a.block[0:8], uint64(n))
	binary.LittleEndian.PutUint64(a.block[8:16], uint64(n))
	return a, nil
}

// ---------------------------------------------------------------------------
// Object construction
// ---------------------------------------------------------------------------

// newObject allocates zeroed storage for a value of ty. Array types get an
// empty block.
func newObject(ty *typeinfo.Type) (*object, error) {
	if ty.IsArray() {
		return newArrayObject(ty, 0)
	}
	if ty.IsStruct() && !ty.IsDefined() {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedType, ty.Name())
	}
	return &object{
		ty:   ty,
		data: valueData(make([]byte, ty.Size())),
	}, nil
}

func newArrayObject(ty *typeinfo.Type, n int) (*object, error) {
	if !ty.IsArray() {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, ty.Name())
	}
	data, err := newArrayData(ty.ElementType(), n)
	if err != nil {
		return nil, err
	}
	return &object{ty: ty, data: data}, nil
}
