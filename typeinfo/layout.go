package typeinfo

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Layout describes the size and alignment of a value in memory.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// maxSize is the largest size a layout may describe once rounded up to its
// alignment.
const maxSize = uintptr(math.MaxInt)

var (
	// ErrOutOfBounds is returned when a layout computation overflows the
	// address space.
	ErrOutOfBounds = errors.New("layout out of bounds")

	// ErrInvalidLayout is returned when a size/alignment pair cannot describe
	// a valid layout.
	ErrInvalidLayout = errors.New("invalid layout")
)

// NewLayout validates size and align and returns the resulting Layout. The
// alignment must be a non-zero power of two and size rounded up to align must
// not overflow.
func NewLayout(size, align uintptr) (Layout, error) {
	if align == 0 || align&(align-1) != 0 {
		return Layout{}, fmt.Errorf("%w: alignment %d is not a power of two", ErrInvalidLayout, align)
	}
	if size > maxSize-(align-1) {
		return Layout{}, fmt.Errorf("%w: size %d with alignment %d", ErrOutOfBounds, size, align)
	}
	return Layout{Size: size, Align: align}, nil
}

// LayoutOf is NewLayout for layouts known to be valid. It panics otherwise.
func LayoutOf(size, align uintptr) Layout {
	l, err := NewLayout(size, align)
	if err != nil {
		panic(err)
	}
	return l
}

// padding returns the bytes needed after size to reach a multiple of align.
func padding(size, align uintptr) uintptr {
	return (align - size%align) % align
}

// PadToAlign returns l with its size rounded up to a multiple of its
// alignment.
func (l Layout) PadToAlign() Layout {
	return Layout{Size: l.Size + padding(l.Size, l.Align), Align: l.Align}
}

// Extend returns the layout of l immediately followed by next, together with
// the offset at which next starts. The result is not padded to its alignment.
func (l Layout) Extend(next Layout) (Layout, uintptr, error) {
	align := max(l.Align, next.Align)
	offset, carry := bits.Add(uint(l.Size), uint(padding(l.Size, next.Align)), 0)
	if carry != 0 {
		return Layout{}, 0, ErrOutOfBounds
	}
	size, carry := bits.Add(offset, uint(next.Size), 0)
	if carry != 0 {
		return Layout{}, 0, ErrOutOfBounds
	}
	out, err := NewLayout(uintptr(size), align)
	if err != nil {
		return Layout{}, 0, err
	}
	return out, uintptr(offset), nil
}

// Repeat returns the layout of n consecutive instances of l, each padded to
// l's alignment, together with the stride between them.
func (l Layout) Repeat(n int) (Layout, uintptr, error) {
	if n < 0 {
		return Layout{}, 0, fmt.Errorf("%w: negative count %d", ErrOutOfBounds, n)
	}
	stride := l.PadToAlign().Size
	hi, lo := bits.Mul(uint(stride), uint(n))
	if hi != 0 || uintptr(lo) > maxSize {
		return Layout{}, 0, fmt.Errorf("%w: %d elements of %d bytes", ErrOutOfBounds, n, stride)
	}
	out, err := NewLayout(uintptr(lo), l.Align)
	if err != nil {
		return Layout{}, 0, err
	}
	return out, stride, nil
}

func (l Layout) String() string {
	return fmt.Sprintf("{size: %d, align: %d}", l.Size, l.Align)
}
