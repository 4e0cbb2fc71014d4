package gc

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/heapcore/typeinfo"
)

// Handle is a stable, copyable reference to a heap object.
//
// The low 32 bits hold the slab slot index plus one and the high 32 bits the
// slot generation, so the zero Handle is never a live object.
type Handle uint64

// Nil is the null handle.
const Nil Handle = 0

// HandleSize is the number of bytes a handle occupies in a boxed slot.
const HandleSize = typeinfo.PointerSize

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index)+1))
}

// index returns the slab index encoded in h.
func (h Handle) index() int { return int(uint32(h)) - 1 }

// generation returns the slot generation encoded in h.
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	if h == Nil {
		return "nil"
	}
	return fmt.Sprintf("#%d.%d", h.index(), h.generation())
}

// ReadHandle decodes the handle stored in a boxed slot.
func ReadHandle(slot []byte) Handle {
	return Handle(binary.LittleEndian.Uint64(slot[:HandleSize]))
}

// PutHandle stores h into a boxed slot.
func PutHandle(slot []byte, h Handle) {
	binary.LittleEndian.PutUint64(slot[:HandleSize], uint64(h))
}
