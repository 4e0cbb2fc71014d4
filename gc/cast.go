package gc

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/chazu/heapcore/typeinfo"
)

// scalar is a decoded primitive value.
type scalar struct {
	p typeinfo.Primitive
	i int64   // signed integers
	u uint64  // unsigned integers and bool
	f float64 // floats
}

func readScalar(p typeinfo.Primitive, b []byte) scalar {
	s := scalar{p: p}
	switch p {
	case typeinfo.Bool:
		if b[0] != 0 {
			s.u = 1
		}
	case typeinfo.I8:
		s.i = int64(int8(b[0]))
	case typeinfo.I16:
		s.i = int64(int16(binary.LittleEndian.Uint16(b)))
	case typeinfo.I32:
		s.i = int64(int32(binary.LittleEndian.Uint32(b)))
	case typeinfo.I64:
		s.i = int64(binary.LittleEndian.Uint64(b))
	case typeinfo.U8:
		s.u = uint64(b[0])
	case typeinfo.U16:
		s.u = uint64(binary.LittleEndian.Uint16(b))
	case typeinfo.U32:
		s.u = uint64(binary.LittleEndian.Uint32(b))
	case typeinfo.U64:
		s.u = binary.LittleEndian.Uint64(b)
	case typeinfo.F32:
		s.f = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case typeinfo.F64:
		s.f = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return s
}

// putBits writes the low p.Size() bytes of v.
func putBits(p typeinfo.Primitive, b []byte, v uint64) {
	switch p.Size() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// signedFits reports whether v fits a signed integer of the given bit width.
func signedFits(v int64, width int) bool {
	if width >= 64 {
		return true
	}
	lim := int64(1) << (width - 1)
	return v >= -lim && v < lim
}

func unsignedFits(v uint64, width int) bool {
	return width >= 64 || v < uint64(1)<<width
}

// exactInFloat reports whether magnitude m is representable with a float
// mantissa of the given precision.
func exactInFloat(m uint64, mantissa int) bool {
	if m == 0 {
		return true
	}
	return bits.Len64(m)-bits.TrailingZeros64(m) <= mantissa
}

func mantissaBits(p typeinfo.Primitive) int {
	if p == typeinfo.F32 {
		return 24
	}
	return 53
}

// tryCast converts the primitive in src to the primitive type of dst.
// Conversions that would lose information report false and leave dst
// untouched:
//   - integer to integer succeeds when the value is in range
//   - bool to integer yields 0 or 1; nothing converts to bool
//   - integer to float succeeds when the value is exactly representable
//   - f32 to f64 always succeeds; f64 to f32 when it round-trips
//   - float to integer succeeds for integral values in range
func tryCast(from, to typeinfo.Primitive, src, dst []byte) bool {
	if from == to {
		copy(dst[:to.Size()], src[:from.Size()])
		return true
	}
	if to == typeinfo.Bool {
		return false
	}

	v := readScalar(from, src)
	width := int(to.Size()) * 8

	switch {
	case from == typeinfo.Bool:
		if !to.IsInteger() {
			return false
		}
		putBits(to, dst, v.u)
		return true

	case from.IsSigned() && to.IsSigned():
		if !signedFits(v.i, width) {
			return false
		}
		putBits(to, dst, uint64(v.i))
		return true

	case from.IsSigned() && to.IsUnsigned():
		if v.i < 0 || !unsignedFits(uint64(v.i), width) {
			return false
		}
		putBits(to, dst, uint64(v.i))
		return true

	case from.IsUnsigned() && to.IsSigned():
		if v.u > math.MaxInt64 || !signedFits(int64(v.u), width) {
			return false
		}
		putBits(to, dst, v.u)
		return true

	case from.IsUnsigned() && to.IsUnsigned():
		if !unsignedFits(v.u, width) {
			return false
		}
		putBits(to, dst, v.u)
		return true

	case from.IsInteger() && to.IsFloat():
		var f float64
		var mag uint64
		if from.IsSigned() {
			f = float64(v.i)
			mag = uint64(v.i)
			if v.i < 0 {
				mag = -mag
			}
		} else {
			f = float64(v.u)
			mag = v.u
		}
		if !exactInFloat(mag, mantissaBits(to)) {
			return false
		}
		writeFloat(to, dst, f)
		return true

	case from == typeinfo.F32 && to == typeinfo.F64:
		writeFloat(to, dst, v.f)
		return true

	case from == typeinfo.F64 && to == typeinfo.F32:
		if !math.IsNaN(v.f) && float64(float32(v.f)) != v.f {
			return false
		}
		writeFloat(to, dst, v.f)
		return true

	case from.IsFloat() && to.IsInteger():
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) || v.f != math.Trunc(v.f) {
			return false
		}
		if to.IsSigned() {
			lim := math.Ldexp(1, width-1)
			if v.f < -lim || v.f >= lim {
				return false
			}
			putBits(to, dst, uint64(int64(v.f)))
			return true
		}
		if v.f < 0 || v.f >= math.Ldexp(1, width) {
			return false
		}
		putBits(to, dst, uint64(v.f))
		return true
	}
	return false
}

func writeFloat(p typeinfo.Primitive, b []byte, f float64) {
	if p == typeinfo.F32 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
}
