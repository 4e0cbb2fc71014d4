package scenario

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/heapcore/typeinfo"
)

// encodeValue writes a TOML scalar into a primitive slot.
func encodeValue(p typeinfo.Primitive, v any, dst []byte) error {
	switch x := v.(type) {
	case bool:
		if p != typeinfo.Bool {
			return fmt.Errorf("cannot store bool in %s", p)
		}
		dst[0] = 0
		if x {
			dst[0] = 1
		}
		return nil

	case int64:
		switch {
		case p.IsSigned():
			if bits := int(p.Size()) * 8; bits < 64 {
				lim := int64(1) << (bits - 1)
				if x < -lim || x >= lim {
					return fmt.Errorf("%d overflows %s", x, p)
				}
			}
			putUint(p, dst, uint64(x))
		case p.IsUnsigned():
			if x < 0 {
				return fmt.Errorf("%d overflows %s", x, p)
			}
			if bits := int(p.Size()) * 8; bits < 64 && uint64(x) >= uint64(1)<<bits {
				return fmt.Errorf("%d overflows %s", x, p)
			}
			putUint(p, dst, uint64(x))
		case p.IsFloat():
			return encodeValue(p, float64(x), dst)
		default:
			return fmt.Errorf("cannot store integer in %s", p)
		}
		return nil

	case float64:
		switch p {
		case typeinfo.F32:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(x)))
		case typeinfo.F64:
			binary.LittleEndian.PutUint64(dst, math.Float64bits(x))
		default:
			return fmt.Errorf("cannot store float in %s", p)
		}
		return nil
	}
	return fmt.Errorf("unsupported value %v (%T)", v, v)
}

func putUint(p typeinfo.Primitive, dst []byte, v uint64) {
	switch p.Size() {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

// decodeValue reads a primitive slot as bool, int64, uint64 or float64.
func decodeValue(p typeinfo.Primitive, src []byte) any {
	switch p {
	case typeinfo.Bool:
		return src[0] != 0
	case typeinfo.I8:
		return int64(int8(src[0]))
	case typeinfo.I16:
		return int64(int16(binary.LittleEndian.Uint16(src)))
	case typeinfo.I32:
		return int64(int32(binary.LittleEndian.Uint32(src)))
	case typeinfo.I64:
		return int64(binary.LittleEndian.Uint64(src))
	case typeinfo.U8:
		return uint64(src[0])
	case typeinfo.U16:
		return uint64(binary.LittleEndian.Uint16(src))
	case typeinfo.U32:
		return uint64(binary.LittleEndian.Uint32(src))
	case typeinfo.U64:
		return binary.LittleEndian.Uint64(src)
	case typeinfo.F32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	case typeinfo.F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src))
	}
	return nil
}

// valuesEqual compares a decoded slot with a TOML scalar.
func valuesEqual(got, want any) bool {
	switch w := want.(type) {
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case int64:
		switch g := got.(type) {
		case int64:
			return g == w
		case uint64:
			return w >= 0 && g == uint64(w)
		case float64:
			return g == float64(w)
		}
	case float64:
		switch g := got.(type) {
		case float64:
			return g == w
		case int64:
			return float64(g) == w
		case uint64:
			return float64(g) == w
		}
	}
	return false
}
