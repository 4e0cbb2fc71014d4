package gc

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/chazu/heapcore/typeinfo"
)

func encodeInt(p typeinfo.Primitive, v int64) []byte {
	b := make([]byte, 8)
	putBits(p, b, uint64(v))
	return b[:p.Size()]
}

func encodeFloat(p typeinfo.Primitive, f float64) []byte {
	b := make([]byte, 8)
	writeFloat(p, b, f)
	return b[:p.Size()]
}

func TestTryCast(t *testing.T) {
	tests := []struct {
		name     string
		from, to typeinfo.Primitive
		src      []byte
		ok       bool
		want     []byte
	}{
		{"i16 to i64", typeinfo.I16, typeinfo.I64, encodeInt(typeinfo.I16, -300), true, encodeInt(typeinfo.I64, -300)},
		{"i64 to i8 in range", typeinfo.I64, typeinfo.I8, encodeInt(typeinfo.I64, -128), true, encodeInt(typeinfo.I8, -128)},
		{"i64 to i8 overflow", typeinfo.I64, typeinfo.I8, encodeInt(typeinfo.I64, 128), false, nil},
		{"negative to unsigned", typeinfo.I32, typeinfo.U32, encodeInt(typeinfo.I32, -1), false, nil},
		{"u8 to i8 overflow", typeinfo.U8, typeinfo.I8, []byte{200}, false, nil},
		{"u64 max to i64", typeinfo.U64, typeinfo.I64, encodeInt(typeinfo.U64, -1), false, nil},
		{"u16 to u8", typeinfo.U16, typeinfo.U8, encodeInt(typeinfo.U16, 255), true, []byte{255}},
		{"bool to i32", typeinfo.Bool, typeinfo.I32, []byte{1}, true, encodeInt(typeinfo.I32, 1)},
		{"bool to f64", typeinfo.Bool, typeinfo.F64, []byte{1}, false, nil},
		{"i32 to bool", typeinfo.I32, typeinfo.Bool, encodeInt(typeinfo.I32, 1), false, nil},
		{"i32 to f32 exact", typeinfo.I32, typeinfo.F32, encodeInt(typeinfo.I32, 1<<24), true, encodeFloat(typeinfo.F32, 1<<24)},
		{"i32 to f32 inexact", typeinfo.I32, typeinfo.F32, encodeInt(typeinfo.I32, 1<<24+1), false, nil},
		{"i64 to f64 negative", typeinfo.I64, typeinfo.F64, encodeInt(typeinfo.I64, -12345), true, encodeFloat(typeinfo.F64, -12345)},
		{"f32 to f64", typeinfo.F32, typeinfo.F64, encodeFloat(typeinfo.F32, 0.1), true, encodeFloat(typeinfo.F64, float64(float32(0.1)))},
		{"f64 to f32 exact", typeinfo.F64, typeinfo.F32, encodeFloat(typeinfo.F64, 2.5), true, encodeFloat(typeinfo.F32, 2.5)},
		{"f64 to f32 inexact", typeinfo.F64, typeinfo.F32, encodeFloat(typeinfo.F64, 0.1), false, nil},
		{"f64 to i16 integral", typeinfo.F64, typeinfo.I16, encodeFloat(typeinfo.F64, -42), true, encodeInt(typeinfo.I16, -42)},
		{"f64 to i16 fractional", typeinfo.F64, typeinfo.I16, encodeFloat(typeinfo.F64, 1.5), false, nil},
		{"f64 to u8 out of range", typeinfo.F64, typeinfo.U8, encodeFloat(typeinfo.F64, 256), false, nil},
		{"f32 nan to i32", typeinfo.F32, typeinfo.I32, encodeFloat(typeinfo.F32, math.NaN()), false, nil},
		{"same type", typeinfo.U32, typeinfo.U32, encodeInt(typeinfo.U32, 0xdeadbeef), true, encodeInt(typeinfo.U32, 0xdeadbeef)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.to.Size())
			ok := tryCast(tt.from, tt.to, tt.src, dst)
			if ok != tt.ok {
				t.Fatalf("tryCast ok = %v, want %v", ok, tt.ok)
			}
			want := tt.want
			if !tt.ok {
				want = make([]byte, tt.to.Size())
			}
			if string(dst) != string(want) {
				t.Fatalf("dst = %x, want %x", dst, want)
			}
		})
	}
}

func TestTryCastNaNNarrowing(t *testing.T) {
	dst := make([]byte, 4)
	if !tryCast(typeinfo.F64, typeinfo.F32, encodeFloat(typeinfo.F64, math.NaN()), dst) {
		t.Fatal("NaN must narrow to f32")
	}
	if f := math.Float32frombits(binary.LittleEndian.Uint32(dst)); !math.IsNaN(float64(f)) {
		t.Fatalf("narrowed NaN = %v", f)
	}
}
