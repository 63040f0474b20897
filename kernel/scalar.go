package kernel

import (
	"math"
	"strconv"
)

// ScalarKind tags the primitive held by a box.
type ScalarKind uint8

const (
	ScalarI32 ScalarKind = iota + 1
	ScalarU32
	ScalarF32
	ScalarF64
	ScalarBool
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarI32:
		return "i32"
	case ScalarU32:
		return "u32"
	case ScalarF32:
		return "f32"
	case ScalarF64:
		return "f64"
	case ScalarBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Scalar is an immutable tagged primitive. Floats are stored by bit pattern
// so NaN payloads and negative zero survive boxing.
type Scalar struct {
	bits uint64
	kind ScalarKind
}

func I32(v int32) Scalar   { return Scalar{kind: ScalarI32, bits: uint64(uint32(v))} }
func U32(v uint32) Scalar  { return Scalar{kind: ScalarU32, bits: uint64(v)} }
func F32(v float32) Scalar { return Scalar{kind: ScalarF32, bits: uint64(math.Float32bits(v))} }
func F64(v float64) Scalar { return Scalar{kind: ScalarF64, bits: math.Float64bits(v)} }

func Bool(v bool) Scalar {
	s := Scalar{kind: ScalarBool}
	if v {
		s.bits = 1
	}
	return s
}

// Kind returns the scalar's tag. The zero Scalar has no valid kind.
func (s Scalar) Kind() ScalarKind { return s.kind }

// Bits returns the raw bit pattern.
func (s Scalar) Bits() uint64 { return s.bits }

func (s Scalar) I32() (int32, bool) {
	return int32(uint32(s.bits)), s.kind == ScalarI32
}

func (s Scalar) U32() (uint32, bool) {
	return uint32(s.bits), s.kind == ScalarU32
}

func (s Scalar) F32() (float32, bool) {
	return math.Float32frombits(uint32(s.bits)), s.kind == ScalarF32
}

func (s Scalar) F64() (float64, bool) {
	return math.Float64frombits(s.bits), s.kind == ScalarF64
}

func (s Scalar) Bool() (bool, bool) {
	return s.bits != 0, s.kind == ScalarBool
}

func (s Scalar) String() string {
	switch s.kind {
	case ScalarI32:
		v, _ := s.I32()
		return "i32:" + strconv.FormatInt(int64(v), 10)
	case ScalarU32:
		v, _ := s.U32()
		return "u32:" + strconv.FormatUint(uint64(v), 10)
	case ScalarF32:
		v, _ := s.F32()
		return "f32:" + strconv.FormatFloat(float64(v), 'g', -1, 32)
	case ScalarF64:
		v, _ := s.F64()
		return "f64:" + strconv.FormatFloat(v, 'g', -1, 64)
	case ScalarBool:
		v, _ := s.Bool()
		return "bool:" + strconv.FormatBool(v)
	default:
		return "invalid"
	}
}
