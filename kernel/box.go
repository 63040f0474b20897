package kernel

import (
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// Box stores v in a new immutable box capability.
func (m *Module) Box(v Scalar) (Cap, error) {
	const op = "box"

	if err := m.checkOpen(errors.PhaseBox); err != nil {
		return Null, m.record(err)
	}
	if v.Kind() < ScalarI32 || v.Kind() > ScalarBool {
		return Null, m.record(errors.InvalidInput(errors.PhaseBox, "box of untagged scalar"))
	}

	c, err := m.create(errors.PhaseBox, op, resource.KindBox, v)
	return c, m.record(err)
}

// Unbox returns the scalar held by box c.
func (m *Module) Unbox(c Cap) (Scalar, error) {
	const op = "unbox"

	if err := m.checkOpen(errors.PhaseBox); err != nil {
		return Scalar{}, m.record(err)
	}

	_, obj, err := m.object(errors.PhaseBox, op, c)
	if err != nil {
		return Scalar{}, m.record(err)
	}
	if obj.Kind != resource.KindBox {
		return Scalar{}, m.record(errors.TypeMismatch(errors.PhaseBox, op, resource.KindBox.String(), obj.Kind.String()))
	}
	if obj.Revoked {
		return Scalar{}, m.record(errors.Revoked(errors.PhaseBox, op, uint32(c)))
	}
	return obj.Value.(Scalar), nil
}

func (m *Module) BoxI32(v int32) (Cap, error)   { return m.Box(I32(v)) }
func (m *Module) BoxU32(v uint32) (Cap, error)  { return m.Box(U32(v)) }
func (m *Module) BoxF32(v float32) (Cap, error) { return m.Box(F32(v)) }
func (m *Module) BoxF64(v float64) (Cap, error) { return m.Box(F64(v)) }
func (m *Module) BoxBool(v bool) (Cap, error)   { return m.Box(Bool(v)) }

func (m *Module) UnboxI32(c Cap) (int32, error) {
	s, err := m.unboxAs(c, ScalarI32)
	v, _ := s.I32()
	return v, err
}

func (m *Module) UnboxU32(c Cap) (uint32, error) {
	s, err := m.unboxAs(c, ScalarU32)
	v, _ := s.U32()
	return v, err
}

func (m *Module) UnboxF32(c Cap) (float32, error) {
	s, err := m.unboxAs(c, ScalarF32)
	v, _ := s.F32()
	return v, err
}

func (m *Module) UnboxF64(c Cap) (float64, error) {
	s, err := m.unboxAs(c, ScalarF64)
	v, _ := s.F64()
	return v, err
}

func (m *Module) UnboxBool(c Cap) (bool, error) {
	s, err := m.unboxAs(c, ScalarBool)
	v, _ := s.Bool()
	return v, err
}

func (m *Module) unboxAs(c Cap, want ScalarKind) (Scalar, error) {
	s, err := m.Unbox(c)
	if err != nil {
		return Scalar{}, err
	}
	if s.Kind() != want {
		return Scalar{}, m.record(errors.TypeMismatch(errors.PhaseBox, "unbox_"+want.String(), want.String(), s.Kind().String()))
	}
	return s, nil
}
