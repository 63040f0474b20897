package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmosis/errors"
)

func TestHandle_UserData(t *testing.T) {
	k := newKernel(t)
	owner := attach(t, k, "owner")
	other := attach(t, k, "other")

	cls := NewClass("point")
	state := &struct{ x, y int }{1, 2}

	h, err := owner.HandleCreate(cls, state, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		mod   *Module
		cap   func() Cap
		class *Class
		kind  errors.Kind
	}{
		{"owner with class", owner, func() Cap { return h }, cls, ""},
		{"same name different class", owner, func() Cap { return h }, NewClass("point"), errors.KindTypeMismatch},
		{"nil class", owner, func() Cap { return h }, nil, errors.KindTypeMismatch},
		{"non-owner", other, func() Cap {
			g, err := k.Grant(owner, h, other)
			require.NoError(t, err)
			return g
		}, cls, errors.KindOwnership},
		{"invalid index", owner, func() Cap { return 77 }, cls, errors.KindInvalidReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.mod.HandleUserData(tt.cap(), tt.class)
			if tt.kind == "" {
				require.NoError(t, err)
				require.Same(t, state, got)
				return
			}
			require.Nil(t, got)
			require.True(t, errors.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestHandle_UserDataWrongVariant(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	b, _ := m.BoxI32(1)
	_, err := m.HandleUserData(b, nil)
	require.True(t, errors.IsKind(err, errors.KindTypeMismatch))
}

func TestHandle_NilClassMatchesNil(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	h, err := m.HandleCreate(nil, "data", nil)
	require.NoError(t, err)

	got, err := m.HandleUserData(h, nil)
	require.NoError(t, err)
	require.Equal(t, "data", got)

	_, err = m.HandleUserData(h, NewClass("x"))
	require.True(t, errors.IsKind(err, errors.KindTypeMismatch))
}

func TestHandle_Revoked(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	h, _ := m.HandleCreate(nil, 1, nil)
	require.NoError(t, m.Revoke(h))

	_, err := m.HandleUserData(h, nil)
	require.True(t, errors.IsKind(err, errors.KindRevoked))
}

func TestHandle_CreateValidation(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	_, err := m.HandleCreate(nil, nil, []Func{{Arity: 1}})
	require.True(t, errors.IsKind(err, errors.KindInvalidInput))

	_, err = m.HandleCreate(nil, nil, []Func{NewFunc(5, echo)})
	require.True(t, errors.IsKind(err, errors.KindInvalidInput))

	_, err = m.HandleCreate(nil, nil, []Func{NewFunc(AnyArity, echo)})
	require.NoError(t, err)
}

func TestHandle_DropsUserData(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	d := &dropCount{}
	h, _ := m.HandleCreate(nil, d, nil)
	r, _ := m.Retain(h)

	require.NoError(t, m.Release(h))
	require.Zero(t, d.n)
	require.NoError(t, m.Release(r))
	require.Equal(t, 1, d.n)
}
