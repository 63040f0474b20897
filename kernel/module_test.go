package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

func newKernel(t *testing.T) *Kernel {
	t.Helper()
	k := New(DefaultOptions())
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func attach(t *testing.T, k *Kernel, name string) *Module {
	t.Helper()
	m, err := k.Attach(name, NewArena(4096))
	require.NoError(t, err)
	return m
}

func TestModule_NullNeverResolves(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	_, err := m.Retain(Null)
	require.True(t, errors.IsKind(err, errors.KindInvalidReference))

	require.True(t, errors.IsKind(m.Release(Null), errors.KindInvalidReference))
	require.True(t, errors.IsKind(m.Revoke(Null), errors.KindInvalidReference))

	_, err = m.UnboxI32(Null)
	require.True(t, errors.IsKind(err, errors.KindInvalidReference))

	_, err = m.Call0(t.Context(), Null, 0)
	require.True(t, errors.IsKind(err, errors.KindInvalidReference))
}

func TestModule_UnknownIndexNeverResolves(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	for _, c := range []Cap{1, 2, 1000, 0xffffffff} {
		_, err := m.Retain(c)
		require.True(t, errors.IsKind(err, errors.KindInvalidReference), "cap %d", c)
	}
}

func TestModule_RetainReturnsFreshIndex(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	b, err := m.BoxI32(7)
	require.NoError(t, err)

	r, err := m.Retain(b)
	require.NoError(t, err)
	require.NotEqual(t, b, r)

	info, err := m.Inspect(r)
	require.NoError(t, err)
	require.Equal(t, uint32(2), info.Refs)

	require.NoError(t, m.Release(b))

	v, err := m.UnboxI32(r)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)

	require.NoError(t, m.Release(r))
	require.Equal(t, resource.Stats{}, k.Stats())
}

func TestModule_DoubleReleaseFails(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	b, err := m.BoxBool(true)
	require.NoError(t, err)
	other, err := m.BoxBool(false)
	require.NoError(t, err)

	require.NoError(t, m.Release(b))
	require.True(t, errors.IsKind(m.Release(b), errors.KindInvalidReference))

	v, err := m.UnboxBool(other)
	require.NoError(t, err)
	require.False(t, v)
	require.Equal(t, 1, m.Caps())
}

func TestModule_SlotReuse(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	a, _ := m.BoxU32(1)
	b, _ := m.BoxU32(2)
	require.NoError(t, m.Release(a))

	c, err := m.BoxU32(3)
	require.NoError(t, err)
	require.Equal(t, a, c)

	v, err := m.UnboxU32(c)
	require.NoError(t, err)
	require.Equal(t, uint32(3), v)

	v, err = m.UnboxU32(b)
	require.NoError(t, err)
	require.Equal(t, uint32(2), v)
}

func TestModule_Revoke(t *testing.T) {
	k := newKernel(t)
	owner := attach(t, k, "owner")
	holder := attach(t, k, "holder")

	b, err := owner.BoxF64(1.5)
	require.NoError(t, err)
	g, err := k.Grant(owner, b, holder)
	require.NoError(t, err)

	t.Run("non-owner cannot revoke", func(t *testing.T) {
		err := holder.Revoke(g)
		require.True(t, errors.IsKind(err, errors.KindOwnership))

		v, err := holder.UnboxF64(g)
		require.NoError(t, err)
		require.Equal(t, 1.5, v)
	})

	t.Run("revoke reaches every holder", func(t *testing.T) {
		require.NoError(t, owner.Revoke(b))
		require.NoError(t, owner.Revoke(b))

		_, err := holder.UnboxF64(g)
		require.True(t, errors.IsKind(err, errors.KindRevoked))
		_, err = owner.UnboxF64(b)
		require.True(t, errors.IsKind(err, errors.KindRevoked))

		_, err = holder.Retain(g)
		require.True(t, errors.IsKind(err, errors.KindRevoked))
	})

	t.Run("revoked slots still release", func(t *testing.T) {
		require.Equal(t, 1, holder.Caps())
		require.NoError(t, holder.Release(g))
		require.NoError(t, owner.Release(b))
		require.Equal(t, resource.Stats{}, k.Stats())
	})
}

func TestModule_TableLimit(t *testing.T) {
	k := New(Options{MaxTableSlots: 2})
	defer k.Close()
	m, err := k.Attach("a", nil)
	require.NoError(t, err)

	a, err := m.BoxI32(1)
	require.NoError(t, err)
	_, err = m.BoxI32(2)
	require.NoError(t, err)

	_, err = m.BoxI32(3)
	require.True(t, errors.IsKind(err, errors.KindExhausted))
	_, err = m.Retain(a)
	require.True(t, errors.IsKind(err, errors.KindExhausted))

	require.Equal(t, 2, k.Stats().Objects)
	require.Equal(t, uint64(2), k.Stats().Refs)
}

func TestModule_LastError(t *testing.T) {
	k := newKernel(t)
	m := attach(t, k, "a")

	require.NoError(t, m.LastError())

	_, err := m.Retain(99)
	require.Error(t, err)
	require.Equal(t, err, m.LastError())

	_, err = m.BoxI32(1)
	require.NoError(t, err)
	require.Error(t, m.LastError(), "success must not clear the last error")

	got := m.TakeLastError()
	require.True(t, errors.IsKind(got, errors.KindInvalidReference))
	require.NoError(t, m.TakeLastError())
}

func TestModule_Close(t *testing.T) {
	k := newKernel(t)
	owner := attach(t, k, "owner")
	holder := attach(t, k, "holder")

	b, _ := owner.BoxI32(5)
	g, err := k.Grant(owner, b, holder)
	require.NoError(t, err)
	_, err = holder.BoxI32(6)
	require.NoError(t, err)

	require.NoError(t, owner.Close())
	require.NoError(t, owner.Close())

	_, ok := k.Module(owner.ID())
	require.False(t, ok)

	_, err = owner.BoxI32(1)
	require.True(t, errors.IsKind(err, errors.KindClosed))

	_, err = holder.UnboxI32(g)
	require.True(t, errors.IsKind(err, errors.KindRevoked))

	require.NoError(t, holder.Release(g))
	require.Equal(t, 1, k.Stats().Objects)

	require.NoError(t, holder.Close())
	require.Equal(t, resource.Stats{}, k.Stats())
}
