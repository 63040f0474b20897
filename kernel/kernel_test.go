package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

func TestKernel_AttachAssignsIDs(t *testing.T) {
	k := newKernel(t)
	a := attach(t, k, "a")
	b := attach(t, k, "b")

	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, "a", a.Name())
	require.Same(t, k, a.Kernel())

	mods := k.Modules()
	require.Len(t, mods, 2)
	require.Same(t, a, mods[0])
	require.Same(t, b, mods[1])
}

func TestKernel_SameObjectDifferentIndices(t *testing.T) {
	k := newKernel(t)
	a := attach(t, k, "a")
	b := attach(t, k, "b")

	// Give b some unrelated slots so indices diverge.
	for i := 0; i < 3; i++ {
		_, err := b.BoxI32(int32(i))
		require.NoError(t, err)
	}

	c, err := a.BoxI32(42)
	require.NoError(t, err)
	g, err := k.Grant(a, c, b)
	require.NoError(t, err)
	require.NotEqual(t, c, g)

	ia, _ := a.Inspect(c)
	ib, _ := b.Inspect(g)
	require.Equal(t, ia.Object, ib.Object)
	require.Equal(t, a.ID(), ib.Owner)
}

func TestKernel_Grant(t *testing.T) {
	k := newKernel(t)
	a := attach(t, k, "a")
	b := attach(t, k, "b")

	_, err := k.Grant(a, 7, b)
	require.True(t, errors.IsKind(err, errors.KindInvalidReference))
	require.Equal(t, 0, b.Caps())

	other := New(DefaultOptions())
	defer other.Close()
	x, err := other.Attach("x", nil)
	require.NoError(t, err)

	c, _ := a.BoxI32(1)
	_, err = k.Grant(a, c, x)
	require.True(t, errors.IsKind(err, errors.KindInvalidInput))

	r, _ := a.BoxI32(2)
	require.NoError(t, a.Revoke(r))
	_, err = k.Grant(a, r, b)
	require.True(t, errors.IsKind(err, errors.KindRevoked))
	require.Equal(t, 0, b.Caps())
	require.NoError(t, a.Release(r))

	require.NoError(t, b.Close())
	_, err = k.Grant(a, c, b)
	require.True(t, errors.IsKind(err, errors.KindClosed))
	require.Equal(t, resource.Stats{Objects: 1, Refs: 1}, k.Stats())
}

func TestKernel_Close(t *testing.T) {
	k := New(DefaultOptions())
	a, err := k.Attach("a", nil)
	require.NoError(t, err)

	d := &dropCount{}
	_, err = a.HandleCreate(NewClass("c"), d, nil)
	require.NoError(t, err)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())
	require.Equal(t, 1, d.n)

	_, err = k.Attach("b", nil)
	require.True(t, errors.IsKind(err, errors.KindClosed))
}

func TestKernel_Snapshot(t *testing.T) {
	k := newKernel(t)
	a := attach(t, k, "a")
	b := attach(t, k, "b")

	c, _ := a.BoxI32(1)
	_, _ = k.Grant(a, c, b)
	require.NoError(t, a.Revoke(c))

	snap := k.Snapshot()
	require.Equal(t, k.ID().String(), snap.Kernel)
	require.Equal(t, 1, snap.Objects)
	require.Equal(t, uint64(2), snap.Refs)
	require.Len(t, snap.Modules, 2)
	require.Len(t, snap.Modules[1].Slots, 1)

	slot := snap.Modules[1].Slots[0]
	require.Equal(t, "box", slot.Kind)
	require.Equal(t, a.ID(), slot.Owner)
	require.True(t, slot.Revoked)
	require.Equal(t, uint32(2), slot.Refs)

	data, err := snap.Encode()
	require.NoError(t, err)
	back, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, snap.Modules, back.Modules)
	require.Equal(t, snap.Refs, back.Refs)
}

type dropCount struct {
	n int
}

func (d *dropCount) Drop() { d.n++ }
