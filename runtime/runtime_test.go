package runtime_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmosis/config"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/resource"
	"github.com/wippyai/wasmosis/runtime"
	"github.com/wippyai/wasmosis/testbed"
)

func newRuntime(t *testing.T, cfg *config.Config) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.New(context.Background(), &runtime.Options{
		Config:     cfg,
		Logger:     zap.NewNop(),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func load(t *testing.T, rt *runtime.Runtime, name string, bin []byte) *runtime.Instance {
	t.Helper()
	inst, err := rt.Load(context.Background(), name, bin)
	require.NoError(t, err)
	return inst
}

func TestRuntime_GuestToGuest(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	doubler := load(t, rt, "doubler", testbed.Doubler())
	caller := load(t, rt, "caller", testbed.Caller())

	h, err := doubler.CallCap(ctx, "make_handle")
	require.NoError(t, err)
	port, err := rt.Grant(doubler.Module(), h, caller.Module())
	require.NoError(t, err)

	res, err := caller.Call(ctx, "run", api.EncodeU32(uint32(port)), api.EncodeI32(21))
	require.NoError(t, err)
	require.Equal(t, int32(42), api.DecodeI32(res[0]))
}

func TestRuntime_NativeCallsGuest(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	doubler := load(t, rt, "doubler", testbed.Doubler())
	host, err := rt.NewNative("host", 1024)
	require.NoError(t, err)

	h, err := doubler.CallCap(ctx, "make_handle")
	require.NoError(t, err)
	port, err := rt.Grant(doubler.Module(), h, host)
	require.NoError(t, err)

	arg, err := host.BoxI32(-9)
	require.NoError(t, err)
	ret, err := host.Call1(ctx, port, 0, arg)
	require.NoError(t, err)
	v, err := host.UnboxI32(ret)
	require.NoError(t, err)
	require.Equal(t, int32(-18), v)

	require.NoError(t, host.Release(ret))
	require.NoError(t, host.Release(arg))
	require.Equal(t, 1, host.Caps())
	require.Equal(t, 1, doubler.Module().Caps())
}

func TestRuntime_GuestCallsNative(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	caller := load(t, rt, "caller", testbed.Caller())
	host, err := rt.NewNative("host", 1024)
	require.NoError(t, err)

	var remote bool
	plus := kernel.NewFunc(1, func(_ context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
		remote = inv.Remote()
		v, err := inv.Module.UnboxI32(inv.Arg(0))
		if err != nil {
			return kernel.Null, err
		}
		return inv.Module.BoxI32(v + 100)
	})
	h, err := host.HandleCreate(nil, nil, []kernel.Func{plus})
	require.NoError(t, err)
	port, err := rt.Grant(host, h, caller.Module())
	require.NoError(t, err)

	res, err := caller.Call(ctx, "run", api.EncodeU32(uint32(port)), api.EncodeI32(5))
	require.NoError(t, err)
	require.Equal(t, int32(105), api.DecodeI32(res[0]))
	require.True(t, remote)
	require.Equal(t, 1, host.Caps(), "borrowed argument released")
}

func TestRuntime_NativeReadsGuestBuffer(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	bufs := load(t, rt, "buffers", testbed.Buffers())
	host, err := rt.NewNative("host", 64)
	require.NoError(t, err)

	res, err := bufs.Call(ctx, "send", testbed.MessageAt, uint64(len(testbed.Message)))
	require.NoError(t, err)
	g, err := rt.Grant(bufs.Module(), kernel.Cap(res[0]), host)
	require.NoError(t, err)

	n, err := host.SendBufRead(g, 8, 64)
	require.NoError(t, err)
	require.Equal(t, uint32(len(testbed.Message)), n)

	data, err := host.Memory().Read(8, n)
	require.NoError(t, err)
	require.Equal(t, testbed.Message, string(data))
}

func TestRuntime_Metrics(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	rt := newRuntime(t, cfg)
	require.NotNil(t, rt.Metrics())

	doubler := load(t, rt, "doubler", testbed.Doubler())
	caller := load(t, rt, "caller", testbed.Caller())
	h, err := doubler.CallCap(ctx, "make_handle")
	require.NoError(t, err)
	port, err := rt.Grant(doubler.Module(), h, caller.Module())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := caller.Call(ctx, "run", api.EncodeU32(uint32(port)), api.EncodeI32(int32(i)))
		require.NoError(t, err)
	}

	c := rt.Metrics()
	require.Equal(t, 3.0, testutil.ToFloat64(c.Calls.WithLabelValues("handle_call1", "remote", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.ObjectsCreated.WithLabelValues("handle")))
	require.Equal(t, float64(rt.Kernel().Stats().Objects), testutil.ToFloat64(c.LiveObjects))
}

func TestRuntime_MetricsDisabled(t *testing.T) {
	require.Nil(t, newRuntime(t, nil).Metrics())
}

func TestRuntime_Limits(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Kernel.MaxTableSlots = 2
	rt := newRuntime(t, cfg)
	host, err := rt.NewNative("host", 0)
	require.NoError(t, err)

	_, err = host.BoxI32(1)
	require.NoError(t, err)
	_, err = host.BoxI32(2)
	require.NoError(t, err)
	_, err = host.BoxI32(3)
	require.True(t, errors.IsKind(err, errors.KindExhausted))

	_, err = host.RecvBufCreate(0, 1)
	require.Error(t, err, "zero-sized arena")

	bad := config.Default()
	bad.Kernel.MaxCallDepth = 0
	_, err = runtime.New(ctx, &runtime.Options{Config: bad, Logger: zap.NewNop()})
	require.Error(t, err)
}

func TestRuntime_ModuleMetadata(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	mod, err := rt.Compile(ctx, testbed.Doubler())
	require.NoError(t, err)
	defer mod.Close(ctx)

	names := make([]string, 0)
	for _, e := range mod.Exports() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{testbed.Dispatch, "make_handle", "user_data"}, names)
	require.ElementsMatch(t, []string{
		"__wasmosis_handle_create", "__wasmosis_handle_user_data",
		"__wasmosis_box_i32", "__wasmosis_unbox_i32",
	}, mod.Imports())

	a, err := mod.Instantiate(ctx, "one")
	require.NoError(t, err)
	b, err := mod.Instantiate(ctx, "two")
	require.NoError(t, err)
	require.NotEqual(t, a.Module().ID(), b.Module().ID())
	require.NotNil(t, a.Memory())
}

func TestRuntime_SnapshotAndClose(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.New(ctx, &runtime.Options{Logger: zap.NewNop()})
	require.NoError(t, err)

	doubler := load(t, rt, "doubler", testbed.Doubler())
	host, err := rt.NewNative("host", 16)
	require.NoError(t, err)
	h, err := doubler.CallCap(ctx, "make_handle")
	require.NoError(t, err)
	_, err = rt.Grant(doubler.Module(), h, host)
	require.NoError(t, err)

	snap := rt.Snapshot()
	require.Len(t, snap.Modules, 2)
	require.Equal(t, "doubler", snap.Modules[0].Name)
	require.Equal(t, "host", snap.Modules[1].Name)
	require.Equal(t, 1, snap.Objects)
	require.Equal(t, uint64(2), snap.Refs)

	data, err := snap.Encode()
	require.NoError(t, err)
	decoded, err := kernel.DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, snap.Modules, decoded.Modules)

	require.NoError(t, doubler.Close(ctx))
	info, err := host.Inspect(1)
	require.NoError(t, err)
	require.True(t, info.Revoked, "owner gone")

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))
	require.Equal(t, resource.Stats{}, rt.Kernel().Stats())

	_, err = rt.Load(ctx, "late", testbed.Doubler())
	require.True(t, errors.IsKind(err, errors.KindClosed))
	_, err = rt.NewNative("late", 16)
	require.True(t, errors.IsKind(err, errors.KindClosed))
}
