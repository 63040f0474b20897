package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
)

const (
	// HostModule is the import module name of the kernel ABI.
	HostModule = "wasmosis"

	// DispatchExport is the guest export the kernel calls to run a function
	// table entry: (fn, handle, index, argc, a1, a2, a3, a4) -> cap.
	DispatchExport = "__wasmosis_dispatch"

	// maxFuncs bounds a single handle's function table.
	maxFuncs = 1 << 16
)

var (
	i32 = api.ValueTypeI32
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

// hostFunc is one kernel ABI import.
type hostFunc struct {
	fn      func(ctx context.Context, g *Guest, stack []uint64)
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func arg(stack []uint64, i int) uint32 { return api.DecodeU32(stack[i]) }
func capArg(stack []uint64, i int) kernel.Cap {
	return kernel.Cap(api.DecodeU32(stack[i]))
}

// abi lists every function of the host module.
var abi = []hostFunc{
	{name: "__wasmosis_cap_retain", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.Retain(capArg(stack, 0))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_cap_revoke", params: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			_ = g.module.Revoke(capArg(stack, 0))
		}},
	{name: "__wasmosis_cap_release", params: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			_ = g.module.Release(capArg(stack, 0))
		}},

	{name: "__wasmosis_recvbuf_create", params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.RecvBufCreate(arg(stack, 0), arg(stack, 1))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_recvbuf_write", params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			n, _ := g.module.RecvBufWrite(capArg(stack, 0), arg(stack, 1), arg(stack, 2))
			stack[0] = api.EncodeU32(n)
		}},
	{name: "__wasmosis_sendbuf_create", params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.SendBufCreate(arg(stack, 0), arg(stack, 1))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_sendbuf_read", params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			n, _ := g.module.SendBufRead(capArg(stack, 0), arg(stack, 1), arg(stack, 2))
			stack[0] = api.EncodeU32(n)
		}},

	{name: "__wasmosis_box_i32", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.BoxI32(api.DecodeI32(stack[0]))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_box_u32", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.BoxU32(api.DecodeU32(stack[0]))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_box_f32", params: []api.ValueType{f32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.BoxF32(api.DecodeF32(stack[0]))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_box_f64", params: []api.ValueType{f64}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.BoxF64(api.DecodeF64(stack[0]))
			stack[0] = api.EncodeU32(uint32(c))
		}},
	{name: "__wasmosis_box_bool", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			c, _ := g.module.BoxBool(api.DecodeU32(stack[0]) != 0)
			stack[0] = api.EncodeU32(uint32(c))
		}},

	{name: "__wasmosis_unbox_i32", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, _ := g.module.UnboxI32(capArg(stack, 0))
			stack[0] = api.EncodeI32(v)
		}},
	{name: "__wasmosis_unbox_u32", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, _ := g.module.UnboxU32(capArg(stack, 0))
			stack[0] = api.EncodeU32(v)
		}},
	{name: "__wasmosis_unbox_f32", params: []api.ValueType{i32}, results: []api.ValueType{f32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, _ := g.module.UnboxF32(capArg(stack, 0))
			stack[0] = api.EncodeF32(v)
		}},
	{name: "__wasmosis_unbox_f64", params: []api.ValueType{i32}, results: []api.ValueType{f64},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, _ := g.module.UnboxF64(capArg(stack, 0))
			stack[0] = api.EncodeF64(v)
		}},
	{name: "__wasmosis_unbox_bool", params: []api.ValueType{i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, _ := g.module.UnboxBool(capArg(stack, 0))
			stack[0] = 0
			if v {
				stack[0] = 1
			}
		}},

	{name: "__wasmosis_handle_create", params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			stack[0] = api.EncodeU32(uint32(g.handleCreate(arg(stack, 0), arg(stack, 1), arg(stack, 2), arg(stack, 3))))
		}},
	{name: "__wasmosis_handle_user_data", params: []api.ValueType{i32, i32}, results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			v, err := g.module.HandleUserData(capArg(stack, 0), g.lookupClass(arg(stack, 1)))
			ud, _ := v.(uint32)
			if err != nil {
				ud = 0
			}
			stack[0] = api.EncodeU32(ud)
		}},
	callFunc(0),
	callFunc(1),
	callFunc(2),
	callFunc(3),
	callFunc(4),

	{name: "__wasmosis_last_error", results: []api.ValueType{i32},
		fn: func(_ context.Context, g *Guest, stack []uint64) {
			stack[0] = api.EncodeU32(errors.CodeOf(g.module.TakeLastError()))
		}},
}

// callFunc builds __wasmosis_handle_call<argc>(port, index, args...) -> cap.
func callFunc(argc int) hostFunc {
	params := make([]api.ValueType, 2+argc)
	for i := range params {
		params[i] = i32
	}
	return hostFunc{
		name:    "__wasmosis_handle_call" + string(rune('0'+argc)),
		params:  params,
		results: []api.ValueType{i32},
		fn: func(ctx context.Context, g *Guest, stack []uint64) {
			var args [kernel.MaxArgs]kernel.Cap
			for i := 0; i < argc; i++ {
				args[i] = capArg(stack, 2+i)
			}
			ret, _ := g.module.Call(ctx, capArg(stack, 0), arg(stack, 1), args[:argc]...)
			stack[0] = api.EncodeU32(uint32(ret))
		},
	}
}

// handleCreate reads the guest's function table and creates the handle.
func (g *Guest) handleCreate(classRef, userData, funcs, n uint32) kernel.Cap {
	entries, err := g.readFuncs(funcs, n)
	if err != nil {
		g.module.RecordError(err)
		return kernel.Null
	}
	table := make([]kernel.Func, len(entries))
	for i, fn := range entries {
		table[i] = kernel.NewFunc(kernel.AnyArity, g.dispatcher(fn))
	}
	c, _ := g.module.HandleCreate(g.class(classRef), userData, table)
	return c
}

func (e *Engine) instantiateHost(ctx context.Context) error {
	builder := e.runtime.NewHostModuleBuilder(HostModule)
	for _, hf := range abi {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				g := e.guestOf(mod)
				if g == nil {
					for i := range stack {
						stack[i] = 0
					}
					return
				}
				hf.fn(ctx, g, stack)
			}), hf.params, hf.results).
			Export(hf.name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}
