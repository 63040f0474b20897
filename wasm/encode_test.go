package wasm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmosis/wasm"
)

var (
	i32   = []wasm.ValType{wasm.ValI32}
	i32x2 = []wasm.ValType{wasm.ValI32, wasm.ValI32}
)

func TestEncodeEmptyModule(t *testing.T) {
	data := (&wasm.Module{}).Encode()

	if len(data) != 8 {
		t.Errorf("expected 8 bytes for empty module, got %d", len(data))
	}
	if !bytes.Equal(data[:4], []byte{0x00, 0x61, 0x73, 0x6D}) {
		t.Error("invalid magic number")
	}
	if !bytes.Equal(data[4:8], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Error("invalid version")
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &wasm.Module{}
	a := m.AddType(wasm.FuncType{Params: i32, Results: i32})
	b := m.AddType(wasm.FuncType{Params: i32x2, Results: i32})
	c := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})

	if a != c {
		t.Errorf("equal types got indices %d and %d", a, c)
	}
	if a == b {
		t.Error("distinct types share an index")
	}
	if len(m.Types) != 2 {
		t.Errorf("expected 2 types, got %d", len(m.Types))
	}
}

func TestFunctionIndicesFollowImports(t *testing.T) {
	m := &wasm.Module{}
	imp := m.ImportFunc("env", "f", wasm.FuncType{})
	var c wasm.Code
	fn := m.AddFunc(wasm.FuncType{}, nil, c.End())

	if imp != 0 || fn != 1 {
		t.Errorf("got import %d func %d, want 0 and 1", imp, fn)
	}
}

func TestEncodedModuleRuns(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	// env.scale(x) is provided by the host; add3(a, b) = scale(a + b) + 3.
	_, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(api.DecodeI32(stack[0]) * 10)
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("scale").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	m := &wasm.Module{}
	scale := m.ImportFunc("env", "scale", wasm.FuncType{Params: i32, Results: i32})
	m.AddMemory(1)
	m.ExportMemory("memory", 0)
	m.AddData(16, []byte{0x2a, 0, 0, 0})

	var c wasm.Code
	c.LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).Call(scale).I32Const(3).Op(wasm.OpI32Add)
	add := m.AddFunc(wasm.FuncType{Params: i32x2, Results: i32}, nil, c.End())
	m.ExportFunc("add3", add)

	var l wasm.Code
	l.I32Const(16).I32Load(0).LocalSet(0).LocalGet(0).I32Const(-1).Op(wasm.OpI32Add)
	load := m.AddFunc(wasm.FuncType{Results: i32}, []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}}, l.End())
	m.ExportFunc("load", load)

	mod, err := rt.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("add3").Call(ctx, api.EncodeI32(2), api.EncodeI32(-7))
	if err != nil {
		t.Fatalf("call add3: %v", err)
	}
	if got := api.DecodeI32(res[0]); got != -47 {
		t.Errorf("add3(2, -7) = %d, want -47", got)
	}

	res, err = mod.ExportedFunction("load").Call(ctx)
	if err != nil {
		t.Fatalf("call load: %v", err)
	}
	if got := api.DecodeI32(res[0]); got != 41 {
		t.Errorf("load() = %d, want 41", got)
	}

	if mod.Memory() == nil || mod.Memory().Size() != 65536 {
		t.Error("expected one exported page of memory")
	}
}

func TestEncodedControlFlow(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	// pick(x) = x == 0 ? 100 : 200, using block/br_if.
	m := &wasm.Module{}
	var c wasm.Code
	c.Block().
		LocalGet(0).BrIf(0).
		I32Const(100).Op(wasm.OpReturn).
		EndBlock().
		I32Const(200)
	fn := m.AddFunc(wasm.FuncType{Params: i32, Results: i32}, nil, c.End())
	m.ExportFunc("pick", fn)

	mod, err := rt.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	for in, want := range map[int32]int32{0: 100, 5: 200} {
		res, err := mod.ExportedFunction("pick").Call(ctx, api.EncodeI32(in))
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if got := api.DecodeI32(res[0]); got != want {
			t.Errorf("pick(%d) = %d, want %d", in, got, want)
		}
	}
}
