package testbed

import (
	"encoding/binary"

	"github.com/wippyai/wasmosis/wasm"
)

const (
	// Host is the ABI import module.
	Host = "wasmosis"

	// Dispatch is the callback export every handle-creating guest provides.
	Dispatch = "__wasmosis_dispatch"

	ClassRef  = 16
	UserData  = 32
	FuncTable = 64

	// DoublerFn is the function table entry value used by Doubler.
	DoublerFn = 7

	// Message is preloaded by Buffers at MessageAt.
	Message   = "hello, wasmosis"
	MessageAt = 1024
)

var (
	i32 = wasm.ValI32
	f32 = wasm.ValF32
	f64 = wasm.ValF64
)

func sig(params []wasm.ValType, results ...wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

func ints(n int) []wasm.ValType {
	out := make([]wasm.ValType, n)
	for i := range out {
		out[i] = i32
	}
	return out
}

// signatures of the ABI imports, by short name.
var signatures = map[string]wasm.FuncType{
	"cap_retain":       sig(ints(1), i32),
	"cap_revoke":       sig(ints(1)),
	"cap_release":      sig(ints(1)),
	"recvbuf_create":   sig(ints(2), i32),
	"recvbuf_write":    sig(ints(3), i32),
	"sendbuf_create":   sig(ints(2), i32),
	"sendbuf_read":     sig(ints(3), i32),
	"box_i32":          sig(ints(1), i32),
	"box_u32":          sig(ints(1), i32),
	"box_f32":          sig([]wasm.ValType{f32}, i32),
	"box_f64":          sig([]wasm.ValType{f64}, i32),
	"box_bool":         sig(ints(1), i32),
	"unbox_i32":        sig(ints(1), i32),
	"unbox_u32":        sig(ints(1), i32),
	"unbox_f32":        sig(ints(1), f32),
	"unbox_f64":        sig(ints(1), f64),
	"unbox_bool":       sig(ints(1), i32),
	"handle_create":    sig(ints(4), i32),
	"handle_user_data": sig(ints(2), i32),
	"handle_call0":     sig(ints(2), i32),
	"handle_call1":     sig(ints(3), i32),
	"handle_call2":     sig(ints(4), i32),
	"handle_call3":     sig(ints(5), i32),
	"handle_call4":     sig(ints(6), i32),
	"last_error":       sig(nil, i32),
}

// guest starts a module importing the named ABI functions and exporting one
// page of memory. It returns the import indices by short name.
func guest(imports ...string) (*wasm.Module, map[string]uint32) {
	m := &wasm.Module{}
	idx := make(map[string]uint32, len(imports))
	for _, name := range imports {
		ft, ok := signatures[name]
		if !ok {
			panic("testbed: unknown import " + name)
		}
		idx[name] = m.ImportFunc(Host, "__wasmosis_"+name, ft)
	}
	m.AddMemory(1)
	m.ExportMemory("memory", 0)
	return m, idx
}

// addMakeHandle exports make_handle() -> cap over a one-entry table holding fn.
func addMakeHandle(m *wasm.Module, f map[string]uint32, fn uint32) {
	m.AddData(FuncTable, binary.LittleEndian.AppendUint32(nil, fn))

	var c wasm.Code
	c.I32Const(ClassRef).I32Const(UserData).I32Const(FuncTable).I32Const(1).Call(f["handle_create"])
	m.ExportFunc("make_handle", m.AddFunc(sig(nil, i32), nil, c.End()))
}

var dispatchType = sig(ints(8), i32)

// Doubler exports make_handle and a dispatcher that returns a box holding
// twice the i32 in its first argument. user_data(h) returns the handle's
// user data when h is its own handle, else 0.
func Doubler() []byte {
	m, f := guest("handle_create", "handle_user_data", "box_i32", "unbox_i32")
	addMakeHandle(m, f, DoublerFn)

	var u wasm.Code
	u.LocalGet(0).I32Const(ClassRef).Call(f["handle_user_data"])
	m.ExportFunc("user_data", m.AddFunc(sig(ints(1), i32), nil, u.End()))

	// Unknown table entries trap.
	var d wasm.Code
	d.LocalGet(0).I32Const(DoublerFn).Op(wasm.OpI32Ne).If().Op(wasm.OpUnreachable).EndBlock().
		LocalGet(4).Call(f["unbox_i32"]).I32Const(2).Op(wasm.OpI32Mul).Call(f["box_i32"])
	m.ExportFunc(Dispatch, m.AddFunc(dispatchType, nil, d.End()))

	return m.Encode()
}

// Relay exports make_handle and a dispatcher that calls its first argument
// with its second and returns the result.
func Relay() []byte {
	m, f := guest("handle_create", "handle_call1")
	addMakeHandle(m, f, 1)

	var d wasm.Code
	d.LocalGet(4).I32Const(0).LocalGet(5).Call(f["handle_call1"])
	m.ExportFunc(Dispatch, m.AddFunc(dispatchType, nil, d.End()))

	return m.Encode()
}

// Caller exports:
//
//	run(port, x) -> i32          unbox(call1(port, 0, box(x)))
//	run2(port, target, x) -> i32 unbox(call2(port, 0, target, box(x)))
//	fail(port) -> code           last error after call1(port, 9, null)
func Caller() []byte {
	m, f := guest("box_i32", "unbox_i32", "handle_call1", "handle_call2", "cap_release", "last_error")
	locals := []wasm.LocalEntry{{Count: 2, ValType: i32}}

	var r wasm.Code
	r.LocalGet(1).Call(f["box_i32"]).LocalSet(2).
		LocalGet(0).I32Const(0).LocalGet(2).Call(f["handle_call1"]).LocalSet(3).
		LocalGet(2).Call(f["cap_release"]).
		LocalGet(3).Call(f["unbox_i32"]).
		LocalGet(3).Call(f["cap_release"])
	m.ExportFunc("run", m.AddFunc(sig(ints(2), i32), locals, r.End()))

	var r2 wasm.Code
	r2.LocalGet(2).Call(f["box_i32"]).LocalSet(3).
		LocalGet(0).I32Const(0).LocalGet(1).LocalGet(3).Call(f["handle_call2"]).LocalSet(4).
		LocalGet(3).Call(f["cap_release"]).
		LocalGet(4).Call(f["unbox_i32"]).
		LocalGet(4).Call(f["cap_release"])
	m.ExportFunc("run2", m.AddFunc(sig(ints(3), i32), locals, r2.End()))

	var fl wasm.Code
	fl.LocalGet(0).I32Const(9).I32Const(0).Call(f["handle_call1"]).Op(wasm.OpDrop).
		Call(f["last_error"])
	m.ExportFunc("fail", m.AddFunc(sig(ints(1), i32), nil, fl.End()))

	return m.Encode()
}

// Buffers preloads Message at MessageAt and exports thin wrappers over the
// buffer calls:
//
//	send(off, len) -> cap      recv(off, len) -> cap
//	read(buf, dest, len) -> n  write(buf, src, len) -> n
func Buffers() []byte {
	m, f := guest("sendbuf_create", "sendbuf_read", "recvbuf_create", "recvbuf_write")
	m.AddData(MessageAt, []byte(Message))

	wrap := func(export, imp string, n int) {
		var c wasm.Code
		for i := 0; i < n; i++ {
			c.LocalGet(uint32(i))
		}
		c.Call(f[imp])
		m.ExportFunc(export, m.AddFunc(sig(ints(n), i32), nil, c.End()))
	}
	wrap("send", "sendbuf_create", 2)
	wrap("recv", "recvbuf_create", 2)
	wrap("read", "sendbuf_read", 3)
	wrap("write", "recvbuf_write", 3)

	return m.Encode()
}

// Boxes exports scalar round trips and table lifecycle checks:
//
//	f32(x) -> x, f64(x) -> x, bool(x) -> 0|1   box, unbox, release
//	retained() -> 41   read through a retained index after the original is released
//	revoked() -> code  last error after unboxing a revoked box
func Boxes() []byte {
	m, f := guest("box_f32", "unbox_f32", "box_f64", "unbox_f64", "box_bool", "unbox_bool",
		"box_i32", "unbox_i32", "cap_retain", "cap_release", "cap_revoke", "last_error")
	one := []wasm.LocalEntry{{Count: 1, ValType: i32}}

	roundTrip := func(export, box, unbox string, t wasm.ValType) {
		var c wasm.Code
		c.LocalGet(0).Call(f[box]).LocalTee(1).Call(f[unbox]).
			LocalGet(1).Call(f["cap_release"])
		m.ExportFunc(export, m.AddFunc(sig([]wasm.ValType{t}, t), one, c.End()))
	}
	roundTrip("f32", "box_f32", "unbox_f32", f32)
	roundTrip("f64", "box_f64", "unbox_f64", f64)
	roundTrip("bool", "box_bool", "unbox_bool", i32)

	var r wasm.Code
	r.I32Const(41).Call(f["box_i32"]).LocalTee(0).Call(f["cap_retain"]).LocalSet(1).
		LocalGet(0).Call(f["cap_release"]).
		LocalGet(1).Call(f["unbox_i32"]).
		LocalGet(1).Call(f["cap_release"])
	m.ExportFunc("retained", m.AddFunc(sig(nil, i32), []wasm.LocalEntry{{Count: 2, ValType: i32}}, r.End()))

	var v wasm.Code
	v.I32Const(5).Call(f["box_i32"]).LocalTee(0).Call(f["cap_revoke"]).
		LocalGet(0).Call(f["unbox_i32"]).Op(wasm.OpDrop).
		LocalGet(0).Call(f["cap_release"]).
		Call(f["last_error"])
	m.ExportFunc("revoked", m.AddFunc(sig(nil, i32), one, v.End()))

	return m.Encode()
}
