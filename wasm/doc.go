// Package wasm encodes minimal core WebAssembly modules.
//
// It covers what guest modules talking to the wasmosis ABI need: function
// types, function imports, one linear memory, exports, function bodies and
// active data segments. It does not parse or validate; the engine does that
// when the module is compiled.
//
// # Building a Module
//
//	m := &wasm.Module{}
//	boxI32 := m.ImportFunc("wasmosis", "__wasmosis_box_i32",
//	    wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
//	m.AddMemory(1)
//	m.ExportMemory("memory", 0)
//
//	var c wasm.Code
//	c.LocalGet(0).Call(boxI32)
//	fn := m.AddFunc(wasm.FuncType{...}, nil, c.End())
//	m.ExportFunc("box", fn)
//
//	bin := m.Encode()
//
// Imports must be declared before functions are added, because defined
// function indices follow imported ones.
package wasm
