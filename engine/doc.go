// Package engine runs WebAssembly guests on wazero and binds them to the
// capability kernel.
//
// # Architecture
//
//	Engine - a wazero runtime plus the "wasmosis" host module
//	Guest  - an instantiated module with its kernel.Module
//
// Instantiating a guest attaches a kernel module of the same name whose
// memory is the guest's exported memory. Every "__wasmosis_*" import then
// operates on that module's capability table.
//
// # ABI
//
// All capability indices and sizes are i32. Failing calls return 0 (or
// 0.0 for float unboxing) and record an error code readable once through
// __wasmosis_last_error; see errors.Kind.Code for the values.
//
//	__wasmosis_cap_retain(cap) -> cap
//	__wasmosis_cap_revoke(cap)
//	__wasmosis_cap_release(cap)
//	__wasmosis_recvbuf_create(dest, len) -> cap
//	__wasmosis_recvbuf_write(buf, src, len) -> n
//	__wasmosis_sendbuf_create(src, len) -> cap
//	__wasmosis_sendbuf_read(buf, dest, len) -> n
//	__wasmosis_box_{i32,u32,f32,f64,bool}(v) -> cap
//	__wasmosis_unbox_{i32,u32,f32,f64,bool}(cap) -> v
//	__wasmosis_handle_create(class_ref, user_data, funcs, funcs_len) -> cap
//	__wasmosis_handle_user_data(handle, class_ref) -> user_data
//	__wasmosis_handle_call{0..4}(port, index, args...) -> cap
//	__wasmosis_last_error() -> code
//
// # Callbacks
//
// handle_create reads funcs_len u32 entries at funcs. Calling entry i of
// such a handle invokes the guest export
//
//	__wasmosis_dispatch(fn, handle, index, argc, a1, a2, a3, a4) -> cap
//
// with fn set to the i-th entry. Unused argument slots are 0. A trap in the
// dispatcher fails the call with errors.KindCalleeFailed.
//
// class_ref values are interned per guest; the same pointer value in two
// guests names two different classes.
//
// # Thread Safety
//
// Engine is safe for concurrent use. A Guest may be called from several
// goroutines only if its code tolerates it; wazero does not serialize calls.
package engine
