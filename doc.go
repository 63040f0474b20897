// Package wasmosis is a capability kernel for isolated WebAssembly modules.
//
// Modules never share memory or ambient authority. They hold unforgeable,
// module-local capability indices to kernel objects (boxed scalars, buffer
// views over another module's memory, and handles with function tables) and
// make synchronous calls through handles. The kernel translates every
// capability that crosses a module boundary.
//
// # Architecture Overview
//
//	wasmosis/            Root package with the Memory arena interface
//	├── kernel/          Capability tables, objects, and the call dispatcher
//	├── resource/        Shared reference-counted object registry
//	├── engine/          wazero host module exporting the __wasmosis_* ABI
//	├── runtime/         High-level API: kernel + engine + config
//	├── config/          Environment and YAML configuration
//	├── logging/         zap logger construction
//	├── metrics/         Prometheus collector for kernel activity
//	├── wasm/            Minimal core module encoder
//	├── testbed/         Guest modules used by tests and examples
//	├── errors/          Structured error types with stable ABI codes
//	└── cmd/wasmosis/    CLI runner and interactive inspector
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	server, err := rt.Load(ctx, "server", serverWasm)
//	client, err := rt.Load(ctx, "client", clientWasm)
//
//	h, err := server.CallCap(ctx, "make_handle")
//	port, err := rt.Grant(server.Module(), h, client.Module())
//	res, err := client.Call(ctx, "run", uint64(port))
//
// # Capabilities
//
// Index 0 is the null capability. Every other index names one slot in the
// issuing module's table; the same object usually sits at different
// indices in different modules. Retain returns a fresh index to the same
// object, Release frees a slot, and Revoke (owner only) invalidates the
// object for every holder.
//
// # Calls
//
// A call through a handle owned by another module places the handle and
// each argument in borrowed slots of the callee's table, runs the callee's
// function table entry, moves the returned capability into the caller's
// table and releases the borrowed slots. A callee that wants to keep an
// argument retains it.
//
// # Thread Safety
//
// The kernel is safe for concurrent use. Calls are synchronous and may
// re-enter a module that is already on the call chain, up to the
// configured call depth.
package wasmosis
