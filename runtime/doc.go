// Package runtime provides the high-level API for running capability-based
// WebAssembly modules.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Load two guests into one kernel
//	server, err := rt.Load(ctx, "server", serverWasm)
//	client, err := rt.Load(ctx, "client", clientWasm)
//
//	// The server publishes a handle; hand it to the client
//	h, err := server.CallCap(ctx, "make_handle")
//	port, err := rt.Grant(server.Module(), h, client.Module())
//
//	// The client calls through its own index
//	res, err := client.Call(ctx, "run", uint64(port))
//
// # Native Modules
//
// Go code takes part as a native module with its own arena. Native modules
// issue kernel operations directly and publish handles whose callbacks are
// Go functions:
//
//	host, err := rt.NewNative("host", 4096)
//	h, err := host.HandleCreate(nil, nil, []kernel.Func{
//	    kernel.NewFunc(1, func(ctx context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
//	        v, err := inv.Module.UnboxI32(inv.Arg(0))
//	        if err != nil {
//	            return kernel.Null, err
//	        }
//	        return inv.Module.BoxI32(v + 1)
//	    }),
//	})
//	port, err := rt.Grant(host, h, client.Module())
//
// # Configuration
//
// Options.Config bounds the kernel (call depth, table slots), the engine
// (guest memory pages) and selects logging and metrics. See package config
// for the environment variables that populate it.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. An Instance may be called
// from several goroutines only if the guest tolerates concurrent entry into
// its memory; kernel state stays consistent either way.
//
// # Resource Management
//
// Closing an instance revokes every object it owns and releases every
// capability it holds. Closing the runtime closes all instances and native
// modules.
package runtime
