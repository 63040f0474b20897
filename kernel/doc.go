// Package kernel implements capability tables and cross-module calls.
//
// Every attached Module has a private table of capability indices. An index
// names an object in the kernel's shared registry: a boxed scalar, a
// receive or send buffer over the module's memory, or a handle carrying a
// function table. Indices are meaningless outside their table; the only way
// to give another module access to an object is to pass it as a call
// argument or result, or for the host to Grant it.
//
// # Tables
//
//	m, _ := k.Attach("app", kernel.NewArena(64<<10))
//	b, _ := m.BoxI32(42)
//	c, _ := m.Retain(b)   // fresh index, same object
//	_ = m.Release(b)      // c still valid
//	_ = m.Revoke(c)       // owner only; every holder now sees revoked
//
// Index 0 (Null) never resolves. Slots are reused after release.
//
// # Calls
//
// A handle is created with a class, opaque user data and a function table:
//
//	h, _ := m.HandleCreate(cls, state, []kernel.Func{
//	    kernel.NewFunc(1, func(ctx context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
//	        v, err := inv.Module.UnboxI32(inv.Arg(0))
//	        ...
//	    }),
//	})
//
// Calling a handle owned by another module translates the handle and its
// arguments into borrowed slots of the owner's table. Borrowed slots are
// released when the callback returns; a callback that needs to keep an
// argument must Retain it. The callback's result is moved into the caller's
// table and belongs to the caller.
//
// # Concurrency
//
// All operations are synchronous and safe for concurrent use. A callback may
// call back into any module, including its caller. The kernel holds no lock
// while a callback runs; nesting is bounded by Options.MaxCallDepth.
//
// # Errors
//
// Failures are *errors.Error values classified by Kind. Each module keeps
// its most recent failure for LastError and TakeLastError.
package kernel
