package engine

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
)

// Guest is an instantiated WebAssembly module attached to the kernel.
type Guest struct {
	engine  *Engine
	module  *kernel.Module
	mem     *guestMemory
	api     api.Module
	classes map[uint32]*kernel.Class
	name    string
	apiMu   sync.RWMutex
	classMu sync.Mutex
}

// Name returns the guest's module name.
func (g *Guest) Name() string { return g.name }

// Module returns the guest's kernel module.
func (g *Guest) Module() *kernel.Module { return g.module }

// API returns the wazero module instance, or nil before instantiation.
func (g *Guest) API() api.Module {
	g.apiMu.RLock()
	defer g.apiMu.RUnlock()
	return g.api
}

// Call invokes an exported function with raw wasm values.
func (g *Guest) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	mod := g.API()
	if mod == nil {
		return nil, errors.NotInitialized(errors.PhaseHost, "guest "+g.name)
	}
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", name)
	}
	return fn.Call(ctx, params...)
}

// Close detaches the guest from the kernel and closes its instance.
func (g *Guest) Close(ctx context.Context) error {
	g.engine.forget(g)
	err := g.module.Close()
	if mod := g.API(); mod != nil {
		err = multierr.Append(err, mod.Close(ctx))
	}
	return err
}

func (g *Guest) bind(mod api.Module) {
	g.apiMu.Lock()
	if g.api == nil {
		g.api = mod
	}
	g.apiMu.Unlock()
	g.mem.bind(mod.Memory())
}

// class interns a guest class pointer. 0 is the nil class.
func (g *Guest) class(ref uint32) *kernel.Class {
	if ref == 0 {
		return nil
	}
	g.classMu.Lock()
	defer g.classMu.Unlock()
	c, ok := g.classes[ref]
	if !ok {
		c = kernel.NewClass(g.name + "#" + strconv.FormatUint(uint64(ref), 10))
		g.classes[ref] = c
	}
	return c
}

// lookupClass returns the interned class for ref without creating one. An
// unknown ref yields a class no handle was created with.
func (g *Guest) lookupClass(ref uint32) *kernel.Class {
	if ref == 0 {
		return nil
	}
	g.classMu.Lock()
	defer g.classMu.Unlock()
	if c, ok := g.classes[ref]; ok {
		return c
	}
	return unknownClass
}

var unknownClass = kernel.NewClass("unknown")

// readFuncs reads n little-endian u32 function table entries at ptr.
func (g *Guest) readFuncs(ptr, n uint32) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if n > maxFuncs {
		return nil, errors.New(errors.PhaseHandle, errors.KindInvalidInput).
			Op("handle_create").Detail("function table of %d entries exceeds %d", n, maxFuncs).Build()
	}
	raw, err := g.mem.Read(ptr, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

// dispatcher returns the kernel callback for guest function table entry fn.
// Each invocation fetches a fresh api.Function so nested calls into the
// same guest do not share call state.
func (g *Guest) dispatcher(fn uint32) kernel.Callback {
	return func(ctx context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
		mod := g.API()
		if mod == nil {
			return kernel.Null, errors.NotInitialized(errors.PhaseCall, "guest "+g.name)
		}
		f := mod.ExportedFunction(DispatchExport)
		if f == nil {
			return kernel.Null, errors.NotFound(errors.PhaseCall, "export", DispatchExport)
		}

		var stack [8]uint64
		stack[0] = api.EncodeU32(fn)
		stack[1] = api.EncodeU32(uint32(inv.Handle))
		stack[2] = api.EncodeU32(inv.Index)
		stack[3] = api.EncodeU32(uint32(len(inv.Args)))
		for i, a := range inv.Args {
			stack[4+i] = api.EncodeU32(uint32(a))
		}
		if err := f.CallWithStack(ctx, stack[:]); err != nil {
			return kernel.Null, err
		}
		return kernel.Cap(api.DecodeU32(stack[0])), nil
	}
}

// guestMemory exposes a guest's exported memory to the kernel. It is bound
// lazily, the first time the guest is seen by a host call or after
// instantiation.
type guestMemory struct {
	mem api.Memory
	mu  sync.RWMutex
}

func (m *guestMemory) bind(mem api.Memory) {
	if mem == nil {
		return
	}
	m.mu.Lock()
	if m.mem == nil {
		m.mem = mem
	}
	m.mu.Unlock()
}

func (m *guestMemory) get() api.Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mem
}

func (m *guestMemory) Read(offset, length uint32) ([]byte, error) {
	mem := m.get()
	if mem == nil {
		return nil, errors.NotInitialized(errors.PhaseBuffer, "guest memory")
	}
	view, ok := mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseBuffer, "memory read", offset, length, mem.Size())
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	mem := m.get()
	if mem == nil {
		return errors.NotInitialized(errors.PhaseBuffer, "guest memory")
	}
	if !mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseBuffer, "memory write", offset, uint32(len(data)), mem.Size())
	}
	return nil
}

func (m *guestMemory) Size() uint32 {
	mem := m.get()
	if mem == nil {
		return 0
	}
	return mem.Size()
}
