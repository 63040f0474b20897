package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmosis/engine"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
)

// Instance is a running guest attached to the kernel.
type Instance struct {
	guest *engine.Guest
}

func (i *Instance) Name() string {
	return i.guest.Name()
}

// Module returns the guest's kernel module, used to grant it capabilities
// or to inspect its table.
func (i *Instance) Module() *kernel.Module {
	return i.guest.Module()
}

// Call invokes an exported function with raw wasm values.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	return i.guest.Call(ctx, name, params...)
}

// CallCap invokes an export that takes capability indices and returns one.
// The result is an index in the guest's own table.
func (i *Instance) CallCap(ctx context.Context, name string, args ...kernel.Cap) (kernel.Cap, error) {
	params := make([]uint64, len(args))
	for j, a := range args {
		params[j] = api.EncodeU32(uint32(a))
	}
	res, err := i.guest.Call(ctx, name, params...)
	if err != nil {
		return kernel.Null, err
	}
	if len(res) != 1 {
		return kernel.Null, errors.New(errors.PhaseHost, errors.KindArityMismatch).
			Op(name).Detail("export returned %d values, want 1", len(res)).Build()
	}
	return kernel.Cap(api.DecodeU32(res[0])), nil
}

// Export describes an exported function of the running guest.
func (i *Instance) Export(name string) (Export, bool) {
	mod := i.guest.API()
	if mod == nil {
		return Export{}, false
	}
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return Export{}, false
	}
	def := fn.Definition()
	return Export{Name: name, Params: def.ParamTypes(), Results: def.ResultTypes()}, true
}

// Exports lists the running guest's exported functions sorted by name.
func (i *Instance) Exports() []Export {
	mod := i.guest.API()
	if mod == nil {
		return nil
	}
	return exportsOf(mod.ExportedFunctionDefinitions())
}

// Memory returns the guest's exported memory, or nil if it has none.
func (i *Instance) Memory() api.Memory {
	mod := i.guest.API()
	if mod == nil {
		return nil
	}
	return mod.Memory()
}

func (i *Instance) Close(ctx context.Context) error {
	return i.guest.Close(ctx)
}
