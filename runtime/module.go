package runtime

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmosis/engine"
)

// Module is a compiled guest that can be instantiated under several names.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
}

func (m *Module) Instantiate(ctx context.Context, name string) (*Instance, error) {
	g, err := m.runtime.engine.Instantiate(ctx, name, m.compiled)
	if err != nil {
		return nil, err
	}
	return &Instance{guest: g}, nil
}

type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Exports lists the module's exported functions sorted by name.
func (m *Module) Exports() []Export {
	return exportsOf(m.compiled.ExportedFunctions())
}

func exportsOf(defs map[string]api.FunctionDefinition) []Export {
	exports := make([]Export, 0, len(defs))
	for name, def := range defs {
		exports = append(exports, Export{Name: name, Params: def.ParamTypes(), Results: def.ResultTypes()})
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	return exports
}

// Imports lists the kernel functions the module imports.
func (m *Module) Imports() []string {
	var out []string
	for _, def := range m.compiled.ImportedFunctions() {
		if mod, name, ok := def.Import(); ok && mod == engine.HostModule {
			out = append(out, name)
		}
	}
	return out
}

// Close releases the compiled code. Live instances are unaffected.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
