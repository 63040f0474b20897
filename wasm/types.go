package wasm

// Module is a core module under construction.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Memories []MemoryType
	Exports  []Export
	Code     []FuncBody
	Data     []DataSegment
}

// ValType is a value type encoding.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	return equalTypes(f.Params, o.Params) && equalTypes(f.Results, o.Results)
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import is a function import.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Export exposes a function or memory by name.
type Export struct {
	Name string
	Idx  uint32
	Kind byte
}

// MemoryType gives memory limits in 64KiB pages.
type MemoryType struct {
	Max *uint32
	Min uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a defined function's locals and code. Code must end with OpEnd.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active segment for memory 0 at a constant offset.
type DataSegment struct {
	Init   []byte
	Offset uint32
}

// AddType returns the index of ft, adding it if no equal type exists.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIdx: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc defines a function and returns its function index.
func (m *Module) AddFunc(ft FuncType, locals []LocalEntry, code []byte) uint32 {
	m.Funcs = append(m.Funcs, m.AddType(ft))
	m.Code = append(m.Code, FuncBody{Locals: locals, Code: code})
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}

// AddMemory defines a memory of the given initial pages and returns its index.
func (m *Module) AddMemory(pages uint32) uint32 {
	m.Memories = append(m.Memories, MemoryType{Min: pages})
	return uint32(len(m.Memories) - 1)
}

// AddData places init at offset in memory 0 on instantiation.
func (m *Module) AddData(offset uint32, init []byte) {
	m.Data = append(m.Data, DataSegment{Offset: offset, Init: init})
}

// ExportFunc exports function idx as name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// ExportMemory exports memory idx as name.
func (m *Module) ExportMemory(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory, Idx: idx})
}
