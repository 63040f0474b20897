package wasm

import (
	"encoding/binary"
	"math"
)

// Encode returns the module in binary format. Empty sections are omitted.
func (m *Module) Encode() []byte {
	out := binary.LittleEndian.AppendUint32(nil, Magic)
	out = binary.LittleEndian.AppendUint32(out, Version)

	if len(m.Types) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Types)))
		for _, ft := range m.Types {
			sec = append(sec, FuncTypeByte)
			sec = appendValTypes(sec, ft.Params)
			sec = appendValTypes(sec, ft.Results)
		}
		out = appendSection(out, SectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Imports)))
		for _, imp := range m.Imports {
			sec = appendName(sec, imp.Module)
			sec = appendName(sec, imp.Name)
			sec = append(sec, KindFunc)
			sec = AppendULEB128(sec, uint64(imp.TypeIdx))
		}
		out = appendSection(out, SectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Funcs)))
		for _, idx := range m.Funcs {
			sec = AppendULEB128(sec, uint64(idx))
		}
		out = appendSection(out, SectionFunction, sec)
	}

	if len(m.Memories) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Memories)))
		for _, mem := range m.Memories {
			if mem.Max != nil {
				sec = append(sec, 0x01)
				sec = AppendULEB128(sec, uint64(mem.Min))
				sec = AppendULEB128(sec, uint64(*mem.Max))
			} else {
				sec = append(sec, 0x00)
				sec = AppendULEB128(sec, uint64(mem.Min))
			}
		}
		out = appendSection(out, SectionMemory, sec)
	}

	if len(m.Exports) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Exports)))
		for _, exp := range m.Exports {
			sec = appendName(sec, exp.Name)
			sec = append(sec, exp.Kind)
			sec = AppendULEB128(sec, uint64(exp.Idx))
		}
		out = appendSection(out, SectionExport, sec)
	}

	if len(m.Code) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Code)))
		for _, body := range m.Code {
			fn := AppendULEB128(nil, uint64(len(body.Locals)))
			for _, l := range body.Locals {
				fn = AppendULEB128(fn, uint64(l.Count))
				fn = append(fn, byte(l.ValType))
			}
			fn = append(fn, body.Code...)
			sec = AppendULEB128(sec, uint64(len(fn)))
			sec = append(sec, fn...)
		}
		out = appendSection(out, SectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Data)))
		for _, d := range m.Data {
			sec = append(sec, 0x00, OpI32Const)
			sec = AppendSLEB128(sec, int64(int32(d.Offset)))
			sec = append(sec, OpEnd)
			sec = AppendULEB128(sec, uint64(len(d.Init)))
			sec = append(sec, d.Init...)
		}
		out = appendSection(out, SectionData, sec)
	}

	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = AppendULEB128(out, uint64(len(body)))
	return append(out, body...)
}

func appendName(buf []byte, s string) []byte {
	buf = AppendULEB128(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendValTypes(buf []byte, types []ValType) []byte {
	buf = AppendULEB128(buf, uint64(len(types)))
	for _, t := range types {
		buf = append(buf, byte(t))
	}
	return buf
}

// Code assembles a function body.
type Code struct {
	buf []byte
}

// Op appends raw opcodes.
func (c *Code) Op(ops ...byte) *Code {
	c.buf = append(c.buf, ops...)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code { return c.index(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code { return c.index(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code { return c.index(OpLocalTee, idx) }
func (c *Code) Call(fn uint32) *Code      { return c.index(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code     { return c.index(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code   { return c.index(OpBrIf, depth) }

func (c *Code) I32Const(v int32) *Code {
	c.buf = append(c.buf, OpI32Const)
	c.buf = AppendSLEB128(c.buf, int64(v))
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.buf = append(c.buf, OpF32Const)
	c.buf = binary.LittleEndian.AppendUint32(c.buf, math.Float32bits(v))
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.buf = append(c.buf, OpF64Const)
	c.buf = binary.LittleEndian.AppendUint64(c.buf, math.Float64bits(v))
	return c
}

// I32Load loads from the address on the stack plus offset, 4-byte aligned.
func (c *Code) I32Load(offset uint32) *Code {
	c.buf = append(c.buf, OpI32Load, 2)
	c.buf = AppendULEB128(c.buf, uint64(offset))
	return c
}

// I32Store stores to the address on the stack plus offset, 4-byte aligned.
func (c *Code) I32Store(offset uint32) *Code {
	c.buf = append(c.buf, OpI32Store, 2)
	c.buf = AppendULEB128(c.buf, uint64(offset))
	return c
}

// Block opens a void block, If opens a void if.
func (c *Code) Block() *Code { return c.Op(OpBlock, BlockVoid) }
func (c *Code) If() *Code    { return c.Op(OpIf, BlockVoid) }

// EndBlock closes the innermost block or if.
func (c *Code) EndBlock() *Code { return c.Op(OpEnd) }

// End closes the function body and returns the encoded code.
func (c *Code) End() []byte {
	c.buf = append(c.buf, OpEnd)
	return c.buf
}

func (c *Code) index(op byte, idx uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, uint64(idx))
	return c
}
