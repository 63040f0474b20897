package kernel

import (
	"context"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// Class tags a family of handles. Classes are compared by identity, never
// by name.
type Class struct {
	name string
}

// NewClass returns a class distinct from every other class.
func NewClass(name string) *Class {
	return &Class{name: name}
}

func (c *Class) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.name
}

// AnyArity marks a function table entry that accepts any argument count.
const AnyArity = -1

// Callback runs a function table entry in the module that created the
// handle. The returned capability is an index into that module's table and
// is handed to the caller; Null means no result.
type Callback func(ctx context.Context, inv *Invocation) (Cap, error)

// Func is one function table entry.
type Func struct {
	Fn    Callback
	Arity int
}

// NewFunc returns an entry that requires exactly arity arguments, or any
// count when arity is AnyArity.
func NewFunc(arity int, fn Callback) Func {
	return Func{Fn: fn, Arity: arity}
}

// Invocation is the view a callback gets of one call. Handle and Args are
// indices in Module's table; for a cross-module call they are borrowed and
// released when the callback returns, so anything kept must be retained.
type Invocation struct {
	Module *Module
	Caller *Module
	Args   []Cap
	Handle Cap
	Index  uint32
}

// Arg returns argument i, or Null when absent.
func (inv *Invocation) Arg(i int) Cap {
	if i < 0 || i >= len(inv.Args) {
		return Null
	}
	return inv.Args[i]
}

// Remote reports whether the call crossed a module boundary.
func (inv *Invocation) Remote() bool {
	return inv.Caller != inv.Module
}

type handleObject struct {
	class    *Class
	owner    *Module
	userData any
	funcs    []Func
}

// Drop forwards destruction to user data implementing resource.Dropper.
// It runs with the releasing module's table locked and must not call back
// into the kernel.
func (h *handleObject) Drop() {
	if d, ok := h.userData.(resource.Dropper); ok {
		d.Drop()
	}
}

// HandleCreate creates an unforgeable handle tagged with class. The handle
// carries userData, readable only by m, and a function table other modules
// can call through.
func (m *Module) HandleCreate(class *Class, userData any, funcs []Func) (Cap, error) {
	const op = "handle_create"

	if err := m.checkOpen(errors.PhaseHandle); err != nil {
		return Null, m.record(err)
	}
	for i, f := range funcs {
		if f.Fn == nil {
			return Null, m.record(errors.New(errors.PhaseHandle, errors.KindInvalidInput).
				Op(op).Detail("function %d has no callback", i).Build())
		}
		if f.Arity < AnyArity || f.Arity > MaxArgs {
			return Null, m.record(errors.New(errors.PhaseHandle, errors.KindInvalidInput).
				Op(op).Detail("function %d has arity %d", i, f.Arity).Build())
		}
	}

	h := &handleObject{
		class:    class,
		owner:    m,
		userData: userData,
		funcs:    append([]Func(nil), funcs...),
	}
	c, err := m.create(errors.PhaseHandle, op, resource.KindHandle, h)
	return c, m.record(err)
}

// HandleUserData returns the user data of handle h if m created it with
// exactly class.
func (m *Module) HandleUserData(h Cap, class *Class) (any, error) {
	const op = "handle_user_data"

	if err := m.checkOpen(errors.PhaseHandle); err != nil {
		return nil, m.record(err)
	}

	_, obj, err := m.object(errors.PhaseHandle, op, h)
	if err != nil {
		return nil, m.record(err)
	}
	if obj.Kind != resource.KindHandle {
		return nil, m.record(errors.TypeMismatch(errors.PhaseHandle, op, resource.KindHandle.String(), obj.Kind.String()))
	}
	if obj.Revoked {
		return nil, m.record(errors.Revoked(errors.PhaseHandle, op, uint32(h)))
	}
	if obj.Owner != m.id {
		return nil, m.record(errors.Ownership(errors.PhaseHandle, op, uint32(h)))
	}

	ho := obj.Value.(*handleObject)
	if ho.class != class {
		return nil, m.record(errors.TypeMismatch(errors.PhaseHandle, op, class.String(), ho.class.String()))
	}
	return ho.userData, nil
}
