package kernel

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// CallObserver is notified once per completed handle call.
type CallObserver interface {
	ObserveCall(op string, remote bool, elapsed time.Duration, err error)
}

type depthKey struct{}

// CallDepthOf returns the number of handle calls active on ctx's chain.
func CallDepthOf(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func (m *Module) Call0(ctx context.Context, target Cap, index uint32) (Cap, error) {
	return m.Call(ctx, target, index)
}

func (m *Module) Call1(ctx context.Context, target Cap, index uint32, a1 Cap) (Cap, error) {
	return m.Call(ctx, target, index, a1)
}

func (m *Module) Call2(ctx context.Context, target Cap, index uint32, a1, a2 Cap) (Cap, error) {
	return m.Call(ctx, target, index, a1, a2)
}

func (m *Module) Call3(ctx context.Context, target Cap, index uint32, a1, a2, a3 Cap) (Cap, error) {
	return m.Call(ctx, target, index, a1, a2, a3)
}

func (m *Module) Call4(ctx context.Context, target Cap, index uint32, a1, a2, a3, a4 Cap) (Cap, error) {
	return m.Call(ctx, target, index, a1, a2, a3, a4)
}

// Call invokes entry index of the handle at target with up to MaxArgs
// capability arguments and returns the callee's result as an index in m's
// table. The caller owns the result.
//
// When the handle belongs to another module, the handle and every non-null
// argument are placed in borrowed slots of the callee's table for the
// duration of the callback and the result is moved back into m's table.
// A Null result with a nil error is a legitimate empty return.
func (m *Module) Call(ctx context.Context, target Cap, index uint32, args ...Cap) (Cap, error) {
	op := callOp(len(args))
	start := time.Now()

	ret, remote, err := m.call(ctx, op, target, index, args)
	if obs := m.kernel.opts.CallObserver; obs != nil {
		obs.ObserveCall(op, remote, time.Since(start), err)
	}
	if err != nil {
		m.log.Debug("handle call failed",
			zap.String("op", op),
			zap.Uint32("target", uint32(target)),
			zap.Uint32("index", index),
			zap.Error(err))
	}
	return ret, m.record(err)
}

func (m *Module) call(ctx context.Context, op string, target Cap, index uint32, args []Cap) (Cap, bool, error) {
	if err := m.checkOpen(errors.PhaseCall); err != nil {
		return Null, false, err
	}
	if len(args) > MaxArgs {
		return Null, false, errors.ArityMismatch(op, MaxArgs, len(args))
	}

	depth := CallDepthOf(ctx) + 1
	if limit := m.kernel.opts.MaxCallDepth; depth > limit {
		return Null, false, errors.CallDepth(op, limit)
	}

	_, obj, err := m.object(errors.PhaseCall, op, target)
	if err != nil {
		return Null, false, err
	}
	if obj.Kind != resource.KindHandle {
		return Null, false, errors.TypeMismatch(errors.PhaseCall, op, resource.KindHandle.String(), obj.Kind.String())
	}
	if obj.Revoked {
		return Null, false, errors.Revoked(errors.PhaseCall, op, uint32(target))
	}

	h := obj.Value.(*handleObject)
	if int(index) >= len(h.funcs) {
		return Null, false, errors.NoEntry(op, index, len(h.funcs))
	}
	fn := h.funcs[index]
	if fn.Arity != AnyArity && fn.Arity != len(args) {
		return Null, false, errors.ArityMismatch(op, fn.Arity, len(args))
	}

	ctx = context.WithValue(ctx, depthKey{}, depth)
	if h.owner == m {
		ret, err := m.callLocal(ctx, op, fn, target, index, args)
		return ret, false, err
	}
	ret, err := m.callRemote(ctx, op, h.owner, fn, target, index, args)
	return ret, true, err
}

func (m *Module) callLocal(ctx context.Context, op string, fn Func, target Cap, index uint32, args []Cap) (Cap, error) {
	m.table.mu.Lock()
	for _, a := range args {
		if a == Null {
			continue
		}
		if _, ok := m.table.resolveLocked(a); !ok {
			m.table.mu.Unlock()
			return Null, errors.InvalidReference(errors.PhaseCall, op, uint32(a))
		}
	}
	m.table.mu.Unlock()

	f := &frame{callee: m, handle: target, index: index}
	m.push(f)
	ret, err := invoke(ctx, fn.Fn, &Invocation{
		Module: m,
		Caller: m,
		Args:   append([]Cap(nil), args...),
		Handle: target,
		Index:  index,
	})
	m.pop(f)

	if err != nil {
		return Null, errors.CalleeFailed(op, err)
	}
	if ret == Null {
		return Null, nil
	}
	m.table.mu.Lock()
	_, ok := m.table.resolveLocked(ret)
	m.table.mu.Unlock()
	if !ok {
		return Null, errors.New(errors.PhaseCall, errors.KindInvalidReference).
			Op(op).Value(uint32(ret)).Detail("callback returned unknown index %d", ret).Build()
	}
	if ret != target && !slices.Contains(args, ret) {
		return ret, nil
	}

	// The caller still owns target and args, so the result gets its own slot.
	id, err := m.pin(errors.PhaseCall, op, ret)
	if err != nil {
		return Null, err
	}
	return m.adopt(errors.PhaseCall, op, id, false)
}

func (m *Module) callRemote(ctx context.Context, op string, callee *Module, fn Func, target Cap, index uint32, args []Cap) (Cap, error) {
	if callee.isClosed() {
		return Null, errors.Closed(errors.PhaseCall, "module "+callee.name)
	}

	grants := make([]grant, 0, len(args)+1)
	handle, err := m.translate(op, callee, target)
	if err != nil {
		return Null, err
	}
	grants = append(grants, handle)

	borrowed := make([]Cap, len(args))
	for i, a := range args {
		if a == Null {
			continue
		}
		g, err := m.translate(op, callee, a)
		if err != nil {
			callee.releaseGrants(grants)
			return Null, err
		}
		grants = append(grants, g)
		borrowed[i] = g.cap
	}

	f := &frame{callee: callee, handle: target, index: index}
	m.push(f)
	ret, err := invoke(ctx, fn.Fn, &Invocation{
		Module: callee,
		Caller: m,
		Args:   borrowed,
		Handle: handle.cap,
		Index:  index,
	})
	m.pop(f)

	if err != nil {
		callee.releaseGrants(grants)
		return Null, errors.CalleeFailed(op, err)
	}

	out := Null
	if ret != Null {
		callee.table.mu.Lock()
		id, ok := callee.table.removeLocked(ret)
		callee.table.mu.Unlock()
		if !ok {
			callee.releaseGrants(grants)
			return Null, errors.New(errors.PhaseCall, errors.KindInvalidReference).
				Op(op).Value(uint32(ret)).Detail("callback returned unknown index %d", ret).Build()
		}
		if out, err = m.adopt(errors.PhaseCall, op, id, false); err != nil {
			callee.releaseGrants(grants)
			return Null, err
		}
	}

	callee.releaseGrants(grants)
	return out, nil
}

// translate places a borrowed reference to m's capability c in callee's table.
func (m *Module) translate(op string, callee *Module, c Cap) (grant, error) {
	id, err := m.pin(errors.PhaseCall, op, c)
	if err != nil {
		return grant{}, err
	}
	return callee.adoptGrant(errors.PhaseCall, op, id, true)
}

// releaseGrants frees borrowed slots the callback left in place.
func (m *Module) releaseGrants(grants []grant) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	for _, g := range grants {
		if m.table.removeGrantLocked(g) {
			m.drop(g.id)
		}
	}
}

func invoke(ctx context.Context, fn Callback, inv *Invocation) (ret Cap, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret, err = Null, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, inv)
}
