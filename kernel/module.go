package kernel

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmosis "github.com/wippyai/wasmosis"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// Module is one isolated compute module's view of the kernel. Every kernel
// operation is a method on the issuing module and mutates only its table,
// except Call, which also places borrowed arguments in the callee's table.
//
// Operations may be issued concurrently; each failed operation records the
// module's last error.
type Module struct {
	kernel  *Kernel
	mem     wasmosis.Memory
	table   *Table
	log     *zap.Logger
	lastErr error
	name    string
	stack   []*frame
	id      uint32
	stackMu sync.Mutex
	errMu   sync.Mutex
	closed  atomic.Bool
}

// frame is one active outgoing call issued by a module.
type frame struct {
	callee *Module
	handle Cap
	index  uint32
}

// CapInfo describes the record behind a capability index.
type CapInfo struct {
	Kind     resource.Kind
	Object   resource.ID
	Owner    uint32
	Refs     uint32
	Revoked  bool
	Borrowed bool
}

// ID returns the kernel-assigned module id.
func (m *Module) ID() uint32 { return m.id }

// Name returns the name the module was attached with.
func (m *Module) Name() string { return m.name }

// Kernel returns the kernel the module is attached to.
func (m *Module) Kernel() *Kernel { return m.kernel }

// Memory returns the module's arena.
func (m *Module) Memory() wasmosis.Memory { return m.mem }

// Caps returns the number of live capability slots.
func (m *Module) Caps() int { return m.table.Len() }

// CallDepth returns the number of outgoing calls currently in progress.
func (m *Module) CallDepth() int {
	m.stackMu.Lock()
	defer m.stackMu.Unlock()
	return len(m.stack)
}

// LastError returns the most recent failure of any operation issued by
// this module.
func (m *Module) LastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// TakeLastError returns and clears the most recent failure.
func (m *Module) TakeLastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	err := m.lastErr
	m.lastErr = nil
	return err
}

// RecordError stores err as the last error. Bindings use it for failures
// detected before a kernel operation runs.
func (m *Module) RecordError(err error) {
	_ = m.record(err)
}

// Inspect describes the record at c without changing it.
func (m *Module) Inspect(c Cap) (CapInfo, error) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	s := m.table.slotLocked(c)
	if s == nil {
		return CapInfo{}, errors.InvalidReference(errors.PhaseTable, "inspect", uint32(c))
	}
	obj, ok := m.kernel.registry.Get(s.id)
	if !ok {
		return CapInfo{}, errors.InvalidReference(errors.PhaseTable, "inspect", uint32(c))
	}
	return CapInfo{
		Kind:     obj.Kind,
		Object:   s.id,
		Owner:    obj.Owner,
		Refs:     obj.Refs,
		Revoked:  obj.Revoked,
		Borrowed: s.borrowed,
	}, nil
}

// Retain returns a fresh index referencing the same object as c. The new
// index survives the release of c, which is how a callee keeps a borrowed
// argument past the end of a call.
func (m *Module) Retain(c Cap) (Cap, error) {
	const op = "cap_retain"

	if err := m.checkOpen(errors.PhaseTable); err != nil {
		return Null, m.record(err)
	}

	id, err := m.pinLive(errors.PhaseTable, op, c)
	if err != nil {
		return Null, m.record(err)
	}
	out, err := m.adopt(errors.PhaseTable, op, id, false)
	return out, m.record(err)
}

// Revoke permanently invalidates the object behind c for every holder in
// every module. Only the owning module may revoke.
func (m *Module) Revoke(c Cap) error {
	const op = "cap_revoke"

	if err := m.checkOpen(errors.PhaseTable); err != nil {
		return m.record(err)
	}

	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	id, ok := m.table.resolveLocked(c)
	if !ok {
		return m.record(errors.InvalidReference(errors.PhaseTable, op, uint32(c)))
	}

	switch err := m.kernel.registry.Revoke(id, m.id); {
	case err == nil:
		m.log.Debug("capability revoked", zap.Uint32("cap", uint32(c)), zap.Uint32("object", uint32(id)))
		return nil
	case stderrors.Is(err, resource.ErrNotOwner):
		return m.record(errors.Ownership(errors.PhaseTable, op, uint32(c)))
	default:
		return m.record(errors.InvalidReference(errors.PhaseTable, op, uint32(c)))
	}
}

// Release frees the slot at c and drops its reference. The object is
// destroyed when no slot in any module references it any more. Releasing a
// free slot fails without touching the table.
func (m *Module) Release(c Cap) error {
	const op = "cap_release"

	if err := m.checkOpen(errors.PhaseTable); err != nil {
		return m.record(err)
	}

	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	id, ok := m.table.removeLocked(c)
	if !ok {
		return m.record(errors.InvalidReference(errors.PhaseTable, op, uint32(c)))
	}
	m.drop(id)
	return nil
}

// Close detaches the module: objects it owns are revoked, then every slot
// in its table is released. Further operations fail with KindClosed.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	revoked := m.kernel.registry.RevokeOwned(m.id)

	m.table.mu.Lock()
	ids := m.table.drainLocked()
	m.table.mu.Unlock()

	var err error
	for _, id := range ids {
		if _, rerr := m.kernel.registry.Release(id); rerr != nil && !stderrors.Is(rerr, resource.ErrClosed) {
			err = multierr.Append(err, rerr)
		}
	}
	m.kernel.detach(m)

	m.log.Debug("module detached", zap.Int("revoked", revoked), zap.Int("released", len(ids)))
	return err
}

func (m *Module) isClosed() bool {
	return m.closed.Load()
}

func (m *Module) checkOpen(phase errors.Phase) error {
	if m.closed.Load() {
		return errors.Closed(phase, "module "+m.name)
	}
	return nil
}

func (m *Module) record(err error) error {
	if err != nil {
		m.errMu.Lock()
		m.lastErr = err
		m.errMu.Unlock()
	}
	return err
}

// create stores a new object owned by m and gives m the first slot on it.
func (m *Module) create(phase errors.Phase, op string, kind resource.Kind, value any) (Cap, error) {
	id, err := m.kernel.registry.Create(kind, m.id, value)
	if err != nil {
		return Null, errors.Closed(phase, "kernel")
	}
	return m.adopt(phase, op, id, false)
}

// object resolves c to its registry entry.
func (m *Module) object(phase errors.Phase, op string, c Cap) (resource.ID, resource.Object, error) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	id, ok := m.table.resolveLocked(c)
	if !ok {
		return 0, resource.Object{}, errors.InvalidReference(phase, op, uint32(c))
	}
	obj, ok := m.kernel.registry.Get(id)
	if !ok {
		return 0, resource.Object{}, errors.InvalidReference(phase, op, uint32(c))
	}
	return id, obj, nil
}

// pin resolves c and takes an extra reference on its object. The caller
// owns that reference and must adopt or release it.
func (m *Module) pin(phase errors.Phase, op string, c Cap) (resource.ID, error) {
	return m.pinWith(phase, op, c, false)
}

// pinLive is pin that also rejects revoked objects.
func (m *Module) pinLive(phase errors.Phase, op string, c Cap) (resource.ID, error) {
	return m.pinWith(phase, op, c, true)
}

func (m *Module) pinWith(phase errors.Phase, op string, c Cap, live bool) (resource.ID, error) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	id, ok := m.table.resolveLocked(c)
	if !ok {
		return 0, errors.InvalidReference(phase, op, uint32(c))
	}
	if live {
		if obj, ok := m.kernel.registry.Get(id); ok && obj.Revoked {
			return 0, errors.Revoked(phase, op, uint32(c))
		}
	}
	if err := m.kernel.registry.Acquire(id); err != nil {
		return 0, errors.InvalidReference(phase, op, uint32(c))
	}
	return id, nil
}

// adopt places an already-acquired reference into a new slot. On failure the
// reference is released.
func (m *Module) adopt(phase errors.Phase, op string, id resource.ID, borrowed bool) (Cap, error) {
	g, err := m.adoptGrant(phase, op, id, borrowed)
	return g.cap, err
}

func (m *Module) adoptGrant(phase errors.Phase, op string, id resource.ID, borrowed bool) (grant, error) {
	m.table.mu.Lock()
	defer m.table.mu.Unlock()

	if m.closed.Load() {
		m.drop(id)
		return grant{}, errors.Closed(phase, "module "+m.name)
	}

	c, gen, ok := m.table.insertLocked(id, borrowed)
	if !ok {
		m.drop(id)
		return grant{}, errors.Exhausted(phase, op, m.table.limit)
	}
	return grant{id: id, cap: c, gen: gen}, nil
}

// drop releases one registry reference on id.
func (m *Module) drop(id resource.ID) {
	destroyed, err := m.kernel.registry.Release(id)
	if err != nil {
		m.log.Warn("release of unknown object", zap.Uint32("object", uint32(id)), zap.Error(err))
		return
	}
	if destroyed {
		m.log.Debug("object destroyed", zap.Uint32("object", uint32(id)))
	}
}

func (m *Module) push(f *frame) int {
	m.stackMu.Lock()
	defer m.stackMu.Unlock()
	m.stack = append(m.stack, f)
	return len(m.stack)
}

func (m *Module) pop(f *frame) {
	m.stackMu.Lock()
	defer m.stackMu.Unlock()
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == f {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			return
		}
	}
}
