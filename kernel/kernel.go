package kernel

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmosis "github.com/wippyai/wasmosis"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// Options configures a kernel.
type Options struct {
	// Logger overrides the package logger for this kernel.
	Logger *zap.Logger

	// MaxCallDepth bounds nested handle calls across all modules in one
	// call chain. 0 means DefaultMaxCallDepth.
	MaxCallDepth int

	// MaxTableSlots bounds each module's capability table. 0 means unbounded.
	MaxTableSlots int

	// CallObserver, if set, is notified of every handle call outcome.
	CallObserver CallObserver
}

// DefaultMaxCallDepth is used when Options.MaxCallDepth is 0.
const DefaultMaxCallDepth = 64

// DefaultOptions returns default kernel configuration.
func DefaultOptions() Options {
	return Options{
		MaxCallDepth: DefaultMaxCallDepth,
	}
}

// Kernel owns the shared object registry and the set of attached modules.
// Thread-safe.
type Kernel struct {
	registry *resource.Registry
	modules  map[uint32]*Module
	log      *zap.Logger
	opts     Options
	id       uuid.UUID
	nextID   uint32
	mu       sync.RWMutex
	closed   bool
}

// New creates a kernel with an empty registry.
func New(opts Options) *Kernel {
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	id := uuid.New()
	return &Kernel{
		registry: resource.NewRegistry(),
		modules:  make(map[uint32]*Module),
		log:      log.With(zap.String("kernel", id.String())),
		opts:     opts,
		id:       id,
	}
}

// ID returns the kernel instance id used in logs and snapshots.
func (k *Kernel) ID() uuid.UUID {
	return k.id
}

// Options returns the effective configuration.
func (k *Kernel) Options() Options {
	return k.opts
}

// Registry exposes the shared object registry for observers and inspection.
func (k *Kernel) Registry() *resource.Registry {
	return k.registry
}

// Subscribe adds a registry lifecycle observer.
func (k *Kernel) Subscribe(o resource.Observer) {
	k.registry.Subscribe(o)
}

// Stats returns live object and reference totals across all modules.
func (k *Kernel) Stats() resource.Stats {
	return k.registry.Stats()
}

// Attach registers a module with the kernel and gives it an empty
// capability table. mem is the module's arena; it may be nil for modules
// that never create or access buffers.
func (k *Kernel) Attach(name string, mem wasmosis.Memory) (*Module, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, errors.Closed(errors.PhaseLoad, "kernel")
	}

	k.nextID++
	m := &Module{
		kernel: k,
		name:   name,
		mem:    mem,
		table:  newTable(k.opts.MaxTableSlots),
		id:     k.nextID,
	}
	m.log = k.log.With(zap.String("module", name), zap.Uint32("module_id", m.id))
	k.modules[m.id] = m

	m.log.Debug("module attached")
	return m, nil
}

// Module returns an attached module by id.
func (k *Kernel) Module(id uint32) (*Module, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	m, ok := k.modules[id]
	return m, ok
}

// Modules returns the attached modules ordered by id.
func (k *Kernel) Modules() []*Module {
	k.mu.RLock()
	out := make([]*Module, 0, len(k.modules))
	for _, m := range k.modules {
		out = append(out, m)
	}
	k.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Grant places a new reference to from's capability c into to's table and
// returns its index there. It is the host's way of seeding a module with its
// first capabilities; guests cannot reach it.
func (k *Kernel) Grant(from *Module, c Cap, to *Module) (Cap, error) {
	const op = "grant"

	if from.kernel != k || to.kernel != k {
		return Null, errors.InvalidInput(errors.PhaseTable, "grant across kernels")
	}
	if to.isClosed() {
		return Null, errors.Closed(errors.PhaseTable, "module "+to.name)
	}

	id, err := from.pinLive(errors.PhaseTable, op, c)
	if err != nil {
		return Null, err
	}

	out, err := to.adopt(errors.PhaseTable, op, id, false)
	if err != nil {
		return Null, err
	}
	return out, nil
}

// Close detaches every module and drops all remaining objects.
func (k *Kernel) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	mods := make([]*Module, 0, len(k.modules))
	for _, m := range k.modules {
		mods = append(mods, m)
	}
	k.mu.Unlock()

	var err error
	for _, m := range mods {
		err = multierr.Append(err, m.Close())
	}
	err = multierr.Append(err, k.registry.Close())
	k.log.Debug("kernel closed")
	return err
}

func (k *Kernel) detach(m *Module) {
	k.mu.Lock()
	delete(k.modules, m.id)
	k.mu.Unlock()
}
