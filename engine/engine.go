package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
)

// Engine runs guest modules on wazero and connects each one to a kernel.
// Safe for concurrent use.
type Engine struct {
	runtime wazero.Runtime
	kernel  *kernel.Kernel
	guests  map[string]*Guest
	log     *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// Logger overrides the package logger.
	Logger *zap.Logger
}

// New creates a wazero runtime and instantiates the wasmosis host module
// in it. Guests are attached to k.
func New(ctx context.Context, k *kernel.Kernel, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	log := Logger()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}

	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		kernel:  k,
		guests:  make(map[string]*Guest),
		log:     log,
	}

	if err := e.instantiateHost(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, errors.Registration(HostModule, "", err)
	}
	return e, nil
}

// Kernel returns the kernel guests are attached to.
func (e *Engine) Kernel() *kernel.Kernel {
	return e.kernel
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Compile validates and compiles a core module.
func (e *Engine) Compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "compile module")
	}
	return compiled, nil
}

// Instantiate attaches a new kernel module named name and instantiates
// compiled as its guest. The guest is reachable by host calls from its
// start function onwards. Names must be unique among live guests.
func (e *Engine) Instantiate(ctx context.Context, name string, compiled wazero.CompiledModule) (*Guest, error) {
	if name == "" || name == HostModule {
		return nil, errors.InvalidInput(errors.PhaseLoad, "invalid guest name "+`"`+name+`"`)
	}

	mem := &guestMemory{}
	km, err := e.kernel.Attach(name, mem)
	if err != nil {
		return nil, err
	}
	g := &Guest{
		engine:  e,
		module:  km,
		mem:     mem,
		name:    name,
		classes: make(map[uint32]*kernel.Class),
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		_ = km.Close()
		return nil, errors.Closed(errors.PhaseLoad, "engine")
	case e.guests[name] != nil:
		e.mu.Unlock()
		_ = km.Close()
		return nil, errors.InvalidInput(errors.PhaseLoad, "guest "+name+" already loaded")
	}
	e.guests[name] = g
	e.mu.Unlock()

	cfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions("_initialize")
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		e.forget(g)
		_ = km.Close()
		return nil, errors.Instantiation(name, err)
	}
	g.bind(mod)

	e.log.Debug("guest instantiated", zap.String("guest", name), zap.Uint32("module_id", km.ID()))
	return g, nil
}

// Guest returns a live guest by name.
func (e *Engine) Guest(name string) (*Guest, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.guests[name]
	return g, ok
}

// Close closes every guest and the wazero runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	guests := make([]*Guest, 0, len(e.guests))
	for _, g := range e.guests {
		guests = append(guests, g)
	}
	e.mu.Unlock()

	var err error
	for _, g := range guests {
		err = multierr.Append(err, g.Close(ctx))
	}
	return multierr.Append(err, e.runtime.Close(ctx))
}

// guestOf resolves the guest behind the calling module of a host function.
func (e *Engine) guestOf(mod api.Module) *Guest {
	e.mu.RLock()
	g := e.guests[mod.Name()]
	e.mu.RUnlock()
	if g != nil {
		g.bind(mod)
	}
	return g
}

func (e *Engine) forget(g *Guest) {
	e.mu.Lock()
	if e.guests[g.name] == g {
		delete(e.guests, g.name)
	}
	e.mu.Unlock()
}
