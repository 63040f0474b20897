package runtime

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmosis/config"
	"github.com/wippyai/wasmosis/engine"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/logging"
	"github.com/wippyai/wasmosis/metrics"
)

// Options configures a Runtime. The zero value uses config.Default and a
// logger built from it.
type Options struct {
	Config *config.Config

	// Logger overrides the logger built from Config.Log.
	Logger *zap.Logger

	// Registerer receives the kernel metrics when Config.Metrics.Enabled is
	// set. nil means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Runtime ties a capability kernel to a wazero engine. Guests loaded into
// it and native modules created by it share one kernel.
type Runtime struct {
	kernel  *kernel.Kernel
	engine  *engine.Engine
	metrics *metrics.Collector
	log     *zap.Logger
	cfg     config.Config
	mu      sync.Mutex
	closed  bool
}

func New(ctx context.Context, opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		l, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
		if err != nil {
			return nil, err
		}
		log = l
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		c, err := metrics.New(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		collector = c
	}

	kopts := kernel.Options{
		Logger:        log.Named("kernel"),
		MaxCallDepth:  cfg.Kernel.MaxCallDepth,
		MaxTableSlots: cfg.Kernel.MaxTableSlots,
	}
	if collector != nil {
		kopts.CallObserver = collector
	}
	k := kernel.New(kopts)
	if collector != nil {
		k.Subscribe(collector)
	}

	eng, err := engine.New(ctx, k, &engine.Config{
		MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		Logger:           log.Named("engine"),
	})
	if err != nil {
		_ = k.Close()
		return nil, err
	}

	return &Runtime{
		kernel:  k,
		engine:  eng,
		metrics: collector,
		log:     log,
		cfg:     *cfg,
	}, nil
}

// Kernel returns the shared capability kernel.
func (r *Runtime) Kernel() *kernel.Kernel {
	return r.kernel
}

// Engine returns the wazero engine guests run on.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Metrics returns the collector, or nil when metrics are disabled.
func (r *Runtime) Metrics() *metrics.Collector {
	return r.metrics
}

// Config returns the effective configuration.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// Compile validates a core module for later instantiation.
func (r *Runtime) Compile(ctx context.Context, wasm []byte) (*Module, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	return &Module{runtime: r, compiled: compiled}, nil
}

// Load compiles wasm and instantiates it as a guest named name.
func (r *Runtime) Load(ctx context.Context, name string, wasm []byte) (*Instance, error) {
	mod, err := r.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	inst, err := mod.Instantiate(ctx, name)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return inst, nil
}

// NewNative attaches a Go-implemented module with a zeroed arena of size
// bytes. Its operations are the methods of the returned kernel module.
func (r *Runtime) NewNative(name string, size uint32) (*kernel.Module, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "native module name is empty")
	}
	return r.kernel.Attach(name, kernel.NewArena(size))
}

// Grant places a new reference to from's capability c in to's table and
// returns its index there.
func (r *Runtime) Grant(from *kernel.Module, c kernel.Cap, to *kernel.Module) (kernel.Cap, error) {
	return r.kernel.Grant(from, c, to)
}

// Snapshot captures every module's capability table.
func (r *Runtime) Snapshot() kernel.Snapshot {
	return r.kernel.Snapshot()
}

// Close releases all runtime resources: guests first, then every remaining
// module and object.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.engine.Close(ctx)
	err = multierr.Append(err, r.kernel.Close())
	_ = r.log.Sync()
	return err
}

func (r *Runtime) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed(errors.PhaseLoad, "runtime")
	}
	return nil
}
