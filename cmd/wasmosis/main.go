package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/wasmosis/config"
	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/logging"
	"github.com/wippyai/wasmosis/runtime"
)

type options struct {
	configPath  string
	entry       string
	dump        string
	metricsAddr string
	logLevel    string
	list        bool
	interactive bool
	wait        bool
}

func main() {
	var opts options
	flag.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flag.StringVarP(&opts.entry, "entry", "e", "run", "Export called on every guest")
	flag.StringVar(&opts.dump, "dump", "", "Write a CBOR kernel snapshot to this file after the run (- for stdout)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	flag.BoolVarP(&opts.list, "list", "l", false, "List each guest's kernel imports and exports, then exit")
	flag.BoolVarP(&opts.interactive, "interactive", "i", false, "Interactive inspector")
	flag.BoolVarP(&opts.wait, "wait", "w", false, "Keep serving metrics after the run until interrupted")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wasmosis [flags] [name=]guest.wasm ...")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Every guest is granted a console handle and its entry export is called")
		fmt.Fprintln(os.Stderr, "with that handle's index. All guests share one capability kernel.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type guestFile struct {
	name string
	path string
}

func parseGuests(args []string) ([]guestFile, error) {
	seen := make(map[string]bool, len(args))
	out := make([]guestFile, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			name = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid guest %q", arg)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate guest name %q", name)
		}
		seen[name] = true
		out = append(out, guestFile{name: name, path: path})
	}
	return out, nil
}

func run(opts options, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := parseGuests(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if !cfg.Log.Development && term.IsTerminal(int(os.Stderr.Fd())) && !opts.interactive {
		cfg.Log.Development = true
	}

	log, err := newLogger(cfg, opts.interactive)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rt, err := runtime.New(ctx, &runtime.Options{Config: cfg, Logger: log, Registerer: reg})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(context.Background())

	if opts.list {
		return list(ctx, rt, files)
	}

	console, err := newConsole(rt, os.Stdout)
	if err != nil {
		return fmt.Errorf("create console: %w", err)
	}

	guests, err := loadGuests(ctx, rt, files)
	if err != nil {
		return err
	}

	ports := make(map[string]kernel.Cap, len(guests))
	for _, g := range guests {
		port, err := console.grant(g.Module())
		if err != nil {
			return fmt.Errorf("grant console to %s: %w", g.Name(), err)
		}
		ports[g.Name()] = port
	}

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(rt, guests)
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv, err = serveMetrics(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range guests {
		port := ports[inst.Name()]
		g.Go(func() error {
			res, err := callEntry(gctx, inst, opts.entry, port)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", inst.Name(), opts.entry, err)
			}
			log.Info("entry returned", zap.String("guest", inst.Name()), zap.Uint64s("results", res))
			return nil
		})
	}
	runErr := g.Wait()

	if opts.dump != "" {
		if err := dump(rt, opts.dump); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	if srv != nil && opts.wait {
		log.Info("serving metrics until interrupted", zap.String("addr", cfg.Metrics.Addr))
		<-ctx.Done()
	}
	return nil
}

func newLogger(cfg *config.Config, interactive bool) (*zap.Logger, error) {
	if interactive {
		// The inspector owns the terminal.
		return zap.NewNop(), nil
	}
	return logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
}

func loadGuests(ctx context.Context, rt *runtime.Runtime, files []guestFile) ([]*runtime.Instance, error) {
	out := make([]*runtime.Instance, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.path, err)
		}
		inst, err := rt.Load(ctx, f.name, data)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f.name, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// callEntry calls entry with the console port when the export takes a
// parameter.
func callEntry(ctx context.Context, inst *runtime.Instance, entry string, port kernel.Cap) ([]uint64, error) {
	exp, ok := inst.Export(entry)
	if !ok {
		return nil, fmt.Errorf("no export %q", entry)
	}
	switch len(exp.Params) {
	case 0:
		return inst.Call(ctx, entry)
	case 1:
		return inst.Call(ctx, entry, uint64(port))
	default:
		return nil, fmt.Errorf("entry %s takes %d parameters, want 0 or 1", formatExport(exp), len(exp.Params))
	}
}

func list(ctx context.Context, rt *runtime.Runtime, files []guestFile) error {
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.path, err)
		}
		mod, err := rt.Compile(ctx, data)
		if err != nil {
			return fmt.Errorf("compile %s: %w", f.name, err)
		}

		fmt.Printf("%s (%s)\n", f.name, f.path)
		imports := mod.Imports()
		sort.Strings(imports)
		fmt.Printf("  kernel imports: %d\n", len(imports))
		for _, name := range imports {
			fmt.Printf("    %s\n", name)
		}
		fmt.Printf("  exports:\n")
		for _, e := range mod.Exports() {
			fmt.Printf("    %s\n", formatExport(e))
		}
		_ = mod.Close(ctx)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Debug("metrics listening", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

func dump(rt *runtime.Runtime, path string) error {
	data, err := rt.Snapshot().Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
