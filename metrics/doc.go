// Package metrics exports kernel object lifecycle and handle call
// activity to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.New(reg, "wasmosis")
//	opts := kernel.DefaultOptions()
//	opts.CallObserver = c
//	k := kernel.New(opts)
//	k.Subscribe(c)
package metrics
