// Package config loads runtime configuration from defaults, an optional
// YAML file and WASMOSIS_* environment variables, in that order of
// precedence from lowest to highest.
//
//	WASMOSIS_KERNEL_MAX_CALL_DEPTH      nested handle call limit (64)
//	WASMOSIS_KERNEL_MAX_TABLE_SLOTS     per-module table limit, 0 = unbounded
//	WASMOSIS_ENGINE_MEMORY_LIMIT_PAGES  per-guest memory limit in 64KiB pages
//	WASMOSIS_LOG_LEVEL                  debug, info, warn, error
//	WASMOSIS_LOG_DEVELOPMENT            console encoder with stack traces
//	WASMOSIS_METRICS_ENABLED            expose Prometheus metrics
//	WASMOSIS_METRICS_NAMESPACE          metric name prefix
//	WASMOSIS_METRICS_ADDR               listen address for /metrics
package config
