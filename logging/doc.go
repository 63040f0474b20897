// Package logging builds the zap loggers handed to the kernel, engine and
// runtime.
package logging
