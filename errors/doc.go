// Package errors provides structured error types for the wasmosis kernel.
//
// Errors are categorized by Phase (which kernel surface failed) and Kind
// (error category). Every Kind has a stable numeric code that the ABI hands
// to guests through __wasmosis_last_error.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindNoEntry).
//		Op("handle_call2").
//		Detail("dispatch index %d out of range", idx).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidReference(errors.PhaseTable, "cap_release", 7)
//	err := errors.Revoked(errors.PhaseBox, "unbox_i32", 3)
//
// Buffer clamping is not an error; it is reported through the returned byte
// count. All errors implement the standard error interface and support
// errors.Is/As.
package errors
