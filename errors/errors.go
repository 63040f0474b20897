package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which kernel surface produced the error
type Phase string

const (
	PhaseTable  Phase = "table"  // retain/revoke/release
	PhaseBox    Phase = "box"    // scalar boxing
	PhaseBuffer Phase = "buffer" // recvbuf/sendbuf
	PhaseHandle Phase = "handle" // handle creation and user data
	PhaseCall   Phase = "call"   // dispatch and translation
	PhaseHost   Phase = "host"   // ABI host module
	PhaseLoad   Phase = "load"   // guest loading
	PhaseConfig Phase = "config" // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidReference Kind = "invalid_reference"
	KindTypeMismatch     Kind = "type_mismatch"
	KindRevoked          Kind = "revoked"
	KindOwnership        Kind = "ownership"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindArityMismatch    Kind = "arity_mismatch"
	KindNoEntry          Kind = "no_entry"
	KindCalleeFailed     Kind = "callee_failed"
	KindCallDepth        Kind = "call_depth"
	KindExhausted        Kind = "exhausted"
	KindClosed           Kind = "closed"
	KindNotInitialized   Kind = "not_initialized"
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindInstantiation    Kind = "instantiation"
	KindRegistration     Kind = "registration"
)

// ABI error codes. Stable: guests compare against these values.
var kindCodes = map[Kind]uint32{
	KindInvalidReference: 1,
	KindTypeMismatch:     2,
	KindRevoked:          3,
	KindOwnership:        4,
	KindOutOfBounds:      5,
	KindArityMismatch:    6,
	KindNoEntry:          7,
	KindCalleeFailed:     8,
	KindCallDepth:        9,
	KindExhausted:        10,
	KindClosed:           11,
	KindNotInitialized:   12,
	KindInvalidInput:     13,
	KindNotFound:         14,
	KindInstantiation:    15,
	KindRegistration:     16,
}

// Code returns the ABI code for the kind, or 255 for kinds without one.
func (k Kind) Code() uint32 {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return 255
}

// Error is the structured error type used throughout the kernel
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the kernel operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf maps err to its ABI code. nil maps to 0.
func CodeOf(err error) uint32 {
	if err == nil {
		return 0
	}
	kind := KindOf(err)
	if kind == "" {
		return 255
	}
	return kind.Code()
}

// Convenience constructors for common error patterns

// InvalidReference creates an error for a zero, out-of-range or freed index
func InvalidReference(phase Phase, op string, idx uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidReference,
		Op:     op,
		Detail: fmt.Sprintf("capability %d does not resolve", idx),
		Value:  idx,
	}
}

// TypeMismatch creates an error for an operation on the wrong record variant
func TypeMismatch(phase Phase, op string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Op:     op,
		Detail: fmt.Sprintf("expected %s, found %s", want, got),
	}
}

// Revoked creates a revoked-access error
func Revoked(phase Phase, op string, idx uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRevoked,
		Op:     op,
		Detail: fmt.Sprintf("capability %d has been revoked", idx),
		Value:  idx,
	}
}

// Ownership creates an error for an owner-only operation by another module
func Ownership(phase Phase, op string, idx uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOwnership,
		Op:     op,
		Detail: fmt.Sprintf("capability %d is owned by another module", idx),
		Value:  idx,
	}
}

// OutOfBounds creates an out of bounds error for a memory region
func OutOfBounds(phase Phase, op string, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Op:     op,
		Detail: fmt.Sprintf("region [%d, %d+%d) exceeds memory size %d", offset, offset, length, size),
		Value:  offset,
	}
}

// ArityMismatch creates an error for a call with the wrong argument count
func ArityMismatch(op string, want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindArityMismatch,
		Op:     op,
		Detail: fmt.Sprintf("entry takes %d argument(s), called with %d", want, got),
		Value:  got,
	}
}

// NoEntry creates an error for a dispatch index outside the function table
func NoEntry(op string, index uint32, count int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNoEntry,
		Op:     op,
		Detail: fmt.Sprintf("dispatch index %d out of range (handle has %d entries)", index, count),
		Value:  index,
	}
}

// CalleeFailed wraps a failure raised inside a callback
func CalleeFailed(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCalleeFailed,
		Op:     op,
		Detail: "callback did not complete",
		Cause:  cause,
	}
}

// CallDepth creates an error for a call chain deeper than the configured limit
func CallDepth(op string, limit int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCallDepth,
		Op:     op,
		Detail: fmt.Sprintf("call depth limit %d exceeded", limit),
		Value:  limit,
	}
}

// Exhausted creates an error for a full capability table
func Exhausted(phase Phase, op string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Op:     op,
		Detail: fmt.Sprintf("capability table full (%d slots)", limit),
		Value:  limit,
	}
}

// Closed creates an error for an operation on a detached module or closed kernel
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Registration creates a host function registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate module %q", name),
		Cause:  cause,
	}
}
