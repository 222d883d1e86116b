package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a simulation round trip the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // fetching, compiling, instantiating the engine
	PhaseEncode   Phase = "encode"   // domain values to module memory
	PhaseCall     Phase = "call"     // engine entry point execution
	PhaseDecode   Phase = "decode"   // module memory to domain values
	PhaseProtocol Phase = "protocol" // envelope exchange between client and worker
	PhaseRuntime  Phase = "runtime"  // worker lifecycle
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindLoadFailure     Kind = "load_failure"
	KindMissingExport   Kind = "missing_export"
	KindInvalidCard     Kind = "invalid_card"
	KindInvalidEncoding Kind = "invalid_encoding"
	KindInvalidInput    Kind = "invalid_input"
	KindModuleFailure   Kind = "module_failure"
	KindEmptyResult     Kind = "empty_result"
	KindProtocol        Kind = "protocol_error"
	KindAllocation      Kind = "allocation"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindNotFound        Kind = "not_found"
	KindRemote          Kind = "remote"
	KindClosed          Kind = "closed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Export string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Export != "" {
		b.WriteString(": export ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		if e.Export != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error.
// An empty Phase on the target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// Code returns the engine return code carried by a module failure.
func (e *Error) Code() (int32, bool) {
	if e.Kind != KindModuleFailure {
		return 0, false
	}
	c, ok := e.Value.(int32)
	return c, ok
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Export sets the engine entry point name
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
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

// Sentinels for errors.Is checks that ignore phase.
var (
	ErrLoadFailure     = &Error{Kind: KindLoadFailure}
	ErrMissingExport   = &Error{Kind: KindMissingExport}
	ErrInvalidCard     = &Error{Kind: KindInvalidCard}
	ErrInvalidEncoding = &Error{Kind: KindInvalidEncoding}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrModuleFailure   = &Error{Kind: KindModuleFailure}
	ErrEmptyResult     = &Error{Kind: KindEmptyResult}
	ErrProtocol        = &Error{Kind: KindProtocol}
	ErrRemote          = &Error{Kind: KindRemote}
	ErrClosed          = &Error{Kind: KindClosed}
)

// Convenience constructors for the bridge error taxonomy

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport creates an error for an absent module export
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Export: name,
		Detail: "not exported by module",
	}
}

// InvalidCard creates an error for malformed card notation
func InvalidCard(notation string) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindInvalidCard,
		Value:  notation,
		Detail: fmt.Sprintf("invalid card %q", notation),
	}
}

// InvalidEncoding creates an error for a packed card value out of range
func InvalidEncoding(value uint32) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidEncoding,
		Value:  value,
		Detail: fmt.Sprintf("card value %d out of range", value),
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

// ModuleFailure creates an error for a negative engine return code.
// The code is kept verbatim in Value.
func ModuleFailure(export string, code int32) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindModuleFailure,
		Export: export,
		Value:  code,
		Detail: fmt.Sprintf("failed with code %d", code),
	}
}

// EmptyResult creates an error for an entry point that produced no records
func EmptyResult(export string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindEmptyResult,
		Export: export,
		Detail: "no records returned",
	}
}

// Protocol creates a protocol violation error
func Protocol(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindProtocol,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Value:  offset,
		Detail: fmt.Sprintf("offset=%d, length=%d", offset, length),
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

// Remote creates an error for a failure reported by a worker
func Remote(message string) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindRemote,
		Detail: message,
	}
}

// Closed creates an error for a call that can no longer complete because
// its transport ended.
func Closed(cause error) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindClosed,
		Detail: "connection closed",
		Cause:  cause,
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
