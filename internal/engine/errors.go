package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/ir"
)

// RuntimeError represents a failure detected while interpreting a stream.
//
// Runtime errors include:
//   - Malformed stream: framing, stack discipline or operand types are wrong
//   - Unsupported opcode: extension registry and out-of-band buffers
//   - Timeout: step budget, wall-clock budget or context cancellation
//   - Resource limit: stack, mark, memo or container bounds exceeded
//   - Call failure: a permitted host callable returned an error
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the run that failed.
	RunID string

	// Offset is the byte offset of the offending instruction, or -1.
	Offset int64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMalformedStream indicates the stream violates pickle framing or
	// stack discipline.
	ErrCodeMalformedStream RuntimeErrorCode = "MALFORMED_STREAM"

	// ErrCodeUnsupportedOpcode indicates an opcode the interpreter refuses.
	ErrCodeUnsupportedOpcode RuntimeErrorCode = "UNSUPPORTED_OPCODE"

	// ErrCodeTraceTimeout indicates the step or wall-clock budget ran out.
	ErrCodeTraceTimeout RuntimeErrorCode = "TRACE_TIMEOUT"

	// ErrCodeResourceLimit indicates a structural bound was exceeded.
	ErrCodeResourceLimit RuntimeErrorCode = "RESOURCE_LIMIT_EXCEEDED"

	// ErrCodeResolveFailed indicates a permitted name did not resolve in the
	// host registry.
	ErrCodeResolveFailed RuntimeErrorCode = "RESOLVE_FAILED"

	// ErrCodeCallFailed indicates a permitted host call failed.
	ErrCodeCallFailed RuntimeErrorCode = "CALL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (offset=%d)", msg, e.Offset)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func newRuntimeError(code RuntimeErrorCode, offset int64, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func malformed(offset int64, format string, args ...any) *RuntimeError {
	return newRuntimeError(ErrCodeMalformedStream, offset, format, args...)
}

func resourceLimit(offset int64, limit string, bound int) *RuntimeError {
	e := newRuntimeError(ErrCodeResourceLimit, offset, "%s exceeded (limit %d)", limit, bound)
	e.Details = map[string]string{"limit": limit, "max": fmt.Sprintf("%d", bound)}
	return e
}

// hostError wraps a failure from the host object model. Keys too large to
// hash are a resource bound, whatever the operation.
func hostError(code RuntimeErrorCode, offset int64, msg string, err error) *RuntimeError {
	if errors.Is(err, host.ErrKeyTooLarge) {
		code = ErrCodeResourceLimit
	}
	return &RuntimeError{Code: code, Message: msg, Offset: offset, Err: err}
}

func codeIs(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsMalformed returns true if the error is a malformed-stream error.
func IsMalformed(err error) bool {
	return codeIs(err, ErrCodeMalformedStream)
}

// IsUnsupported returns true if the error is an unsupported-opcode error.
func IsUnsupported(err error) bool {
	return codeIs(err, ErrCodeUnsupportedOpcode)
}

// IsTimeout returns true if the run ran out of steps or time.
// Matches both RuntimeError with ErrCodeTraceTimeout and a bare
// BudgetExceededError.
func IsTimeout(err error) bool {
	if codeIs(err, ErrCodeTraceTimeout) {
		return true
	}
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// IsResourceLimit returns true if a structural bound was exceeded.
func IsResourceLimit(err error) bool {
	return codeIs(err, ErrCodeResourceLimit)
}

// IsCallFailed returns true if a permitted host call failed.
func IsCallFailed(err error) bool {
	return codeIs(err, ErrCodeCallFailed) || codeIs(err, ErrCodeResolveFailed)
}

// ViolationKind says which rule a rejected stream broke.
type ViolationKind string

const (
	// ViolationGlobal: the qualified name is not in the class's globals.
	ViolationGlobal ViolationKind = "global"
	// ViolationReduce: the callable's name is not in the class's reduces.
	ViolationReduce ViolationKind = "reduce"
	// ViolationProvenance: the callable was not produced by an accepted
	// acquisition in this run.
	ViolationProvenance ViolationKind = "provenance"
	// ViolationNotAClass: NEWOBJ or NEWOBJ_EX targeted a non-class.
	ViolationNotAClass ViolationKind = "not-a-class"
)

// PolicyViolation is returned by the gate when a stream needs a symbol the
// policy does not allow. Processing stops at the first violation.
type PolicyViolation struct {
	ClassID string
	Name    ir.QualifiedName
	Kind    ViolationKind
	Offset  int64
}

// Error implements the error interface.
func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s) for class %q: %s at offset %d", e.Kind, e.ClassID, e.Name, e.Offset)
}

// IsPolicyViolation returns true if the error is a PolicyViolation.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolation
	return errors.As(err, &pv)
}

// CodePolicyViolation is what ErrorCode reports for a PolicyViolation.
const CodePolicyViolation = "POLICY_VIOLATION"

// AsPolicyViolation returns the PolicyViolation in err's chain.
func AsPolicyViolation(err error) (*PolicyViolation, bool) {
	var pv *PolicyViolation
	if errors.As(err, &pv) {
		return pv, true
	}
	return nil, false
}

// ErrorCode returns the RuntimeError code in err's chain as a string,
// CodePolicyViolation for a policy violation, or "" for anything else.
func ErrorCode(err error) string {
	if IsPolicyViolation(err) {
		return CodePolicyViolation
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return ""
}
