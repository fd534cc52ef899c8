// Package vm provides error handling for the level-script interpreter.
package vm

import (
	"errors"
	"fmt"

	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// Structural errors - the program graph is corrupt or cyclic
	ErrorStackOverflow      ErrorType = "STACK_OVERFLOW"
	ErrorStackUnderflow     ErrorType = "STACK_UNDERFLOW"
	ErrorCheckValueMismatch ErrorType = "CHECK_VALUE_MISMATCH"
	ErrorMalformedNode      ErrorType = "MALFORMED_NODE"
	ErrorUnsupportedNode    ErrorType = "UNSUPPORTED_NODE"

	// Type errors
	ErrorNoCast       ErrorType = "NO_CAST"
	ErrorNoComparison ErrorType = "NO_COMPARISON"

	// Evaluation errors
	ErrorDivisionByZero    ErrorType = "DIVISION_BY_ZERO"
	ErrorUndefinedFunc     ErrorType = "UNDEFINED_FUNCTION"
	ErrorUndefinedVar      ErrorType = "UNDEFINED_VARIABLE"
	ErrorInvalidOperation  ErrorType = "INVALID_OPERATION"
	ErrorYieldInInitialize ErrorType = "YIELD_IN_INITIALIZER"
)

// RuntimeError represents a runtime error in the interpreter.
// Every runtime error terminates the script that raised it. The context
// fields are filled in from the state that was being stepped.
type RuntimeError struct {
	Type    ErrorType
	Message string

	// Node is the invocation node of the frame that failed.
	Node script.Node
	// Depth is the number of active frames when the error was raised.
	Depth int
	// CallStack is a textual dump of all active frames, innermost last.
	CallStack string

	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Depth > 0 {
		return fmt.Sprintf("[%s] %s (op %s, depth %d)", e.Type, e.Message, e.Node.OperationID, e.Depth)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// OperationID returns the operation id of the failing invocation.
func (e *RuntimeError) OperationID() opcode.Op {
	return e.Node.OperationID
}

// IsFatal returns true if the error must stop the program as a whole rather
// than only the script that raised it.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorCheckValueMismatch, ErrorYieldInInitialize:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError without frame context.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
	}
}

func newRuntimeErrorf(errType ErrorType, format string, args ...any) *RuntimeError {
	return NewRuntimeError(errType, fmt.Sprintf(format, args...))
}

// NewStackOverflowError creates a stack overflow error.
func NewStackOverflowError(depth int) *RuntimeError {
	return newRuntimeErrorf(ErrorStackOverflow, "call stack depth %d exceeds maximum %d", depth, MaxFrames)
}

// NewCheckValueMismatchError creates an error for a followed index whose
// node does not carry the expected check value.
func NewCheckValueMismatchError(index, want, got uint16) *RuntimeError {
	return newRuntimeErrorf(ErrorCheckValueMismatch, "node %d: check value 0x%04x, expected 0x%04x", index, got, want)
}

// NewNoCastError creates an error for an unsupported completion coercion.
func NewNoCastError(from, to script.DataType) *RuntimeError {
	return newRuntimeErrorf(ErrorNoCast, "no configured cast from %s to %s", from, to)
}

// NewNoComparisonError creates an error for an unsupported comparison.
func NewNoComparisonError(left, right script.DataType) *RuntimeError {
	return newRuntimeErrorf(ErrorNoComparison, "no comparison defined for %s and %s", left, right)
}

// NewDivisionByZeroError creates a division by zero error.
func NewDivisionByZeroError() *RuntimeError {
	return NewRuntimeError(ErrorDivisionByZero, "division by zero")
}

// NewUndefinedFunctionError creates an undefined builtin error.
func NewUndefinedFunctionError(op opcode.Op) *RuntimeError {
	return newRuntimeErrorf(ErrorUndefinedFunc, "undefined function: %s", op)
}

// NewUndefinedVariableError creates an undefined variable error.
func NewUndefinedVariableError(index uint16, global bool) *RuntimeError {
	if global {
		return newRuntimeErrorf(ErrorUndefinedVar, "undefined global: %d", index)
	}
	return newRuntimeErrorf(ErrorUndefinedVar, "undefined variable: %d", index)
}

// IsErrorType reports whether err wraps a RuntimeError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Type == t
}

// withContext fills in the frame context of err from state.
func withContext(err error, state *State) error {
	var re *RuntimeError
	if !errors.As(err, &re) {
		re = &RuntimeError{Type: ErrorInvalidOperation, Message: err.Error(), Err: err}
	}
	if re.Depth == 0 && state != nil && state.FrameCount() > 0 {
		re.Node = state.Top().OriginatingNode
		re.Depth = state.FrameCount()
		re.CallStack = state.CallStack()
	}
	return re
}
