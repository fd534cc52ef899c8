package vm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
)

func TestRuntimeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RuntimeError
		contains []string
	}{
		{
			name:     "basic error",
			err:      NewDivisionByZeroError(),
			contains: []string{"DIVISION_BY_ZERO", "division by zero"},
		},
		{
			name:     "check value mismatch",
			err:      NewCheckValueMismatchError(12, 0xE37F, 0xE380),
			contains: []string{"CHECK_VALUE_MISMATCH", "node 12", "0xe380", "0xe37f"},
		},
		{
			name:     "no cast",
			err:      NewNoCastError(script.String, script.Float),
			contains: []string{"NO_CAST", "string", "float"},
		},
		{
			name:     "undefined global",
			err:      NewUndefinedVariableError(3, true),
			contains: []string{"UNDEFINED_VARIABLE", "global: 3"},
		},
		{
			name: "error with frame context",
			err: &RuntimeError{
				Type:    ErrorNoComparison,
				Message: "no comparison",
				Node:    script.Node{OperationID: opcode.Equals},
				Depth:   3,
			},
			contains: []string{"NO_COMPARISON", "op =", "depth 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(errStr, s) {
					t.Errorf("error string %q should contain %q", errStr, s)
				}
			}
		})
	}
}

func TestRuntimeError_IsFatal(t *testing.T) {
	tests := []struct {
		name    string
		errType ErrorType
		fatal   bool
	}{
		{"check value mismatch is fatal", ErrorCheckValueMismatch, true},
		{"yield in initializer is fatal", ErrorYieldInInitialize, true},
		{"stack overflow is not fatal", ErrorStackOverflow, false},
		{"division by zero is not fatal", ErrorDivisionByZero, false},
		{"no cast is not fatal", ErrorNoCast, false},
		{"undefined variable is not fatal", ErrorUndefinedVar, false},
		{"undefined function is not fatal", ErrorUndefinedFunc, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRuntimeError(tt.errType, "test")
			if err.IsFatal() != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", err.IsFatal(), tt.fatal)
			}
		})
	}
}

func TestIsErrorType(t *testing.T) {
	err := fmt.Errorf("main: %w", NewUndefinedFunctionError(opcode.Op(400)))
	if !IsErrorType(err, ErrorUndefinedFunc) {
		t.Error("expected wrapped UNDEFINED_FUNCTION")
	}
	if IsErrorType(err, ErrorNoCast) {
		t.Error("unexpected NO_CAST")
	}
	if IsErrorType(errors.New("plain"), ErrorUndefinedFunc) {
		t.Error("plain errors have no type")
	}
}

func TestWithContext(t *testing.T) {
	s := NewState(0)
	node := script.Node{NodeType: script.BuiltinInvocation, OperationID: opcode.Multiply}
	_ = s.Push(node, script.Node{})

	cause := errors.New("boom")
	err := withContext(cause, s)

	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if re.Type != ErrorInvalidOperation || !errors.Is(err, cause) {
		t.Errorf("plain errors should become INVALID_OPERATION, got %v", re)
	}
	if re.Depth != 1 || re.OperationID() != opcode.Multiply || re.CallStack == "" {
		t.Errorf("expected frame context, got %+v", re)
	}

	// Context already present is kept.
	s.Reset()
	if again := withContext(re, s).(*RuntimeError); again.Depth != 1 {
		t.Errorf("context should not be overwritten, got depth %d", again.Depth)
	}
}
