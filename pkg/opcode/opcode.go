// Package opcode defines the operation identifiers of the level-script language.
// Both the program loader and the interpreter depend on this package: an AST
// node whose data type is "method or operator" carries one of these ids, and
// the interpreter dispatches on it.
package opcode

import "fmt"

// Op identifies a builtin operation or engine method.
type Op uint16

// Operation ids understood by the interpreter itself.
// Every other id is forwarded to the builtin-method provider by name.
const (
	// Begin evaluates its children in order and produces the last value.
	// Args: [expr...]
	Begin Op = iota

	// BeginRandom behaves exactly like Begin. It is not randomised.
	// Args: [expr...]
	BeginRandom

	// If evaluates the condition and then only one of its branches.
	// Args: [condition, then, else?]
	If

	// Set writes a value into the variable slot referenced by its first operand.
	// Args: [variable, value]
	Set

	// And short-circuits on the first false operand.
	// Args: [bool...]
	And

	// Or short-circuits on the first true operand.
	// Args: [bool...]
	Or

	// Add, Subtract, Multiply, Divide, Min and Max fold left over their operands.
	// Args: [number, number...]
	Add
	Subtract
	Multiply
	Divide
	Min
	Max

	// Comparison operators.
	// Args: [left, right]
	Equals
	NotEquals
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual

	// Sleep suspends the script for the given number of ticks.
	// Args: [ticks]
	Sleep

	// SleepForever suspends the calling script until it is woken.
	// Args: [script?]
	SleepForever

	// SleepUntil suspends the script until the condition holds.
	// Args: [condition, frequency?, timeout?]
	SleepUntil

	// Wake wakes a sleeping script.
	// Args: [script]
	Wake

	// Not negates a boolean.
	// Args: [bool]
	Not

	// Print writes a string to the engine log.
	// Args: [string]
	Print

	// GameIsPlaytest reports whether the engine runs in playtest mode.
	// Args: []
	GameIsPlaytest

	// GameTickGet returns the current scheduler tick.
	// Args: []
	GameTickGet

	// RandomRange returns a random short in [low, high).
	// Args: [low, high]
	RandomRange

	// RealRandomRange returns a random real in [low, high).
	// Args: [low, high]
	RealRandomRange

	opCount
)

var names = [opCount]string{
	Begin:              "begin",
	BeginRandom:        "begin_random",
	If:                 "if",
	Set:                "set",
	And:                "and",
	Or:                 "or",
	Add:                "+",
	Subtract:           "-",
	Multiply:           "*",
	Divide:             "/",
	Min:                "min",
	Max:                "max",
	Equals:             "=",
	NotEquals:          "!=",
	GreaterThan:        ">",
	LessThan:           "<",
	GreaterThanOrEqual: ">=",
	LessThanOrEqual:    "<=",
	Sleep:              "sleep",
	SleepForever:       "sleep_forever",
	SleepUntil:         "sleep_until",
	Wake:               "wake",
	Not:                "not",
	Print:              "print",
	GameIsPlaytest:     "game_is_playtest",
	GameTickGet:        "game_tick_get",
	RandomRange:        "random_range",
	RealRandomRange:    "real_random_range",
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(names))
	for op, name := range names {
		m[name] = Op(op)
	}
	// Spelled-out aliases used by hand-written programs.
	m["add"] = Add
	m["subtract"] = Subtract
	m["multiply"] = Multiply
	m["divide"] = Divide
	m["equals"] = Equals
	return m
}()

// Name returns the script-visible name of op, or "" when op is not a known id.
func Name(op Op) string {
	if op < opCount {
		return names[op]
	}
	return ""
}

// Lookup resolves a script-visible name to its operation id.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if name := Name(op); name != "" {
		return name
	}
	return fmt.Sprintf("op#%d", uint16(op))
}

// IsControlFlow reports whether the interpreter handles op before any
// generic argument gathering (the op interleaves evaluation with branching).
func (op Op) IsControlFlow() bool {
	switch op {
	case Begin, BeginRandom, If, And, Or, Set, SleepUntil:
		return true
	default:
		return false
	}
}
